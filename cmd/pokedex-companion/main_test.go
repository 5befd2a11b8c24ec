package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/Pokedex-Companion/internal/config"
)

type testEnv struct {
	configPath string
	dbPath     string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Backup.Dir = filepath.Join(dir, "backups")
	cfg.Backup.PasswordEnv = "POKEDEX_CLI_TEST_PASSWORD"
	cfg.Remote.AuthTokenEnv = ""

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, cfg.Save(path))
	return testEnv{configPath: path, dbPath: filepath.Join(dir, "data.db")}
}

func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath, "--db-path", e.dbPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateCommands(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0")

	out, err = env.run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")
	assert.NotContains(t, out, "dirty")

	_, err = env.run(t, "migrate", "force", "abc")
	assert.Error(t, err)
}

func TestFlushCommand_EmptyQueue(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "flush")
	require.NoError(t, err)
	assert.Contains(t, out, `"skipped": true`)
	assert.Contains(t, out, `"attempted": 0`)
}

func TestBackupAndRestoreCommands(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("POKEDEX_CLI_TEST_PASSWORD", "")

	_, err := env.run(t, "migrate", "up")
	require.NoError(t, err)

	out, err := env.run(t, "backup", "--name", "manual.db")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote backups/manual.db")

	out, err = env.run(t, "backup", "--list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "backups/manual.db\t"))

	out, err = env.run(t, "restore", "backups/manual.db")
	require.NoError(t, err)
	assert.Contains(t, out, "restored backups/manual.db")

	_, err = env.run(t, "restore", "backups/missing.db")
	assert.Error(t, err)
}

func TestInvalidConfigRejected(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := config.Load(env.configPath)
	require.NoError(t, err)
	cfg.Remote.RateLimit = 0
	require.NoError(t, cfg.Save(env.configPath))

	_, err = env.run(t, "flush")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
