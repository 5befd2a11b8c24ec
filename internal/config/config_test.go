package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 24*time.Hour, cfg.GetVariantsTTL())
	assert.Equal(t, 24*time.Hour, cfg.GetGroupingListsTTL())
	assert.Equal(t, 24*time.Hour, cfg.GetTagsTTL())
	assert.Equal(t, time.Minute, cfg.GetFlushInterval())
	assert.Equal(t, 5*time.Second, cfg.GetFlushDebounce())
	assert.Equal(t, time.Hour, cfg.GetRefreshCheckInterval())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := DefaultConfig()
	cfg.Session.Username = "ash"
	cfg.Session.Authenticated = true
	cfg.Cache.VariantsTTL = "2h"
	cfg.API.AllowedOrigins = []string{"http://localhost:5173"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ash", loaded.Session.Username)
	assert.True(t, loaded.Session.Authenticated)
	assert.Equal(t, 2*time.Hour, loaded.GetVariantsTTL())
	assert.Equal(t, []string{"http://localhost:5173"}, loaded.API.AllowedOrigins)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[session]\nusername = \"misty\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "misty", cfg.Session.Username)
	assert.Equal(t, "1m", cfg.Sync.FlushInterval)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[session\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad duration", func(c *Config) { c.Cache.TagsTTL = "soon" }},
		{"zero duration", func(c *Config) { c.Sync.FlushDebounce = "0s" }},
		{"empty base url", func(c *Config) { c.Remote.BaseURL = "" }},
		{"relative base url", func(c *Config) { c.Remote.BaseURL = "/api" }},
		{"zero rate limit", func(c *Config) { c.Remote.RateLimit = 0 }},
		{"negative retries", func(c *Config) { c.Remote.MaxRetries = -1 }},
		{"port out of range", func(c *Config) { c.API.Port = 70000 }},
		{"s3 without bucket", func(c *Config) { c.Backup.Driver = "s3" }},
		{"unknown driver", func(c *Config) { c.Backup.Driver = "ftp" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetters_FallBackOnInvalidValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Remote.Timeout = "garbage"
	cfg.Sync.FlushInterval = "-1s"

	assert.Equal(t, 30*time.Second, cfg.GetRemoteTimeout())
	assert.Equal(t, time.Minute, cfg.GetFlushInterval())
	assert.Equal(t, 5*time.Minute, cfg.GetPullInterval())
}

func TestBackupInterval(t *testing.T) {
	cfg := DefaultConfig()
	assert.Zero(t, cfg.GetBackupInterval())

	cfg.Backup.Interval = "12h"
	assert.Equal(t, 12*time.Hour, cfg.GetBackupInterval())
	require.NoError(t, cfg.Validate())

	cfg.Backup.Interval = "soon"
	assert.Error(t, cfg.Validate())
}

func TestSecretsFromEnvironment(t *testing.T) {
	t.Setenv("POKEDEX_AUTH_TOKEN", "tok")
	t.Setenv("POKEDEX_BACKUP_PASSWORD", "pw")

	cfg := DefaultConfig()
	assert.Equal(t, "tok", cfg.AuthToken())
	assert.Equal(t, "pw", cfg.BackupPassword())

	cfg.Remote.AuthTokenEnv = ""
	assert.Empty(t, cfg.AuthToken())
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, DefaultConfig().Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *Config) { changes <- c })
	}()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)

	cfg := DefaultConfig()
	cfg.Session.Username = "brock"
	require.NoError(t, cfg.Save(path))

	select {
	case got := <-changes:
		assert.Equal(t, "brock", got.Session.Username)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	assert.NoError(t, <-done)
}
