package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationManager runs the embedded schema against one database file.
type MigrationManager struct {
	m *migrate.Migrate
}

// MigrationOption customizes NewMigrationManager.
type MigrationOption func(*migrate.Migrate)

// WithMigrationLogger reports each applied step to logger at info level.
func WithMigrationLogger(logger *slog.Logger) MigrationOption {
	return func(m *migrate.Migrate) {
		if logger != nil {
			m.Log = migrateLog{logger.With("component", "migrate")}
		}
	}
}

// migrateLog adapts slog to migrate.Logger.
type migrateLog struct{ l *slog.Logger }

func (g migrateLog) Printf(format string, v ...any) {
	g.l.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g migrateLog) Verbose() bool { return false }

// NewMigrationManager opens dbPath for migration, creating the file if needed.
func NewMigrationManager(dbPath string, opts ...MigrationOption) (*MigrationManager, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to access migrations directory: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, sqliteURL(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	for _, opt := range opts {
		opt(m)
	}
	return &MigrationManager{m: m}, nil
}

// sqliteURL turns a file path into a sqlite:// URL. Windows drive paths
// get forward slashes and a leading slash.
func sqliteURL(dbPath string) string {
	p := filepath.ToSlash(dbPath)
	if filepath.IsAbs(dbPath) && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "sqlite://" + p
}

func noChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (mm *MigrationManager) Up() error {
	if err := noChange(mm.m.Up()); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Down rolls the schema back to version 0, dropping every table.
func (mm *MigrationManager) Down() error {
	if err := noChange(mm.m.Down()); err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

// Version reports the applied version and whether the last run failed
// halfway. A fresh database is version 0.
func (mm *MigrationManager) Version() (uint, bool, error) {
	v, dirty, err := mm.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return v, dirty, nil
}

// Force records version as applied and clears the dirty flag without
// running anything.
func (mm *MigrationManager) Force(version int) error {
	if err := mm.m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Close releases the source and database handles.
func (mm *MigrationManager) Close() error {
	srcErr, dbErr := mm.m.Close()
	return errors.Join(srcErr, dbErr)
}

// applyEmbeddedSchema runs the up scripts in order directly on conn. The
// migrate driver opens its own handle, which cannot see an in-memory database.
func applyEmbeddedSchema(conn *sql.DB) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	slices.Sort(names)

	for _, name := range names {
		body, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := conn.Exec(string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}
