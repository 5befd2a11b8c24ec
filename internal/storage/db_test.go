package storage

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("test.db")

	if config.Path != "test.db" {
		t.Errorf("expected path 'test.db', got '%s'", config.Path)
	}
	if config.BusyTimeout != 5*time.Second {
		t.Errorf("expected BusyTimeout 5s, got %v", config.BusyTimeout)
	}
	if config.JournalMode != "WAL" {
		t.Errorf("expected JournalMode 'WAL', got '%s'", config.JournalMode)
	}
	if config.AutoMigrate {
		t.Error("expected AutoMigrate to default to false")
	}
}

func TestConfig_DSN(t *testing.T) {
	dsn := DefaultConfig("/tmp/x.db").dsn()
	for _, want := range []string{"_pragma=busy_timeout(5000)", "_pragma=journal_mode(WAL)", "_pragma=foreign_keys(1)"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("expected DSN %q to contain %q", dsn, want)
		}
	}

	mem := DefaultConfig(":memory:").dsn()
	if strings.Contains(mem, "journal_mode") {
		t.Errorf("in-memory DSN should not set journal mode: %q", mem)
	}
}

func TestOpen_NilConfig(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestOpen_InMemoryAutoMigrate(t *testing.T) {
	config := DefaultConfig(":memory:")
	config.AutoMigrate = true

	db, err := Open(config)
	if err != nil {
		t.Fatalf("failed to open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.Conn().QueryRow(`SELECT COUNT(*) FROM batched_updates`).Scan(&n); err != nil {
		t.Fatalf("expected schema to exist: %v", err)
	}
}

func TestMigrationManager_UpDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migration-test.db")

	mgr, err := NewMigrationManager(dbPath)
	if err != nil {
		t.Fatalf("Failed to create migration manager: %v", err)
	}
	defer mgr.Close()

	if err := mgr.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	// Running again is a no-op.
	if err := mgr.Up(); err != nil {
		t.Fatalf("Second Up should be a no-op: %v", err)
	}

	version, dirty, err := mgr.Version()
	if err != nil {
		t.Fatalf("Failed to get migration version: %v", err)
	}
	if dirty {
		t.Error("Database is in dirty state after migrations")
	}
	if version < 1 {
		t.Errorf("Expected migration version >= 1, got %d", version)
	}

	if err := mgr.Down(); err != nil {
		t.Fatalf("Failed to roll back: %v", err)
	}
	version, _, err = mgr.Version()
	if err != nil {
		t.Fatalf("Failed to get migration version: %v", err)
	}
	if version != 0 {
		t.Errorf("Expected version 0 after rollback, got %d", version)
	}
}
