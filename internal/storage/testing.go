package storage

import (
	"path/filepath"
	"testing"
)

// NewTestService opens a migrated database in a temporary directory and
// returns a Service over it. Exported for use in other packages' tests.
func NewTestService(t testing.TB) *Service {
	t.Helper()

	config := DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	config.AutoMigrate = true

	db, err := Open(config)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewService(db)
}

// NewMemoryTestService returns a Service over a migrated in-memory database.
func NewMemoryTestService(t testing.TB) *Service {
	t.Helper()

	config := DefaultConfig(":memory:")
	config.AutoMigrate = true

	db, err := Open(config)
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewService(db)
}
