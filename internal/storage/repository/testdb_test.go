package repository

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE variants (
	variant_id TEXT PRIMARY KEY,
	pokedex_number INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE grouping_lists (
	name TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE instances (
	instance_id TEXT PRIMARY KEY,
	variant_id TEXT NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	last_update INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE trades (
	trade_id TEXT PRIMARY KEY,
	username_proposed TEXT NOT NULL,
	username_accepting TEXT NOT NULL,
	instance_id_proposed TEXT NOT NULL,
	instance_id_accepting TEXT,
	status TEXT NOT NULL,
	payload TEXT NOT NULL,
	last_update INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE related_instances (
	instance_id TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE batched_updates (
	key TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	operation TEXT NOT NULL,
	payload TEXT NOT NULL,
	last_update INTEGER NOT NULL DEFAULT 0,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE TABLE tag_snapshots (
	partition TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	built_at INTEGER NOT NULL
);
CREATE TABLE cache_stamps (
	key TEXT PRIMARY KEY,
	stamped_at INTEGER NOT NULL
);
`

// setupTestDB opens an in-memory database with the full schema. The pool is
// pinned to one connection so every query sees the same memory database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}
