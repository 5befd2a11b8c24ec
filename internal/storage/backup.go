package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/blob"
)

// backupPrefix is the key prefix every backup is written under.
const backupPrefix = "backups/"

// BackupManager snapshots the live database into a blob store and restores it.
type BackupManager struct {
	db    *DB
	store blob.Store
}

// NewBackupManager creates a backup manager writing to store.
func NewBackupManager(db *DB, store blob.Store) *BackupManager {
	return &BackupManager{db: db, store: store}
}

// BackupConfig holds options for a single backup.
type BackupConfig struct {
	// Name is the blob name without prefix. Generated from the time when empty.
	Name string

	// Encryption encrypts the snapshot when non-nil.
	Encryption *EncryptionConfig
}

// Backup writes a consistent snapshot of the database to the blob store.
// VACUUM INTO produces the snapshot without an exclusive lock.
func (bm *BackupManager) Backup(ctx context.Context, config *BackupConfig) (blob.Info, error) {
	if config == nil {
		config = &BackupConfig{}
	}

	tmpDir, err := os.MkdirTemp("", "pokedex-backup-*")
	if err != nil {
		return blob.Info{}, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	snapshotPath := filepath.Join(tmpDir, "snapshot.db")
	if _, err := bm.db.Conn().ExecContext(ctx, "VACUUM INTO ?", snapshotPath); err != nil {
		return blob.Info{}, fmt.Errorf("failed to snapshot database: %w", err)
	}

	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return blob.Info{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	checksum := sha256.Sum256(data)

	name := config.Name
	if name == "" {
		name = fmt.Sprintf("pokedex_%s.db", time.Now().UTC().Format("20060102_150405"))
	}
	contentType := "application/vnd.sqlite3"
	if config.Encryption != nil {
		data, err = EncryptData(data, config.Encryption)
		if err != nil {
			return blob.Info{}, fmt.Errorf("failed to encrypt snapshot: %w", err)
		}
		name += ".enc"
		contentType = "application/octet-stream"
	}

	info, err := bm.store.Put(ctx, backupPrefix+name, bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"sha256": hex.EncodeToString(checksum[:])},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("failed to upload backup: %w", err)
	}
	return info, nil
}

// List returns every stored backup ordered by key.
func (bm *BackupManager) List(ctx context.Context) ([]blob.Info, error) {
	return bm.store.List(ctx, backupPrefix)
}

// Restore downloads a backup and installs it at destPath. The existing file,
// if any, is kept alongside with a ".old.<timestamp>" suffix. Callers must
// close any open handle on destPath first.
func Restore(ctx context.Context, store blob.Store, key, destPath string, encryption *EncryptionConfig) error {
	_, rc, err := store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("backup %s does not exist", key)
	}
	if err != nil {
		return fmt.Errorf("failed to download backup: %w", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	if IsEncrypted(data) {
		if encryption == nil {
			return fmt.Errorf("backup %s is encrypted; a password is required", key)
		}
		if data, err = DecryptData(data, encryption); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	tempPath := destPath + ".restore.tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write restore file: %w", err)
	}
	if err := VerifyBackup(tempPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("restored database verification failed: %w", err)
	}

	if _, err := os.Stat(destPath); err == nil {
		oldPath := destPath + ".old." + time.Now().Format("20060102_150405")
		if err := os.Rename(destPath, oldPath); err != nil {
			_ = os.Remove(tempPath)
			return fmt.Errorf("failed to move current database aside: %w", err)
		}
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		return fmt.Errorf("failed to install restored database: %w", err)
	}
	return nil
}

// VerifyBackup checks that path is a readable SQLite database.
func VerifyBackup(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup as database: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to query backup database: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
