package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ramonehamilton/Pokedex-Companion/internal/blob"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

func fastEncryption(password string) *EncryptionConfig {
	return &EncryptionConfig{Password: password, Argon2Time: 1, Argon2Memory: 1024, Argon2Threads: 1}
}

func TestBackupManager_BackupAndRestore(t *testing.T) {
	svc := NewTestService(t)
	ctx := context.Background()

	if err := svc.Instances().Put(ctx, &models.Instance{InstanceID: "0025-default_a", IsCaught: true}); err != nil {
		t.Fatalf("Failed to seed instance: %v", err)
	}

	store := blob.NewMemoryStore()
	mgr := NewBackupManager(svc.DB(), store)

	info, err := mgr.Backup(ctx, &BackupConfig{Name: "nightly.db", Encryption: fastEncryption("hunter2")})
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if info.Key != "backups/nightly.db.enc" {
		t.Errorf("Unexpected backup key %q", info.Key)
	}

	backups, err := mgr.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("Expected 1 backup, got %d", len(backups))
	}

	dest := filepath.Join(t.TempDir(), "restored.db")
	if err := Restore(ctx, store, info.Key, dest, nil); err == nil || !strings.Contains(err.Error(), "password") {
		t.Errorf("Expected password error, got %v", err)
	}
	if err := Restore(ctx, store, info.Key, dest, fastEncryption("wrong")); err == nil {
		t.Error("Expected wrong password to fail")
	}
	if err := Restore(ctx, store, info.Key, dest, fastEncryption("hunter2")); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	restored, err := Open(DefaultConfig(dest))
	if err != nil {
		t.Fatalf("Failed to open restored database: %v", err)
	}
	defer restored.Close()

	got, err := NewService(restored).Instances().Get(ctx, "0025-default_a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || !got.IsCaught {
		t.Errorf("Expected restored instance, got %+v", got)
	}
}

func TestRestore_MissingBackup(t *testing.T) {
	err := Restore(context.Background(), blob.NewMemoryStore(), "backups/none.db", filepath.Join(t.TempDir(), "x.db"), nil)
	if err == nil {
		t.Fatal("Expected error for missing backup")
	}
}
