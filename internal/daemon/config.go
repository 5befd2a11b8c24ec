package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/blob"
	blobfs "github.com/ramonehamilton/Pokedex-Companion/internal/blob/fs"
	blobs3 "github.com/ramonehamilton/Pokedex-Companion/internal/blob/s3"
	"github.com/ramonehamilton/Pokedex-Companion/internal/config"
	"github.com/ramonehamilton/Pokedex-Companion/internal/freshness"
	"github.com/ramonehamilton/Pokedex-Companion/internal/remote"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage"
)

// StorageConfig maps the storage section onto a database config.
// dbPath, when non-empty, overrides the configured path.
func StorageConfig(cfg *config.Config, dbPath string) *storage.Config {
	path := dbPath
	if path == "" {
		path = cfg.Storage.Path
	}
	if path == "" {
		path = storage.DefaultPath()
	}
	sc := storage.DefaultConfig(path)
	sc.BusyTimeout = cfg.GetBusyTimeout()
	if cfg.Storage.JournalMode != "" {
		sc.JournalMode = cfg.Storage.JournalMode
	}
	sc.AutoMigrate = true
	return sc
}

// RemoteConfig maps the remote section onto a client config.
func RemoteConfig(cfg *config.Config) remote.Config {
	return remote.Config{
		BaseURL:    cfg.Remote.BaseURL,
		Timeout:    cfg.GetRemoteTimeout(),
		RateLimit:  cfg.Remote.RateLimit,
		MaxRetries: cfg.Remote.MaxRetries,
		UserAgent:  cfg.Remote.UserAgent,
		Token:      cfg.AuthToken(),
	}
}

// FreshnessConfig maps the cache TTLs onto tracker settings.
func FreshnessConfig(cfg *config.Config) freshness.Config {
	return freshness.Config{
		TTLs: map[string]time.Duration{
			freshness.KeyVariants:      cfg.GetVariantsTTL(),
			freshness.KeyGroupingLists: cfg.GetGroupingListsTTL(),
			freshness.KeyTags:          cfg.GetTagsTTL(),
		},
	}
}

// OpenBackupStore returns the blob store selected by the backup section.
// The fs driver defaults to the application directory; backups land under
// its backups/ prefix.
func OpenBackupStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Backup.Driver {
	case "", string(blob.DriverFilesystem):
		dir := cfg.Backup.Dir
		if dir == "" {
			appDir, err := config.Dir()
			if err != nil {
				return nil, err
			}
			dir = appDir
		}
		return blobfs.New(dir)
	case string(blob.DriverS3):
		return blobs3.New(ctx, blobs3.Config{
			Region:    cfg.Backup.S3Region,
			Bucket:    cfg.Backup.S3Bucket,
			Prefix:    cfg.Backup.S3Prefix,
			Endpoint:  cfg.Backup.S3Endpoint,
			PathStyle: cfg.Backup.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown backup driver %q", cfg.Backup.Driver)
	}
}

// BackupEncryption returns the encryption settings, or nil when no
// passphrase is configured.
func BackupEncryption(cfg *config.Config) *storage.EncryptionConfig {
	password := cfg.BackupPassword()
	if password == "" {
		return nil
	}
	return storage.DefaultEncryptionConfig(password)
}
