package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Cache   CacheConfig   `toml:"cache"`
	Remote  RemoteConfig  `toml:"remote"`
	Sync    SyncConfig    `toml:"sync"`
	Session SessionConfig `toml:"session"`
	API     APIConfig     `toml:"api"`
	Backup  BackupConfig  `toml:"backup"`
	App     AppConfig     `toml:"app"`
}

// StorageConfig contains local database settings.
type StorageConfig struct {
	Path        string `toml:"path"`         // SQLite file; empty uses ~/.pokedex-companion/data.db
	JournalMode string `toml:"journal_mode"` // SQLite journal mode
	BusyTimeout string `toml:"busy_timeout"` // e.g. "5s"
}

// CacheConfig contains freshness windows for locally cached collections.
type CacheConfig struct {
	VariantsTTL      string `toml:"variants_ttl"`       // e.g. "24h"
	GroupingListsTTL string `toml:"grouping_lists_ttl"` // e.g. "24h"
	TagsTTL          string `toml:"tags_ttl"`           // e.g. "24h"
}

// RemoteConfig contains the remote authority client settings.
type RemoteConfig struct {
	BaseURL        string  `toml:"base_url"`
	Timeout        string  `toml:"timeout"`         // per request, e.g. "30s"
	RateLimit      float64 `toml:"rate_limit"`      // requests per second
	MaxRetries     int     `toml:"max_retries"`     // retries for transient failures
	UserAgent      string  `toml:"user_agent"`      // sent on every request
	AuthTokenEnv   string  `toml:"auth_token_env"`  // env var holding the bearer token
	ForeignEnabled bool    `toml:"foreign_enabled"` // fetch other trainers' collections
}

// SyncConfig controls the batched update flusher and catalog refresh.
type SyncConfig struct {
	FlushInterval        string `toml:"flush_interval"`         // periodic flush, e.g. "1m"
	FlushDebounce        string `toml:"flush_debounce"`         // delay after a mutation, e.g. "5s"
	RefreshCheckInterval string `toml:"refresh_check_interval"` // catalog freshness check, e.g. "1h"
	PullInterval         string `toml:"pull_interval"`          // remote collection/trade pull, e.g. "5m"
}

// SessionConfig identifies the local trainer. Authentication itself is external.
type SessionConfig struct {
	Username      string `toml:"username"`
	Authenticated bool   `toml:"authenticated"`
}

// APIConfig contains the local HTTP/WebSocket server settings.
type APIConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"` // empty allows all (development)
}

// BackupConfig selects where database backups are written.
type BackupConfig struct {
	Driver      string `toml:"driver"` // "fs" or "s3"
	Dir         string `toml:"dir"`    // fs driver root
	S3Bucket    string `toml:"s3_bucket"`
	S3Region    string `toml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3Prefix    string `toml:"s3_prefix"`
	S3PathStyle bool   `toml:"s3_path_style"`
	PasswordEnv string `toml:"password_env"` // env var holding the encryption passphrase
	Interval    string `toml:"interval"`     // scheduled backups, e.g. "24h"; empty disables
}

// AppConfig contains general application settings.
type AppConfig struct {
	DebugMode bool `toml:"debug_mode"` // Enable debug logging
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:        "",
			JournalMode: "WAL",
			BusyTimeout: "5s",
		},
		Cache: CacheConfig{
			VariantsTTL:      "24h",
			GroupingListsTTL: "24h",
			TagsTTL:          "24h",
		},
		Remote: RemoteConfig{
			BaseURL:      "http://localhost:3003/api",
			Timeout:      "30s",
			RateLimit:    10,
			MaxRetries:   3,
			UserAgent:    "PokedexCompanion/1.0",
			AuthTokenEnv: "POKEDEX_AUTH_TOKEN",
		},
		Sync: SyncConfig{
			FlushInterval:        "1m",
			FlushDebounce:        "5s",
			RefreshCheckInterval: "1h",
			PullInterval:         "5m",
		},
		API: APIConfig{
			Port: 9999,
		},
		Backup: BackupConfig{
			Driver:      "fs",
			PasswordEnv: "POKEDEX_BACKUP_PASSWORD",
		},
	}
}

// Dir returns the application directory under the user's home.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".pokedex-companion"), nil
}

// DefaultPath returns the default configuration file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the configuration at path, layering it over the defaults.
// An empty path uses DefaultPath. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// Save writes the configuration to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	durations := map[string]string{
		"storage.busy_timeout":        c.Storage.BusyTimeout,
		"cache.variants_ttl":          c.Cache.VariantsTTL,
		"cache.grouping_lists_ttl":    c.Cache.GroupingListsTTL,
		"cache.tags_ttl":              c.Cache.TagsTTL,
		"remote.timeout":              c.Remote.Timeout,
		"sync.flush_interval":         c.Sync.FlushInterval,
		"sync.flush_debounce":         c.Sync.FlushDebounce,
		"sync.refresh_check_interval": c.Sync.RefreshCheckInterval,
		"sync.pull_interval":          c.Sync.PullInterval,
	}
	if c.Backup.Interval != "" {
		durations["backup.interval"] = c.Backup.Interval
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive: %q", name, value)
		}
	}

	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if u, err := url.Parse(c.Remote.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid remote.base_url %q", c.Remote.BaseURL)
	}
	if c.Remote.RateLimit <= 0 {
		return fmt.Errorf("remote.rate_limit must be positive: %v", c.Remote.RateLimit)
	}
	if c.Remote.MaxRetries < 0 {
		return fmt.Errorf("remote.max_retries cannot be negative: %d", c.Remote.MaxRetries)
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port out of range: %d", c.API.Port)
	}

	switch c.Backup.Driver {
	case "", "fs":
	case "s3":
		if c.Backup.S3Bucket == "" {
			return fmt.Errorf("backup.s3_bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown backup.driver %q", c.Backup.Driver)
	}

	return nil
}

// GetVariantsTTL returns the variants freshness window.
func (c *Config) GetVariantsTTL() time.Duration {
	return parseOr(c.Cache.VariantsTTL, 24*time.Hour)
}

// GetGroupingListsTTL returns the grouping lists freshness window.
func (c *Config) GetGroupingListsTTL() time.Duration {
	return parseOr(c.Cache.GroupingListsTTL, 24*time.Hour)
}

// GetTagsTTL returns the tag snapshot freshness window.
func (c *Config) GetTagsTTL() time.Duration {
	return parseOr(c.Cache.TagsTTL, 24*time.Hour)
}

// GetRemoteTimeout returns the per-request timeout.
func (c *Config) GetRemoteTimeout() time.Duration {
	return parseOr(c.Remote.Timeout, 30*time.Second)
}

// GetBusyTimeout returns the SQLite busy timeout.
func (c *Config) GetBusyTimeout() time.Duration {
	return parseOr(c.Storage.BusyTimeout, 5*time.Second)
}

// GetFlushInterval returns the periodic flush interval.
func (c *Config) GetFlushInterval() time.Duration {
	return parseOr(c.Sync.FlushInterval, time.Minute)
}

// GetFlushDebounce returns the delay between a mutation and its flush.
func (c *Config) GetFlushDebounce() time.Duration {
	return parseOr(c.Sync.FlushDebounce, 5*time.Second)
}

// GetRefreshCheckInterval returns how often catalog freshness is re-checked.
func (c *Config) GetRefreshCheckInterval() time.Duration {
	return parseOr(c.Sync.RefreshCheckInterval, time.Hour)
}

// GetPullInterval returns how often the local trainer's collection and trades
// are pulled from the remote authority.
func (c *Config) GetPullInterval() time.Duration {
	return parseOr(c.Sync.PullInterval, 5*time.Minute)
}

// GetBackupInterval returns the scheduled backup interval, or 0 when
// scheduled backups are disabled.
func (c *Config) GetBackupInterval() time.Duration {
	if c.Backup.Interval == "" {
		return 0
	}
	return parseOr(c.Backup.Interval, 0)
}

// AuthToken returns the bearer token from the configured environment variable.
func (c *Config) AuthToken() string {
	if c.Remote.AuthTokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Remote.AuthTokenEnv)
}

// BackupPassword returns the backup passphrase from the configured environment variable.
func (c *Config) BackupPassword() string {
	if c.Backup.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Backup.PasswordEnv)
}

func parseOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
