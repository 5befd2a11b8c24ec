// Package freshness tracks when each locally cached collection was last
// refreshed from the remote authority.
package freshness

import (
	"context"
	"log/slog"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/repository"
)

// Cache keys with their own freshness stamp.
const (
	KeyVariants      = "variants"
	KeyGroupingLists = "groupingLists"
	KeyTags          = "tags"
	KeyInstances     = "instances"
)

// DefaultTTL is the age after which a cache is stale when no per-key TTL is set.
const DefaultTTL = 24 * time.Hour

// Config configures a Tracker.
type Config struct {
	// TTLs overrides the stale age per key.
	TTLs map[string]time.Duration

	// DefaultTTL applies to keys without an override. Default: 24h
	DefaultTTL time.Duration

	Logger *slog.Logger

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// Tracker answers "is this cache fresh?" from persisted stamps.
type Tracker struct {
	repo   repository.CacheStampRepository
	config Config
	logger *slog.Logger
}

// NewTracker creates a tracker over repo.
func NewTracker(repo repository.CacheStampRepository, config Config) *Tracker {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Tracker{repo: repo, config: config, logger: config.Logger}
}

// TTL returns the stale age for key.
func (t *Tracker) TTL(key string) time.Duration {
	if ttl, ok := t.config.TTLs[key]; ok && ttl > 0 {
		return ttl
	}
	return t.config.DefaultTTL
}

// IsCacheFresh reports whether key was stamped within its TTL. A missing
// stamp or a read error counts as stale.
func (t *Tracker) IsCacheFresh(ctx context.Context, key string) bool {
	stamp, ok := t.Timestamp(ctx, key)
	if !ok {
		return false
	}
	return t.config.Now().Sub(stamp) < t.TTL(key)
}

// Timestamp returns the stamp for key, if any.
func (t *Tracker) Timestamp(ctx context.Context, key string) (time.Time, bool) {
	stamp, ok, err := t.repo.Get(ctx, key)
	if err != nil {
		t.logger.Warn("Failed to read cache stamp", "key", key, "error", err)
		return time.Time{}, false
	}
	return stamp, ok
}

// SetCacheTimestamp stamps key with the current time.
func (t *Tracker) SetCacheTimestamp(ctx context.Context, key string) error {
	return t.repo.Set(ctx, key, t.config.Now())
}

// Clear removes the stamp for key so the next check reports stale.
func (t *Tracker) Clear(ctx context.Context, key string) error {
	return t.repo.Delete(ctx, key)
}

// NewerThan reports whether key a was stamped after key b. A missing b
// with a present a counts as newer.
func (t *Tracker) NewerThan(ctx context.Context, a, b string) bool {
	sa, okA := t.Timestamp(ctx, a)
	if !okA {
		return false
	}
	sb, okB := t.Timestamp(ctx, b)
	if !okB {
		return true
	}
	return sa.After(sb)
}
