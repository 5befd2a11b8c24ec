package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CacheStampRepository stores the last refresh time of each named cache.
type CacheStampRepository interface {
	// Get returns the stamp for key and whether one exists.
	Get(ctx context.Context, key string) (time.Time, bool, error)

	// Set stores the stamp for key.
	Set(ctx context.Context, key string, at time.Time) error

	// GetAll returns every stored stamp.
	GetAll(ctx context.Context) (map[string]time.Time, error)

	// Delete removes the stamp for key.
	Delete(ctx context.Context, key string) error
}

type cacheStampRepository struct {
	db DBTX
}

// NewCacheStampRepository creates a new cache stamp repository.
func NewCacheStampRepository(db DBTX) CacheStampRepository {
	return &cacheStampRepository{db: db}
}

func (r *cacheStampRepository) Get(ctx context.Context, key string) (time.Time, bool, error) {
	var ms int64
	err := r.db.QueryRowContext(ctx, `SELECT stamped_at FROM cache_stamps WHERE key = ?`, key).Scan(&ms)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get cache stamp %s: %w", key, err)
	}
	return time.UnixMilli(ms), true, nil
}

func (r *cacheStampRepository) Set(ctx context.Context, key string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_stamps (key, stamped_at) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET stamped_at = excluded.stamped_at
	`, key, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set cache stamp %s: %w", key, err)
	}
	return nil
}

func (r *cacheStampRepository) GetAll(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, stamped_at FROM cache_stamps`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache stamps: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	stamps := make(map[string]time.Time)
	for rows.Next() {
		var (
			key string
			ms  int64
		)
		if err := rows.Scan(&key, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan cache stamp: %w", err)
		}
		stamps[key] = time.UnixMilli(ms)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache stamps: %w", err)
	}
	return stamps, nil
}

func (r *cacheStampRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_stamps WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache stamp %s: %w", key, err)
	}
	return nil
}
