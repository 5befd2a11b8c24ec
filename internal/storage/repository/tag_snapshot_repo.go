package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// TagSnapshotRepository stores the last built tag partition for fast first paint.
type TagSnapshotRepository interface {
	// Get retrieves the snapshot for a partition. Returns nil if none is stored.
	Get(ctx context.Context, partition string) (*models.TagSnapshot, error)

	// Put replaces the snapshot for its partition.
	Put(ctx context.Context, snapshot *models.TagSnapshot) error

	// Delete removes the snapshot for a partition.
	Delete(ctx context.Context, partition string) error
}

type tagSnapshotRepository struct {
	db DBTX
}

// NewTagSnapshotRepository creates a new tag snapshot repository.
func NewTagSnapshotRepository(db DBTX) TagSnapshotRepository {
	return &tagSnapshotRepository{db: db}
}

func (r *tagSnapshotRepository) Get(ctx context.Context, partition string) (*models.TagSnapshot, error) {
	var (
		payload string
		builtAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT payload, built_at FROM tag_snapshots WHERE partition = ?`, partition).Scan(&payload, &builtAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag snapshot %s: %w", partition, err)
	}

	snap := &models.TagSnapshot{}
	if err := json.Unmarshal([]byte(payload), snap); err != nil {
		return nil, fmt.Errorf("failed to decode tag snapshot %s: %w", partition, err)
	}
	snap.Partition = partition
	snap.BuiltAt = time.UnixMilli(builtAt)
	return snap, nil
}

func (r *tagSnapshotRepository) Put(ctx context.Context, snapshot *models.TagSnapshot) error {
	if snapshot == nil || snapshot.Partition == "" {
		return fmt.Errorf("tag snapshot partition is required")
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode tag snapshot %s: %w", snapshot.Partition, err)
	}

	builtAt := snapshot.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tag_snapshots (partition, payload, built_at) VALUES (?, ?, ?)
		ON CONFLICT(partition) DO UPDATE SET payload = excluded.payload, built_at = excluded.built_at
	`, snapshot.Partition, string(payload), builtAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put tag snapshot %s: %w", snapshot.Partition, err)
	}
	return nil
}

func (r *tagSnapshotRepository) Delete(ctx context.Context, partition string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tag_snapshots WHERE partition = ?`, partition); err != nil {
		return fmt.Errorf("failed to delete tag snapshot %s: %w", partition, err)
	}
	return nil
}
