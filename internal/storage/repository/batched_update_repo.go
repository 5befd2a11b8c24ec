package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// BatchedUpdateRepository persists the ordered log of pending mutations.
type BatchedUpdateRepository interface {
	// Put inserts or replaces the descriptor for a key. A replaced key moves to
	// the end of the order. Returns the assigned sequence number.
	Put(ctx context.Context, update *models.BatchedUpdate) (int64, error)

	// Get retrieves the descriptor for a key. Returns nil if not found.
	Get(ctx context.Context, key string) (*models.BatchedUpdate, error)

	// GetAll retrieves every descriptor in insertion order.
	GetAll(ctx context.Context) ([]*models.BatchedUpdate, error)

	// Delete removes a key unconditionally.
	Delete(ctx context.Context, key string) error

	// DeleteIfUnchanged removes a key only if its sequence number still
	// matches, reporting whether a row was removed.
	DeleteIfUnchanged(ctx context.Context, key string, seq int64) (bool, error)

	// RecordFailure bumps the attempt counter for an unchanged key.
	RecordFailure(ctx context.Context, key string, seq int64, message string) error

	// Count returns the number of pending descriptors.
	Count(ctx context.Context) (int, error)

	// Clear removes every descriptor.
	Clear(ctx context.Context) error
}

type batchedUpdateRepository struct {
	db DBTX
}

// NewBatchedUpdateRepository creates a new batched update repository.
func NewBatchedUpdateRepository(db DBTX) BatchedUpdateRepository {
	return &batchedUpdateRepository{db: db}
}

func (r *batchedUpdateRepository) Put(ctx context.Context, update *models.BatchedUpdate) (int64, error) {
	if update == nil || update.Key == "" {
		return 0, fmt.Errorf("batched update key is required")
	}
	payload := update.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}

	var seq int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO batched_updates (key, seq, operation, payload, last_update, attempts, last_error, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM batched_updates), ?, ?, ?, 0, '', ?)
		ON CONFLICT(key) DO UPDATE SET
			seq = excluded.seq,
			operation = excluded.operation,
			payload = excluded.payload,
			last_update = excluded.last_update,
			attempts = 0,
			last_error = ''
		RETURNING seq
	`, update.Key, update.Operation, string(payload), update.LastUpdate, nowMillis()).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to put batched update %s: %w", update.Key, err)
	}
	update.Seq = seq
	return seq, nil
}

func (r *batchedUpdateRepository) Get(ctx context.Context, key string) (*models.BatchedUpdate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT key, seq, operation, payload, last_update, attempts, last_error, created_at
		FROM batched_updates WHERE key = ?
	`, key)
	u, err := scanBatchedUpdate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batched update %s: %w", key, err)
	}
	return u, nil
}

func (r *batchedUpdateRepository) GetAll(ctx context.Context) ([]*models.BatchedUpdate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, seq, operation, payload, last_update, attempts, last_error, created_at
		FROM batched_updates ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batched updates: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var updates []*models.BatchedUpdate
	for rows.Next() {
		u, err := scanBatchedUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batched update: %w", err)
		}
		updates = append(updates, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batched updates: %w", err)
	}
	return updates, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatchedUpdate(s rowScanner) (*models.BatchedUpdate, error) {
	var (
		u         models.BatchedUpdate
		payload   string
		createdAt int64
	)
	if err := s.Scan(&u.Key, &u.Seq, &u.Operation, &payload, &u.LastUpdate, &u.Attempts, &u.LastError, &createdAt); err != nil {
		return nil, err
	}
	u.Payload = []byte(payload)
	u.CreatedAt = time.UnixMilli(createdAt)
	return &u, nil
}

func (r *batchedUpdateRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM batched_updates WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete batched update %s: %w", key, err)
	}
	return nil
}

func (r *batchedUpdateRepository) DeleteIfUnchanged(ctx context.Context, key string, seq int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM batched_updates WHERE key = ? AND seq = ?`, key, seq)
	if err != nil {
		return false, fmt.Errorf("failed to delete batched update %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *batchedUpdateRepository) RecordFailure(ctx context.Context, key string, seq int64, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE batched_updates SET attempts = attempts + 1, last_error = ?
		WHERE key = ? AND seq = ?
	`, message, key, seq)
	if err != nil {
		return fmt.Errorf("failed to record failure for batched update %s: %w", key, err)
	}
	return nil
}

func (r *batchedUpdateRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batched_updates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count batched updates: %w", err)
	}
	return n, nil
}

func (r *batchedUpdateRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM batched_updates`); err != nil {
		return fmt.Errorf("failed to clear batched updates: %w", err)
	}
	return nil
}
