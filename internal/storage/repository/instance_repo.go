package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// InstanceRepository handles the local trainer's instances.
type InstanceRepository interface {
	// Get retrieves an instance by id. Returns nil if not found.
	Get(ctx context.Context, instanceID string) (*models.Instance, error)

	// GetAll retrieves every stored instance keyed by id.
	GetAll(ctx context.Context) (map[string]*models.Instance, error)

	// Put inserts or replaces an instance.
	Put(ctx context.Context, inst *models.Instance) error

	// PutMany inserts or replaces several instances.
	PutMany(ctx context.Context, instances []*models.Instance) error

	// Delete removes an instance.
	Delete(ctx context.Context, instanceID string) error

	// ReplaceAll drops every stored instance and writes the given set.
	ReplaceAll(ctx context.Context, instances map[string]*models.Instance) error
}

type instanceRepository struct {
	db DBTX
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db DBTX) InstanceRepository {
	return &instanceRepository{db: db}
}

func (r *instanceRepository) Get(ctx context.Context, instanceID string) (*models.Instance, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM instances WHERE instance_id = ?`, instanceID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance %s: %w", instanceID, err)
	}

	inst := &models.Instance{}
	if err := json.Unmarshal([]byte(payload), inst); err != nil {
		return nil, fmt.Errorf("failed to decode instance %s: %w", instanceID, err)
	}
	return inst, nil
}

func (r *instanceRepository) GetAll(ctx context.Context) (map[string]*models.Instance, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT instance_id, payload FROM instances`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	instances := make(map[string]*models.Instance)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		inst := &models.Instance{}
		if err := json.Unmarshal([]byte(payload), inst); err != nil {
			return nil, fmt.Errorf("failed to decode instance %s: %w", id, err)
		}
		if inst.InstanceID == "" {
			inst.InstanceID = id
		}
		instances[id] = inst
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}
	return instances, nil
}

func (r *instanceRepository) Put(ctx context.Context, inst *models.Instance) error {
	if inst == nil || inst.InstanceID == "" {
		return fmt.Errorf("instance id is required")
	}
	payload, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to encode instance %s: %w", inst.InstanceID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO instances (instance_id, variant_id, username, payload, last_update) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			variant_id = excluded.variant_id,
			username = excluded.username,
			payload = excluded.payload,
			last_update = excluded.last_update
	`, inst.InstanceID, inst.VariantKey(), inst.Username, string(payload), inst.LastUpdate)
	if err != nil {
		return fmt.Errorf("failed to put instance %s: %w", inst.InstanceID, err)
	}
	return nil
}

func (r *instanceRepository) PutMany(ctx context.Context, instances []*models.Instance) error {
	for _, inst := range instances {
		if err := r.Put(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}

func (r *instanceRepository) Delete(ctx context.Context, instanceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM instances WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", instanceID, err)
	}
	return nil
}

func (r *instanceRepository) ReplaceAll(ctx context.Context, instances map[string]*models.Instance) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM instances`); err != nil {
		return fmt.Errorf("failed to clear instances: %w", err)
	}
	for _, inst := range instances {
		if err := r.Put(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}
