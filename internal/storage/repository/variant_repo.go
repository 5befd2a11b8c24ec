package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// VariantRepository handles the persisted catalog of variants.
type VariantRepository interface {
	// Get retrieves a variant by key. Returns nil if not found.
	Get(ctx context.Context, variantID string) (*models.Variant, error)

	// GetAll retrieves every variant ordered by pokedex number.
	GetAll(ctx context.Context) ([]models.Variant, error)

	// Put inserts or replaces a single variant.
	Put(ctx context.Context, v *models.Variant) error

	// Delete removes a variant.
	Delete(ctx context.Context, variantID string) error

	// ReplaceAll drops every stored variant and writes the given set.
	// Callers wanting atomicity bind the repository to a transaction.
	ReplaceAll(ctx context.Context, variants []models.Variant) error
}

type variantRepository struct {
	db DBTX
}

// NewVariantRepository creates a new variant repository.
func NewVariantRepository(db DBTX) VariantRepository {
	return &variantRepository{db: db}
}

func (r *variantRepository) Get(ctx context.Context, variantID string) (*models.Variant, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM variants WHERE variant_id = ?`, variantID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get variant %s: %w", variantID, err)
	}

	var v models.Variant
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("failed to decode variant %s: %w", variantID, err)
	}
	return &v, nil
}

func (r *variantRepository) GetAll(ctx context.Context) ([]models.Variant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT variant_id, payload FROM variants ORDER BY pokedex_number, variant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error - cleanup operation
	}()

	var variants []models.Variant
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		var v models.Variant
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("failed to decode variant %s: %w", id, err)
		}
		variants = append(variants, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}

	return variants, nil
}

func (r *variantRepository) Put(ctx context.Context, v *models.Variant) error {
	if v == nil || v.VariantID == "" {
		return fmt.Errorf("variant id is required")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode variant %s: %w", v.VariantID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO variants (variant_id, pokedex_number, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(variant_id) DO UPDATE SET
			pokedex_number = excluded.pokedex_number,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, v.VariantID, v.PokedexNumber, string(payload), nowMillis())
	if err != nil {
		return fmt.Errorf("failed to put variant %s: %w", v.VariantID, err)
	}
	return nil
}

func (r *variantRepository) Delete(ctx context.Context, variantID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM variants WHERE variant_id = ?`, variantID); err != nil {
		return fmt.Errorf("failed to delete variant %s: %w", variantID, err)
	}
	return nil
}

func (r *variantRepository) ReplaceAll(ctx context.Context, variants []models.Variant) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM variants`); err != nil {
		return fmt.Errorf("failed to clear variants: %w", err)
	}
	for i := range variants {
		if err := r.Put(ctx, &variants[i]); err != nil {
			return err
		}
	}
	return nil
}
