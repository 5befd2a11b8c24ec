package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// GroupingListRepository handles the named variant lists that ship with the catalog.
type GroupingListRepository interface {
	// GetAll retrieves every list keyed by name.
	GetAll(ctx context.Context) (models.GroupingLists, error)

	// Put inserts or replaces one list.
	Put(ctx context.Context, name string, variantIDs []string) error

	// Delete removes one list.
	Delete(ctx context.Context, name string) error

	// ReplaceAll drops every stored list and writes the given set.
	ReplaceAll(ctx context.Context, lists models.GroupingLists) error
}

type groupingListRepository struct {
	db DBTX
}

// NewGroupingListRepository creates a new grouping list repository.
func NewGroupingListRepository(db DBTX) GroupingListRepository {
	return &groupingListRepository{db: db}
}

func (r *groupingListRepository) GetAll(ctx context.Context) (models.GroupingLists, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, payload FROM grouping_lists`)
	if err != nil {
		return nil, fmt.Errorf("failed to query grouping lists: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	lists := make(models.GroupingLists)
	for rows.Next() {
		var name, payload string
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan grouping list: %w", err)
		}
		var ids []string
		if err := json.Unmarshal([]byte(payload), &ids); err != nil {
			return nil, fmt.Errorf("failed to decode grouping list %s: %w", name, err)
		}
		lists[name] = ids
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grouping lists: %w", err)
	}
	return lists, nil
}

func (r *groupingListRepository) Put(ctx context.Context, name string, variantIDs []string) error {
	if variantIDs == nil {
		variantIDs = []string{}
	}
	payload, err := json.Marshal(variantIDs)
	if err != nil {
		return fmt.Errorf("failed to encode grouping list %s: %w", name, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO grouping_lists (name, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, name, string(payload), nowMillis())
	if err != nil {
		return fmt.Errorf("failed to put grouping list %s: %w", name, err)
	}
	return nil
}

func (r *groupingListRepository) Delete(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM grouping_lists WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete grouping list %s: %w", name, err)
	}
	return nil
}

func (r *groupingListRepository) ReplaceAll(ctx context.Context, lists models.GroupingLists) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM grouping_lists`); err != nil {
		return fmt.Errorf("failed to clear grouping lists: %w", err)
	}
	for name, ids := range lists {
		if err := r.Put(ctx, name, ids); err != nil {
			return err
		}
	}
	return nil
}
