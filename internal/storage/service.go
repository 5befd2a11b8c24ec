package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/repository"
)

// Service provides the repositories plus the multi-table writes that must
// commit together.
type Service struct {
	db            *DB
	variants      repository.VariantRepository
	groupingLists repository.GroupingListRepository
	instances     repository.InstanceRepository
	trades        repository.TradeRepository
	updates       repository.BatchedUpdateRepository
	tagSnapshots  repository.TagSnapshotRepository
	cacheStamps   repository.CacheStampRepository
}

// NewService creates a new storage service.
func NewService(db *DB) *Service {
	conn := db.Conn()
	return &Service{
		db:            db,
		variants:      repository.NewVariantRepository(conn),
		groupingLists: repository.NewGroupingListRepository(conn),
		instances:     repository.NewInstanceRepository(conn),
		trades:        repository.NewTradeRepository(conn),
		updates:       repository.NewBatchedUpdateRepository(conn),
		tagSnapshots:  repository.NewTagSnapshotRepository(conn),
		cacheStamps:   repository.NewCacheStampRepository(conn),
	}
}

// DB returns the underlying database wrapper.
func (s *Service) DB() *DB { return s.db }

// Close closes the database connection.
func (s *Service) Close() error { return s.db.Close() }

// Variants returns the variant repository.
func (s *Service) Variants() repository.VariantRepository { return s.variants }

// GroupingLists returns the grouping list repository.
func (s *Service) GroupingLists() repository.GroupingListRepository { return s.groupingLists }

// Instances returns the instance repository.
func (s *Service) Instances() repository.InstanceRepository { return s.instances }

// Trades returns the trade repository.
func (s *Service) Trades() repository.TradeRepository { return s.trades }

// BatchedUpdates returns the pending-update repository.
func (s *Service) BatchedUpdates() repository.BatchedUpdateRepository { return s.updates }

// TagSnapshots returns the tag snapshot repository.
func (s *Service) TagSnapshots() repository.TagSnapshotRepository { return s.tagSnapshots }

// CacheStamps returns the freshness stamp repository.
func (s *Service) CacheStamps() repository.CacheStampRepository { return s.cacheStamps }

// LoadCatalog reads the persisted variants and grouping lists.
func (s *Service) LoadCatalog(ctx context.Context) (*models.Catalog, error) {
	variants, err := s.variants.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	lists, err := s.groupingLists.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Catalog{Variants: variants, GroupingLists: lists}, nil
}

// SaveCatalog replaces the persisted variants and grouping lists atomically.
func (s *Service) SaveCatalog(ctx context.Context, catalog *models.Catalog) error {
	if catalog == nil {
		return fmt.Errorf("catalog cannot be nil")
	}
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := repository.NewVariantRepository(tx).ReplaceAll(ctx, catalog.Variants); err != nil {
			return fmt.Errorf("failed to store variants: %w", err)
		}
		if err := repository.NewGroupingListRepository(tx).ReplaceAll(ctx, catalog.GroupingLists); err != nil {
			return fmt.Errorf("failed to store grouping lists: %w", err)
		}
		return nil
	})
}

// LoadInstances reads every persisted instance.
func (s *Service) LoadInstances(ctx context.Context) (map[string]*models.Instance, error) {
	return s.instances.GetAll(ctx)
}

// SaveInstances writes the instances and enqueues their batched updates in
// one transaction, so a crash cannot leave a mutation without its replay entry.
func (s *Service) SaveInstances(ctx context.Context, instances []*models.Instance, updates []*models.BatchedUpdate) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := repository.NewInstanceRepository(tx).PutMany(ctx, instances); err != nil {
			return err
		}
		return putUpdates(ctx, tx, updates)
	})
}

// DeleteInstance removes an instance and enqueues its delete descriptor.
func (s *Service) DeleteInstance(ctx context.Context, instanceID string, update *models.BatchedUpdate) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := repository.NewInstanceRepository(tx).Delete(ctx, instanceID); err != nil {
			return err
		}
		if update == nil {
			return nil
		}
		return putUpdates(ctx, tx, []*models.BatchedUpdate{update})
	})
}

// ReplaceInstances makes the given set the authoritative local collection.
func (s *Service) ReplaceInstances(ctx context.Context, instances map[string]*models.Instance) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		return repository.NewInstanceRepository(tx).ReplaceAll(ctx, instances)
	})
}

// PendingKeys returns the keys of every batched update not yet applied
// remotely.
func (s *Service) PendingKeys(ctx context.Context) (map[string]struct{}, error) {
	updates, err := s.updates.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending updates: %w", err)
	}
	keys := make(map[string]struct{}, len(updates))
	for _, u := range updates {
		keys[u.Key] = struct{}{}
	}
	return keys, nil
}

// LoadTrades reads every trade and related instance snapshot.
func (s *Service) LoadTrades(ctx context.Context) (map[string]*models.TradeRecord, map[string]*models.RelatedInstance, error) {
	trades, err := s.trades.GetAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	related, err := s.trades.GetAllRelated(ctx)
	if err != nil {
		return nil, nil, err
	}
	return trades, related, nil
}

// SaveTrades writes trades, related snapshots and batched updates together.
func (s *Service) SaveTrades(ctx context.Context, trades []*models.TradeRecord, related []*models.RelatedInstance, updates []*models.BatchedUpdate) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := repository.NewTradeRepository(tx)
		for _, t := range trades {
			if err := repo.Put(ctx, t); err != nil {
				return err
			}
		}
		for _, r := range related {
			if err := repo.PutRelated(ctx, r); err != nil {
				return err
			}
		}
		return putUpdates(ctx, tx, updates)
	})
}

// FindOpenTrade returns the open trade for an ordered instance pair, or nil.
func (s *Service) FindOpenTrade(ctx context.Context, proposedInstanceID string, acceptingInstanceID *string) (*models.TradeRecord, error) {
	return s.trades.FindOpenByPair(ctx, proposedInstanceID, acceptingInstanceID)
}

// DeleteTrades removes trades the remote authority reported as deleted.
func (s *Service) DeleteTrades(ctx context.Context, tradeIDs []string) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		repo := repository.NewTradeRepository(tx)
		for _, id := range tradeIDs {
			if err := repo.Delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func putUpdates(ctx context.Context, tx *sql.Tx, updates []*models.BatchedUpdate) error {
	repo := repository.NewBatchedUpdateRepository(tx)
	for _, u := range updates {
		if _, err := repo.Put(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
