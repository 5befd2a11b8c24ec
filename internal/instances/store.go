// Package instances holds the local trainer's ownership records and the
// read-only collection of another trainer being viewed.
package instances

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/batch"
	"github.com/ramonehamilton/Pokedex-Companion/internal/events"
	"github.com/ramonehamilton/Pokedex-Companion/internal/session"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// Persister is the storage the store reads from and writes through.
type Persister interface {
	LoadInstances(ctx context.Context) (map[string]*models.Instance, error)
	SaveInstances(ctx context.Context, instances []*models.Instance, updates []*models.BatchedUpdate) error
	DeleteInstance(ctx context.Context, instanceID string, update *models.BatchedUpdate) error
	ReplaceInstances(ctx context.Context, instances map[string]*models.Instance) error
	PendingKeys(ctx context.Context) (map[string]struct{}, error)
}

// VariantSource is the part of the variant cache the store joins against.
type VariantSource interface {
	WaitReady(ctx context.Context) error
	Variant(key string) (*models.Variant, bool)
}

// Flusher drains the batched update queue.
type Flusher interface {
	CheckAndFlush(ctx context.Context) (*batch.FlushReport, error)
}

// FlushScheduler requests a debounced flush.
type FlushScheduler interface {
	Schedule()
}

// Stamper records when the instance collection was last synced.
type Stamper interface {
	SetCacheTimestamp(ctx context.Context, key string) error
}

// Options holds the optional collaborators of a Store.
type Options struct {
	Logger    *slog.Logger
	Events    events.Publisher
	Session   session.Session
	Flusher   Flusher
	Scheduler FlushScheduler
	Stamper   Stamper
	Now       func() time.Time
	// NewID generates the suffix of new instance ids. Default: uuid.NewString.
	NewID func() string
}

// Store is the in-memory instance collection.
type Store struct {
	persist   Persister
	variants  VariantSource
	events    events.Publisher
	session   session.Session
	flusher   Flusher
	scheduler FlushScheduler
	stamper   Stamper
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu             sync.RWMutex
	instances      map[string]*models.Instance
	foreign        map[string]*models.Instance
	foreignOwner   string
	orphans        []string
	loading        bool
	version        uint64
	foreignVersion uint64
	generation     uint64
	foreignGen     uint64

	// writeMu serializes read-modify-write mutations.
	writeMu sync.Mutex

	bootstrapped atomic.Bool
}

// New creates an empty store in the loading state.
func New(persist Persister, variants VariantSource, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = defaultNewID
	}
	return &Store{
		persist:   persist,
		variants:  variants,
		events:    opts.Events,
		session:   opts.Session,
		flusher:   opts.Flusher,
		scheduler: opts.Scheduler,
		stamper:   opts.Stamper,
		logger:    logger.With("component", "instances"),
		now:       now,
		newID:     newID,
		instances: map[string]*models.Instance{},
		foreign:   map[string]*models.Instance{},
		loading:   true,
	}
}

// HydrateInstances replaces the collection and clears the loading flag.
func (s *Store) HydrateInstances(ctx context.Context, data map[string]*models.Instance) {
	s.mu.Lock()
	s.generation++
	version := s.replaceLocked(data)
	count := len(s.instances)
	s.mu.Unlock()

	s.publishLocal(ctx, version, count, "hydrate")
}

func (s *Store) replaceLocked(data map[string]*models.Instance) uint64 {
	next := make(map[string]*models.Instance, len(data))
	for id, inst := range data {
		if inst == nil {
			continue
		}
		c := inst.Clone()
		if c.InstanceID == "" {
			c.InstanceID = id
		}
		next[id] = c
	}
	s.instances = next
	s.loading = false
	s.version++
	return s.version
}

// Bootstrap loads the persisted collection once. It waits for the variant
// cache to be ready; if ctx ends first the guard is released so a later call
// can try again. Load failures are logged and still clear the loading flag.
// When the trainer is signed in, the batched update queue is flushed after.
func (s *Store) Bootstrap(ctx context.Context) error {
	if !s.bootstrapped.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	if err := s.variants.WaitReady(ctx); err != nil {
		s.bootstrapped.Store(false)
		return err
	}

	data, err := s.persist.LoadInstances(ctx)
	if err != nil {
		s.logger.Error("Failed to load instances", "error", err)
		s.mu.Lock()
		s.loading = false
		s.version++
		version := s.version
		count := len(s.instances)
		s.mu.Unlock()
		s.publishLocal(ctx, version, count, "bootstrap-failed")
		return nil
	}

	orphans := make([]string, 0)
	for id, inst := range data {
		if _, ok := s.variants.Variant(inst.VariantKey()); !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale instance load", "loaded", len(data))
		return nil
	}
	s.generation++
	s.orphans = orphans
	version := s.replaceLocked(data)
	count := len(s.instances)
	s.mu.Unlock()

	if len(orphans) > 0 {
		s.logger.Warn("Instances reference unknown variants", "count", len(orphans))
	}
	s.logger.Info("Instances loaded", "count", count)
	s.publishLocal(ctx, version, count, "bootstrap")

	if s.flusher != nil && s.session != nil && s.session.Authenticated() {
		if _, err := s.flusher.CheckAndFlush(ctx); err != nil {
			s.logger.Warn("Post-bootstrap flush failed", "error", err)
		}
	}
	return nil
}

// Reset empties both collections and re-arms Bootstrap. A load already in
// progress will be discarded.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	s.instances = map[string]*models.Instance{}
	s.orphans = nil
	s.loading = true
	s.version++
	version := s.version
	s.mu.Unlock()
	s.bootstrapped.Store(false)

	s.publishLocal(ctx, version, 0, "reset")
	s.ResetForeignInstances(ctx)
}

// Get returns a copy of one local instance.
func (s *Store) Get(id string) (*models.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, false
	}
	return inst.Clone(), true
}

// Snapshot returns the current local collection. The map and its values are
// shared with other readers of this version and must not be modified.
func (s *Store) Snapshot() (map[string]*models.Instance, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances, s.version
}

// Foreign returns the viewed trainer's collection and its owner. Shared, read-only.
func (s *Store) Foreign() (map[string]*models.Instance, string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.foreign, s.foreignOwner, s.foreignVersion
}

// Orphans returns ids of instances whose variant was missing at bootstrap.
func (s *Store) Orphans() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.orphans))
	copy(out, s.orphans)
	return out
}

// Loading reports whether the local collection has not been loaded yet.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Version increases on every local change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ForeignVersion increases on every foreign change.
func (s *Store) ForeignVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.foreignVersion
}

// LocalToken returns the current load generation. Pass it to MergePulled
// so a pull that started before a reset or reload is discarded.
func (s *Store) LocalToken() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// BeginForeign claims the foreign partition for a new fetch. Results of
// fetches that began earlier are discarded by ApplyForeign.
func (s *Store) BeginForeign() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreignGen++
	return s.foreignGen
}

// ApplyForeign replaces the foreign partition if token is still the latest
// claim. It reports whether the data was applied.
func (s *Store) ApplyForeign(ctx context.Context, token uint64, owner string, data map[string]*models.Instance) bool {
	next := make(map[string]*models.Instance, len(data))
	for id, inst := range data {
		if inst != nil {
			next[id] = inst.Clone()
		}
	}

	s.mu.Lock()
	if token != s.foreignGen {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale foreign collection", "owner", owner)
		return false
	}
	s.foreign = next
	s.foreignOwner = owner
	s.foreignVersion++
	version := s.foreignVersion
	s.mu.Unlock()

	events.Publish(ctx, s.events, events.TopicForeignInstancesChanged, events.ForeignInstancesChangedEvent{
		Version:  version,
		Count:    len(next),
		Username: owner,
	})
	return true
}

// SetForeignInstances replaces the read-only collection of another trainer,
// superseding any fetch in flight.
func (s *Store) SetForeignInstances(ctx context.Context, owner string, data map[string]*models.Instance) {
	s.ApplyForeign(ctx, s.BeginForeign(), owner, data)
}

// ResetForeignInstances clears the foreign collection.
func (s *Store) ResetForeignInstances(ctx context.Context) {
	s.SetForeignInstances(ctx, "", nil)
}

func (s *Store) publishLocal(ctx context.Context, version uint64, count int, reason string) {
	events.Publish(ctx, s.events, events.TopicInstancesChanged, events.InstancesChangedEvent{
		Version: version,
		Count:   count,
		Reason:  reason,
	})
}
