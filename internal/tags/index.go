// Package tags derives ownership buckets from the instance and variant stores.
// Buckets are never primary state; they are rebuilt whenever their inputs
// change and memoized on the input versions.
package tags

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/events"
	"github.com/ramonehamilton/Pokedex-Companion/internal/freshness"
	"github.com/ramonehamilton/Pokedex-Companion/internal/metrics"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// Partition names.
const (
	PartitionLocal   = "local"
	PartitionForeign = "foreign"
)

// VariantSource is the read side of the variant cache.
type VariantSource interface {
	Lookup() map[string]*models.Variant
	Loading() bool
	Version() uint64
}

// InstanceSource is the read side of the instance store.
type InstanceSource interface {
	Snapshot() (map[string]*models.Instance, uint64)
	Foreign() (map[string]*models.Instance, string, uint64)
	Loading() bool
}

// SnapshotStore persists built partitions for first paint.
type SnapshotStore interface {
	Get(ctx context.Context, partition string) (*models.TagSnapshot, error)
	Put(ctx context.Context, snapshot *models.TagSnapshot) error
}

// Freshness is the part of the freshness tracker the index consults.
type Freshness interface {
	IsCacheFresh(ctx context.Context, key string) bool
	SetCacheTimestamp(ctx context.Context, key string) error
	NewerThan(ctx context.Context, a, b string) bool
}

// Options holds the optional collaborators of an Index.
type Options struct {
	Logger    *slog.Logger
	Events    events.Publisher
	Metrics   *metrics.SyncMetrics
	Snapshots SnapshotStore
	Freshness Freshness
}

type partition struct {
	buckets  *models.TagBuckets
	children *models.SystemChildren
	owner    string

	variantsVersion uint64
	sourceVersion   uint64
	// verified is false for a snapshot hydrated from disk.
	verified bool
}

func (p *partition) matches(variantsVersion, sourceVersion uint64) bool {
	return p.verified && p.buckets != nil &&
		p.variantsVersion == variantsVersion && p.sourceVersion == sourceVersion
}

// Index holds the local and foreign tag partitions.
type Index struct {
	variants  VariantSource
	instances InstanceSource
	snapshots SnapshotStore
	fresh     Freshness
	events    events.Publisher
	metrics   *metrics.SyncMetrics
	logger    *slog.Logger

	// buildMu serializes builds so concurrent triggers cannot interleave.
	buildMu sync.Mutex

	mu      sync.RWMutex
	local   partition
	foreign partition
	loading bool
}

// New creates an empty index.
func New(variants VariantSource, instances InstanceSource, opts Options) *Index {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		variants:  variants,
		instances: instances,
		snapshots: opts.Snapshots,
		fresh:     opts.Freshness,
		events:    opts.Events,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "tags"),
		local:     partition{buckets: models.NewTagBuckets(), children: emptyChildren()},
		foreign:   partition{buckets: models.NewTagBuckets(), children: emptyChildren()},
		loading:   true,
	}
}

// BuildTags rebuilds the local partition. It returns nil without building
// while either store is still loading. Unchanged inputs return the previous
// buckets pointer.
func (x *Index) BuildTags(ctx context.Context) *models.TagBuckets {
	if x.variants.Loading() || x.instances.Loading() {
		return nil
	}

	x.buildMu.Lock()
	defer x.buildMu.Unlock()

	start := time.Now()
	vv := x.variants.Version()
	data, iv := x.instances.Snapshot()

	x.mu.RLock()
	if x.local.matches(vv, iv) {
		buckets := x.local.buckets
		x.mu.RUnlock()
		x.metrics.ObserveTagBuild(PartitionLocal, true, time.Since(start))
		return buckets
	}
	x.mu.RUnlock()

	buckets := x.build(data, x.variants.Lookup(), PartitionLocal)
	children := ComputeSystemChildren(buckets)

	x.mu.Lock()
	x.local = partition{
		buckets:         buckets,
		children:        children,
		variantsVersion: vv,
		sourceVersion:   iv,
		verified:        true,
	}
	x.loading = false
	x.mu.Unlock()

	x.persist(ctx, buckets, children)
	x.metrics.ObserveTagBuild(PartitionLocal, false, time.Since(start))
	x.publish(ctx, PartitionLocal, buckets)
	return buckets
}

// BuildForeignTags rebuilds the foreign partition. The local partition is
// never touched.
func (x *Index) BuildForeignTags(ctx context.Context) *models.TagBuckets {
	if x.variants.Loading() {
		return nil
	}

	x.buildMu.Lock()
	defer x.buildMu.Unlock()

	start := time.Now()
	vv := x.variants.Version()
	data, owner, fv := x.instances.Foreign()

	x.mu.RLock()
	if x.foreign.matches(vv, fv) {
		buckets := x.foreign.buckets
		x.mu.RUnlock()
		x.metrics.ObserveTagBuild(PartitionForeign, true, time.Since(start))
		return buckets
	}
	x.mu.RUnlock()

	buckets := x.build(data, x.variants.Lookup(), PartitionForeign)
	children := ComputeSystemChildren(buckets)

	x.mu.Lock()
	x.foreign = partition{
		buckets:         buckets,
		children:        children,
		owner:           owner,
		variantsVersion: vv,
		sourceVersion:   fv,
		verified:        true,
	}
	x.mu.Unlock()

	x.metrics.ObserveTagBuild(PartitionForeign, false, time.Since(start))
	x.publish(ctx, PartitionForeign, buckets)
	return buckets
}

// HydrateFromCache serves the persisted local snapshot when the tags stamp is
// fresh and no newer than the instances stamp. The snapshot stays unverified,
// so the next BuildTags always recomputes. Otherwise it builds.
func (x *Index) HydrateFromCache(ctx context.Context) {
	if x.snapshots == nil || x.fresh == nil ||
		!x.fresh.IsCacheFresh(ctx, freshness.KeyTags) ||
		x.fresh.NewerThan(ctx, freshness.KeyInstances, freshness.KeyTags) {
		x.BuildTags(ctx)
		return
	}

	snap, err := x.snapshots.Get(ctx, PartitionLocal)
	if err != nil || snap == nil || snap.Buckets == nil {
		if err != nil {
			x.logger.Warn("Failed to read tag snapshot", "error", err)
		}
		x.BuildTags(ctx)
		return
	}

	buckets := normalize(snap.Buckets)
	children := snap.Children
	if children == nil {
		children = ComputeSystemChildren(buckets)
	}

	x.mu.Lock()
	if x.local.verified {
		x.mu.Unlock()
		return
	}
	x.local = partition{buckets: buckets, children: children}
	x.loading = false
	x.mu.Unlock()

	x.logger.Debug("Hydrated tags from cache", "builtAt", snap.BuiltAt)
	x.publish(ctx, PartitionLocal, buckets)
}

// Reset drops both partitions.
func (x *Index) Reset() {
	x.buildMu.Lock()
	defer x.buildMu.Unlock()

	x.mu.Lock()
	defer x.mu.Unlock()
	x.local = partition{buckets: models.NewTagBuckets(), children: emptyChildren()}
	x.foreign = partition{buckets: models.NewTagBuckets(), children: emptyChildren()}
	x.loading = true
}

// Tags returns the local buckets. Shared, read-only.
func (x *Index) Tags() *models.TagBuckets {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.local.buckets
}

// SystemChildren returns the built-in sub-tags of the local partition.
func (x *Index) SystemChildren() *models.SystemChildren {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.local.children
}

// ForeignTags returns the foreign buckets and their owner. Shared, read-only.
func (x *Index) ForeignTags() (*models.TagBuckets, string) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.foreign.buckets, x.foreign.owner
}

// Loading reports whether the local partition has never been built or hydrated.
func (x *Index) Loading() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.loading
}

func (x *Index) build(data map[string]*models.Instance, lookup map[string]*models.Variant, name string) *models.TagBuckets {
	buckets := models.NewTagBuckets()
	var missing map[string]int

	for id, inst := range data {
		key := inst.VariantKey()
		variant, ok := lookup[key]
		if !ok {
			if missing == nil {
				missing = map[string]int{}
			}
			missing[key]++
			continue
		}

		item := newItem(id, inst, variant)
		if inst.IsCaught {
			buckets.Caught[id] = item
		}
		if inst.IsForTrade {
			buckets.Trade[id] = item
		}
		if inst.IsWanted {
			buckets.Wanted[id] = item
		}
		if inst.IsMissing() {
			buckets.Missing[id] = item
		}
	}

	for key, n := range missing {
		x.logger.Warn("Instances reference a missing variant", "partition", name, "variant", key, "instances", n)
	}
	return buckets
}

func (x *Index) persist(ctx context.Context, buckets *models.TagBuckets, children *models.SystemChildren) {
	if x.snapshots == nil {
		return
	}
	err := x.snapshots.Put(ctx, &models.TagSnapshot{
		Partition: PartitionLocal,
		Buckets:   buckets,
		Children:  children,
		BuiltAt:   time.Now(),
	})
	if err != nil {
		x.logger.Warn("Failed to persist tag snapshot", "error", err)
		return
	}
	if x.fresh != nil {
		if err := x.fresh.SetCacheTimestamp(ctx, freshness.KeyTags); err != nil {
			x.logger.Warn("Failed to stamp tags", "error", err)
		}
	}
}

func (x *Index) publish(ctx context.Context, name string, b *models.TagBuckets) {
	events.Publish(ctx, x.events, events.TopicTagsRebuilt, events.TagsRebuiltEvent{
		Partition: name,
		Caught:    len(b.Caught),
		Trade:     len(b.Trade),
		Wanted:    len(b.Wanted),
		Missing:   len(b.Missing),
	})
}

func newItem(id string, inst *models.Instance, v *models.Variant) models.TagItem {
	image := v.CurrentImage
	if inst.Gender == "Female" && v.FemaleImage != "" {
		image = v.FemaleImage
	}
	return models.TagItem{
		InstanceID:      id,
		VariantID:       v.VariantID,
		Name:            v.Name,
		PokedexNumber:   v.PokedexNumber,
		CurrentImage:    image,
		VariantType:     v.VariantType,
		Rarity:          v.Rarity,
		CP:              inst.CP,
		HP:              inst.HP,
		Gender:          inst.Gender,
		Favorite:        inst.Favorite,
		MostWanted:      inst.MostWanted,
		IsForTrade:      inst.IsForTrade,
		Mirror:          inst.Mirror,
		PrefLucky:       inst.PrefLucky,
		FriendshipLevel: inst.FriendshipLevel,
		LocationCard:    inst.LocationCard,
	}
}

// ComputeSystemChildren derives the favorite, trade and most-wanted sub-tags.
// caught.trade is the union of caught items marked for trade and the trade
// bucket.
func ComputeSystemChildren(b *models.TagBuckets) *models.SystemChildren {
	sc := emptyChildren()
	for id, item := range b.Caught {
		if item.Favorite {
			sc.CaughtFavorite[id] = item
		}
		if item.IsForTrade {
			sc.CaughtTrade[id] = item
		}
	}
	for id, item := range b.Trade {
		sc.CaughtTrade[id] = item
	}
	for id, item := range b.Wanted {
		if item.MostWanted {
			sc.WantedMostWanted[id] = item
		}
	}
	return sc
}

func emptyChildren() *models.SystemChildren {
	return &models.SystemChildren{
		CaughtFavorite:   map[string]models.TagItem{},
		CaughtTrade:      map[string]models.TagItem{},
		WantedMostWanted: map[string]models.TagItem{},
	}
}

func normalize(b *models.TagBuckets) *models.TagBuckets {
	if b.Caught == nil {
		b.Caught = map[string]models.TagItem{}
	}
	if b.Trade == nil {
		b.Trade = map[string]models.TagItem{}
	}
	if b.Wanted == nil {
		b.Wanted = map[string]models.TagItem{}
	}
	if b.Missing == nil {
		b.Missing = map[string]models.TagItem{}
	}
	return b
}
