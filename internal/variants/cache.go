// Package variants holds the catalog of variants and grouping lists, served
// from the local store and refreshed from the remote authority when stale.
package variants

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/events"
	"github.com/ramonehamilton/Pokedex-Companion/internal/freshness"
	"github.com/ramonehamilton/Pokedex-Companion/internal/metrics"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// Store persists the catalog snapshot.
type Store interface {
	LoadCatalog(ctx context.Context) (*models.Catalog, error)
	SaveCatalog(ctx context.Context, catalog *models.Catalog) error
}

// Fetcher retrieves the authoritative catalog.
type Fetcher interface {
	FetchCatalog(ctx context.Context) (*models.Catalog, error)
}

// Freshness answers whether a cached collection is still within its TTL.
type Freshness interface {
	IsCacheFresh(ctx context.Context, key string) bool
	SetCacheTimestamp(ctx context.Context, key string) error
	Clear(ctx context.Context, key string) error
}

// RefreshOutcome describes what a RefreshVariants call did.
type RefreshOutcome int

const (
	// RefreshSkipped means another refresh was already running.
	RefreshSkipped RefreshOutcome = iota
	// RefreshServedCache means both freshness keys were fresh; no network call.
	RefreshServedCache
	// RefreshFetched means fresh data was fetched, persisted and published.
	RefreshFetched
	// RefreshFellBack means the fetch failed and the existing cache (possibly
	// empty) was kept.
	RefreshFellBack
	// RefreshDiscarded means the cache was reset while the refresh ran.
	RefreshDiscarded
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshSkipped:
		return "skipped"
	case RefreshServedCache:
		return "served_cache"
	case RefreshFetched:
		return "fetched"
	case RefreshFellBack:
		return "fell_back"
	case RefreshDiscarded:
		return "discarded"
	}
	return "unknown"
}

// Options holds the optional collaborators of a Cache.
type Options struct {
	Logger  *slog.Logger
	Events  events.Publisher
	Metrics *metrics.SyncMetrics
}

// Cache is the in-memory variant catalog.
type Cache struct {
	store     Store
	fetcher   Fetcher
	freshness Freshness
	events    events.Publisher
	metrics   *metrics.SyncMetrics
	logger    *slog.Logger

	mu       sync.RWMutex
	variants []models.Variant
	byKey    map[string]*models.Variant
	lists    models.GroupingLists
	loading  bool
	version  uint64
	ready    chan struct{}
	isReady  bool

	epoch    atomic.Uint64
	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// New creates an empty cache in the loading state.
func New(store Store, fetcher Fetcher, fresh Freshness, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:     store,
		fetcher:   fetcher,
		freshness: fresh,
		events:    opts.Events,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "variants"),
		byKey:     map[string]*models.Variant{},
		lists:     models.GroupingLists{},
		loading:   true,
		ready:     make(chan struct{}),
	}
}

// LoadCache reads the persisted snapshot. It never fails: read errors are
// logged and yield an empty catalog.
func (c *Cache) LoadCache(ctx context.Context) *models.Catalog {
	catalog, err := c.store.LoadCatalog(ctx)
	if err != nil {
		c.logger.Warn("Failed to read variant cache", "error", err)
		return &models.Catalog{GroupingLists: models.GroupingLists{}}
	}
	if catalog == nil {
		return &models.Catalog{GroupingLists: models.GroupingLists{}}
	}
	if catalog.GroupingLists == nil {
		catalog.GroupingLists = models.GroupingLists{}
	}
	return catalog
}

// FetchFresh retrieves the catalog from the remote authority.
func (c *Cache) FetchFresh(ctx context.Context) (*models.Catalog, error) {
	return c.fetcher.FetchCatalog(ctx)
}

// HydrateFromCache publishes the persisted catalog immediately when it is
// non-empty and starts a background refresh when either freshness key is
// stale or the cache is empty. It does not wait for the refresh.
func (c *Cache) HydrateFromCache(ctx context.Context) {
	epoch := c.epoch.Load()
	catalog := c.LoadCache(ctx)
	if !catalog.IsEmpty() {
		c.publish(ctx, epoch, catalog, "cache")
	}

	if !catalog.IsEmpty() && c.fresh(ctx) {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.RefreshVariants(context.WithoutCancel(ctx))
	}()
}

// RefreshVariants re-serves the cache when both keys are fresh and the cache
// is non-empty, and otherwise fetches, persists and stamps. A call made while another refresh is running
// returns RefreshSkipped without doing anything.
func (c *Cache) RefreshVariants(ctx context.Context) RefreshOutcome {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Debug("Variant refresh already in flight, dropping call")
		return RefreshSkipped
	}
	defer c.inFlight.Store(false)

	start := time.Now()
	outcome := c.refresh(ctx)
	c.metrics.ObserveRefresh(outcome.String(), outcome == RefreshFetched || outcome == RefreshFellBack, time.Since(start))
	return outcome
}

func (c *Cache) refresh(ctx context.Context) RefreshOutcome {
	epoch := c.epoch.Load()

	if c.fresh(ctx) {
		if cached := c.LoadCache(ctx); !cached.IsEmpty() {
			if !c.publishOrFinish(ctx, epoch, cached, "cache") {
				return RefreshDiscarded
			}
			return RefreshServedCache
		}
		c.logger.Info("Variant cache empty despite fresh stamps, fetching")
	}

	catalog, err := c.FetchFresh(ctx)
	if err != nil {
		c.logger.Warn("Variant fetch failed, falling back to cache", "error", err)
		if !c.publishOrFinish(ctx, epoch, c.LoadCache(ctx), "cache") {
			return RefreshDiscarded
		}
		return RefreshFellBack
	}
	if catalog.GroupingLists == nil {
		catalog.GroupingLists = models.GroupingLists{}
	}

	if c.epoch.Load() != epoch {
		c.logger.Debug("Discarding variant refresh started before reset")
		return RefreshDiscarded
	}

	if err := c.store.SaveCatalog(ctx, catalog); err != nil {
		// Still serve what was fetched; freshness stays stale so the next
		// refresh retries the write.
		c.logger.Warn("Failed to persist variants", "error", err)
	} else {
		for _, key := range []string{freshness.KeyVariants, freshness.KeyGroupingLists} {
			if err := c.freshness.SetCacheTimestamp(ctx, key); err != nil {
				c.logger.Warn("Failed to stamp cache", "key", key, "error", err)
			}
		}
	}

	if !c.publishOrFinish(ctx, epoch, catalog, "remote") {
		return RefreshDiscarded
	}
	c.logger.Info("Variants refreshed", "variants", len(catalog.Variants), "lists", len(catalog.GroupingLists))
	return RefreshFetched
}

// ForceRefresh clears both freshness keys and refreshes.
func (c *Cache) ForceRefresh(ctx context.Context) RefreshOutcome {
	for _, key := range []string{freshness.KeyVariants, freshness.KeyGroupingLists} {
		if err := c.freshness.Clear(ctx, key); err != nil {
			c.logger.Warn("Failed to clear cache stamp", "key", key, "error", err)
		}
	}
	return c.RefreshVariants(ctx)
}

// Reset drops the in-memory catalog and returns to the loading state. Any
// refresh still running will discard its result.
func (c *Cache) Reset() {
	c.epoch.Add(1)

	c.mu.Lock()
	c.variants = nil
	c.byKey = map[string]*models.Variant{}
	c.lists = models.GroupingLists{}
	c.loading = true
	c.version++
	if c.isReady {
		c.ready = make(chan struct{})
		c.isReady = false
	}
	c.mu.Unlock()
}

// Wait blocks until background refreshes started by HydrateFromCache return.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) fresh(ctx context.Context) bool {
	return c.freshness.IsCacheFresh(ctx, freshness.KeyVariants) &&
		c.freshness.IsCacheFresh(ctx, freshness.KeyGroupingLists)
}

// publishOrFinish publishes a non-empty catalog, or just clears loading when
// it is empty. Returns false when the epoch moved on.
func (c *Cache) publishOrFinish(ctx context.Context, epoch uint64, catalog *models.Catalog, source string) bool {
	if catalog.IsEmpty() {
		return c.finishLoading(epoch)
	}
	return c.publish(ctx, epoch, catalog, source)
}

func (c *Cache) finishLoading(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch.Load() != epoch {
		return false
	}
	c.loading = false
	return true
}

func (c *Cache) publish(ctx context.Context, epoch uint64, catalog *models.Catalog, source string) bool {
	variants := make([]models.Variant, len(catalog.Variants))
	copy(variants, catalog.Variants)
	sort.SliceStable(variants, func(i, j int) bool {
		if variants[i].PokedexNumber != variants[j].PokedexNumber {
			return variants[i].PokedexNumber < variants[j].PokedexNumber
		}
		return variants[i].VariantID < variants[j].VariantID
	})
	byKey := make(map[string]*models.Variant, len(variants))
	for i := range variants {
		byKey[variants[i].VariantID] = &variants[i]
	}

	c.mu.Lock()
	if c.epoch.Load() != epoch {
		c.mu.Unlock()
		return false
	}
	c.variants = variants
	c.byKey = byKey
	c.lists = catalog.GroupingLists
	c.loading = false
	c.version++
	version := c.version
	if !c.isReady && len(variants) > 0 {
		close(c.ready)
		c.isReady = true
	}
	c.mu.Unlock()

	events.Publish(ctx, c.events, events.TopicVariantsChanged, events.VariantsChangedEvent{
		Version: version,
		Count:   len(variants),
		Source:  source,
	})
	return true
}
