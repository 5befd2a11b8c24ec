package variants

import (
	"context"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// Variants returns the published variants ordered by pokedex number. The
// slice is shared and must not be modified.
func (c *Cache) Variants() []models.Variant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.variants
}

// Variant returns the variant with the given key.
func (c *Cache) Variant(key string) (*models.Variant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.byKey[key]
	return v, ok
}

// Lookup returns the key index shared by every reader of this version.
func (c *Cache) Lookup() map[string]*models.Variant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byKey
}

// Has reports whether key names a published variant.
func (c *Cache) Has(key string) bool {
	_, ok := c.Variant(key)
	return ok
}

// GroupingLists returns the published grouping lists.
func (c *Cache) GroupingLists() models.GroupingLists {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lists
}

// Keys returns every variant key in catalog order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, len(c.variants))
	for i := range c.variants {
		keys[i] = c.variants[i].VariantID
	}
	return keys
}

// Len returns the number of published variants.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.variants)
}

// Loading reports whether the first load has not completed yet.
func (c *Cache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Version increases every time the published catalog changes.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Ready returns a channel closed once a non-empty catalog is published.
func (c *Cache) Ready() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// WaitReady blocks until the catalog is non-empty and not loading, or ctx ends.
func (c *Cache) WaitReady(ctx context.Context) error {
	for {
		ready := c.Ready()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ready:
		}
		if !c.Loading() && c.Len() > 0 {
			return nil
		}
	}
}
