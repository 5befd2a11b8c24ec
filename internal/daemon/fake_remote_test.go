package daemon

import (
	"context"
	"sync"

	"github.com/ramonehamilton/Pokedex-Companion/internal/remote"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// fakeRemote serves a fixed catalog and records replayed batches.
type fakeRemote struct {
	mu          sync.Mutex
	catalog     *models.Catalog
	collections map[string]*remote.Collection
	trades      *remote.TradesSnapshot
	applied     [][]models.BatchedUpdate
	etags       []string
	fetches     int
	// hold blocks FetchCollection for a username until the channel is closed.
	hold map[string]chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		catalog: &models.Catalog{
			Variants: []models.Variant{
				{VariantID: "0025-default", PokemonID: 25, PokedexNumber: 25, Name: "Pikachu", VariantType: "default"},
				{VariantID: "0133-default", PokemonID: 133, PokedexNumber: 133, Name: "Eevee", VariantType: "default"},
			},
			GroupingLists: models.GroupingLists{"all": {"0025-default", "0133-default"}},
		},
		collections: map[string]*remote.Collection{},
		trades:      &remote.TradesSnapshot{},
	}
}

func (f *fakeRemote) FetchCatalog(context.Context) (*models.Catalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.catalog, nil
}

func (f *fakeRemote) ApplyBatch(_ context.Context, updates []models.BatchedUpdate) ([]models.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, updates)
	results := make([]models.BatchResult, len(updates))
	for i, u := range updates {
		results[i] = models.BatchResult{Key: u.Key, OK: true}
	}
	return results, nil
}

func (f *fakeRemote) FetchCollection(_ context.Context, username, etag string) (*remote.Collection, error) {
	f.mu.Lock()
	gate := f.hold[username]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.etags = append(f.etags, etag)
	coll, ok := f.collections[username]
	if !ok {
		return nil, &remote.NotFoundError{URL: "/ownershipData/username/" + username}
	}
	if etag != "" && etag == coll.ETag {
		return &remote.Collection{Username: username, ETag: etag, NotModified: true}, nil
	}
	c := *coll
	return &c, nil
}

func (f *fakeRemote) FetchTrades(context.Context, string) (*remote.TradesSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trades, nil
}

func (f *fakeRemote) appliedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for _, batch := range f.applied {
		for _, u := range batch {
			keys = append(keys, u.Key)
		}
	}
	return keys
}
