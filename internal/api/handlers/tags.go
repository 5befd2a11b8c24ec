package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/Pokedex-Companion/internal/api/response"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
	"github.com/ramonehamilton/Pokedex-Companion/internal/tags"
)

// TagSource is the part of the tag index served over HTTP.
type TagSource interface {
	Tags() *models.TagBuckets
	SystemChildren() *models.SystemChildren
	ForeignTags() (*models.TagBuckets, string)
}

// CatalogLookup resolves variant keys.
type CatalogLookup interface {
	Lookup() map[string]*models.Variant
}

// CollectionSnapshot exposes the local collection.
type CollectionSnapshot interface {
	Snapshot() (map[string]*models.Instance, uint64)
}

// TagHandler handles tag requests.
type TagHandler struct {
	index     TagSource
	variants  CatalogLookup
	instances CollectionSnapshot
}

// NewTagHandler creates a new TagHandler.
func NewTagHandler(index TagSource, variants CatalogLookup, instances CollectionSnapshot) *TagHandler {
	return &TagHandler{index: index, variants: variants, instances: instances}
}

var errTagsLoading = errors.New("tags are still loading")

// GetTags returns the local buckets and their system children.
func (h *TagHandler) GetTags(w http.ResponseWriter, _ *http.Request) {
	buckets := h.index.Tags()
	if buckets == nil {
		response.ServiceUnavailable(w, errTagsLoading)
		return
	}
	response.Success(w, map[string]any{
		"tags":     buckets,
		"children": h.index.SystemChildren(),
	})
}

// GetByStatus returns the local instances in one bucket, joined with their
// variants. Unknown statuses yield an empty list.
func (h *TagHandler) GetByStatus(w http.ResponseWriter, r *http.Request) {
	buckets := h.index.Tags()
	if buckets == nil {
		response.ServiceUnavailable(w, errTagsLoading)
		return
	}
	data, _ := h.instances.Snapshot()
	entries := tags.FilterByOwnership(h.variants.Lookup(), data, chi.URLParam(r, "status"), buckets)
	response.Success(w, entries)
}

// GetForeignTags returns the buckets built from another trainer's collection.
func (h *TagHandler) GetForeignTags(w http.ResponseWriter, _ *http.Request) {
	buckets, owner := h.index.ForeignTags()
	if buckets == nil {
		buckets = models.NewTagBuckets()
	}
	response.Success(w, map[string]any{
		"owner": owner,
		"tags":  buckets,
	})
}
