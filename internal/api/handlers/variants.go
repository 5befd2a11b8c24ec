package handlers

import (
	"context"
	"net/http"

	"github.com/ramonehamilton/Pokedex-Companion/internal/api/response"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
	"github.com/ramonehamilton/Pokedex-Companion/internal/variants"
)

// VariantCatalog is the part of the variant cache served over HTTP.
type VariantCatalog interface {
	Variants() []models.Variant
	Lookup() map[string]*models.Variant
	GroupingLists() models.GroupingLists
	Loading() bool
	Version() uint64
	ForceRefresh(ctx context.Context) variants.RefreshOutcome
}

// VariantHandler handles catalog requests.
type VariantHandler struct {
	catalog VariantCatalog
}

// NewVariantHandler creates a new VariantHandler.
func NewVariantHandler(catalog VariantCatalog) *VariantHandler {
	return &VariantHandler{catalog: catalog}
}

// VariantsResponse is the body of GET /variants.
type VariantsResponse struct {
	Variants      []models.Variant     `json:"variants"`
	GroupingLists models.GroupingLists `json:"groupingLists"`
	Version       uint64               `json:"version"`
	Loading       bool                 `json:"loading"`
}

// GetVariants returns the current catalog snapshot.
func (h *VariantHandler) GetVariants(w http.ResponseWriter, _ *http.Request) {
	list := h.catalog.Variants()
	if list == nil {
		list = []models.Variant{}
	}
	response.Success(w, VariantsResponse{
		Variants:      list,
		GroupingLists: h.catalog.GroupingLists(),
		Version:       h.catalog.Version(),
		Loading:       h.catalog.Loading(),
	})
}

// RefreshVariants fetches the catalog regardless of freshness stamps.
func (h *VariantHandler) RefreshVariants(w http.ResponseWriter, r *http.Request) {
	outcome := h.catalog.ForceRefresh(r.Context())
	response.Success(w, map[string]any{
		"outcome": outcome.String(),
		"version": h.catalog.Version(),
	})
}
