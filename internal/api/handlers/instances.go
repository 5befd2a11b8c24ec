package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/Pokedex-Companion/internal/api/response"
	"github.com/ramonehamilton/Pokedex-Companion/internal/instances"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
	"github.com/ramonehamilton/Pokedex-Companion/internal/trades"
)

// InstanceStore is the part of the instance store served over HTTP.
type InstanceStore interface {
	Snapshot() (map[string]*models.Instance, uint64)
	Loading() bool
	UpdateInstanceStatus(ctx context.Context, targets []string, status string) ([]string, error)
	UpdateInstanceDetails(ctx context.Context, patches map[string]*models.InstancePatch) error
	DeleteInstance(ctx context.Context, id string) error
}

// InstanceHandler handles collection requests.
type InstanceHandler struct {
	store InstanceStore
}

// NewInstanceHandler creates a new InstanceHandler.
func NewInstanceHandler(store InstanceStore) *InstanceHandler {
	return &InstanceHandler{store: store}
}

// GetInstances returns the local collection ordered by instance id.
// Optional page and page_size query parameters paginate the result.
func (h *InstanceHandler) GetInstances(w http.ResponseWriter, r *http.Request) {
	if h.store.Loading() {
		response.ServiceUnavailable(w, errors.New("collection is still loading"))
		return
	}

	data, _ := h.store.Snapshot()
	list := make([]*models.Instance, 0, len(data))
	for _, inst := range data {
		list = append(list, inst)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].InstanceID < list[j].InstanceID })

	pageStr := r.URL.Query().Get("page")
	if pageStr == "" {
		response.Success(w, list)
		return
	}

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		response.BadRequest(w, fmt.Errorf("invalid page %q", pageStr))
		return
	}
	pageSize := 100
	if s := r.URL.Query().Get("page_size"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			pageSize = n
		}
	}

	start := (page - 1) * pageSize
	if start > len(list) {
		start = len(list)
	}
	end := start + pageSize
	if end > len(list) {
		end = len(list)
	}
	response.Paginated(w, list[start:end], page, pageSize, len(list))
}

// StatusRequest is the body of POST /instances/status. Targets are instance
// ids or variant keys.
type StatusRequest struct {
	Targets []string `json:"targets"`
	Status  string   `json:"status"`
}

// UpdateStatus moves the targets to a new ownership status.
func (h *InstanceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.BadRequest(w, err)
		return
	}
	if len(req.Targets) == 0 {
		response.BadRequest(w, errors.New("targets must not be empty"))
		return
	}

	changed, err := h.store.UpdateInstanceStatus(r.Context(), req.Targets, req.Status)
	if errors.Is(err, instances.ErrUnknownStatus) {
		response.BadRequest(w, err)
		return
	}
	if err != nil {
		response.InternalError(w, r, err)
		return
	}
	if changed == nil {
		changed = []string{}
	}
	response.Success(w, map[string]any{"changed": changed})
}

// UpdateDetails applies partial field updates keyed by instance id.
func (h *InstanceHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	var patches map[string]*models.InstancePatch
	if err := decodeJSON(r, &patches, false); err != nil {
		response.BadRequest(w, err)
		return
	}
	if err := h.store.UpdateInstanceDetails(r.Context(), patches); err != nil {
		response.InternalError(w, r, err)
		return
	}
	response.NoContent(w)
}

// DeleteInstance removes one instance.
func (h *InstanceHandler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.DeleteInstance(r.Context(), id)
	if errors.Is(err, instances.ErrNotFound) {
		response.NotFound(w, err)
		return
	}
	if err != nil {
		response.InternalError(w, r, err)
		return
	}
	response.NoContent(w)
}

// ExclusionRequest is the body of POST /instances/{id}/exclusions.
// Changes maps other instance ids to true (exclude) or false (include).
type ExclusionRequest struct {
	List    string          `json:"list"`
	Changes map[string]bool `json:"changes"`
}

// UpdateExclusions edits one exclusion list of an instance and mirrors the
// edit onto the other instances' opposite lists.
func (h *InstanceHandler) UpdateExclusions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ExclusionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.BadRequest(w, err)
		return
	}
	if req.List != trades.ListNotTrade && req.List != trades.ListNotWanted {
		response.BadRequest(w, fmt.Errorf("list must be %q or %q", trades.ListNotTrade, trades.ListNotWanted))
		return
	}

	data, _ := h.store.Snapshot()
	current, ok := data[id]
	if !ok {
		response.NotFound(w, fmt.Errorf("instance %s not found", id))
		return
	}

	patches := trades.BuildExclusionPatches(data, id, req.List, req.Changes, current.Mirror)
	if err := h.store.UpdateInstanceDetails(r.Context(), patches); err != nil {
		response.InternalError(w, r, err)
		return
	}

	updated := make([]string, 0, len(patches))
	for pid := range patches {
		updated = append(updated, pid)
	}
	sort.Strings(updated)
	response.Success(w, map[string]any{"updated": updated})
}
