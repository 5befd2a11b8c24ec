package handlers

import (
	"context"
	"net/http"

	"github.com/ramonehamilton/Pokedex-Companion/internal/api/response"
	"github.com/ramonehamilton/Pokedex-Companion/internal/batch"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// PendingQueue is the batched update queue served over HTTP.
type PendingQueue interface {
	GetAll(ctx context.Context) ([]*models.BatchedUpdate, error)
	CheckAndFlush(ctx context.Context) (*batch.FlushReport, error)
}

// SyncHandler handles requests about pending remote writes.
type SyncHandler struct {
	queue PendingQueue
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(queue PendingQueue) *SyncHandler {
	return &SyncHandler{queue: queue}
}

// FlushResponse is the body of POST /sync/flush.
type FlushResponse struct {
	Attempted  int    `json:"attempted"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Superseded int    `json:"superseded"`
	Remaining  int    `json:"remaining"`
	Skipped    bool   `json:"skipped"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Flush replays the queue now. Transport failures are reported in the body;
// the entries stay queued.
func (h *SyncHandler) Flush(w http.ResponseWriter, r *http.Request) {
	report, err := h.queue.CheckAndFlush(r.Context())
	if err != nil {
		response.InternalError(w, r, err)
		return
	}

	resp := FlushResponse{
		Attempted:  report.Attempted,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		Superseded: report.Superseded,
		Remaining:  report.Remaining,
		Skipped:    report.Skipped,
		DurationMS: report.Duration.Milliseconds(),
	}
	if report.TransportErr != nil {
		resp.Error = report.TransportErr.Error()
	}
	response.Success(w, resp)
}

// GetPending returns the queued updates in replay order.
func (h *SyncHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.GetAll(r.Context())
	if err != nil {
		response.InternalError(w, r, err)
		return
	}
	if pending == nil {
		pending = []*models.BatchedUpdate{}
	}
	response.Success(w, map[string]any{
		"count":   len(pending),
		"updates": pending,
	})
}
