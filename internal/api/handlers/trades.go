package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/Pokedex-Companion/internal/api/response"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
	"github.com/ramonehamilton/Pokedex-Companion/internal/trades"
)

// TradeService is the trade lifecycle served over HTTP.
type TradeService interface {
	Trades() []*models.TradeRecord
	RelatedInstances() map[string]*models.RelatedInstance
	Propose(ctx context.Context, p *trades.TradeProposal) (*models.TradeRecord, error)
	Accept(ctx context.Context, id string) (*models.TradeRecord, error)
	Complete(ctx context.Context, id string) (*models.TradeRecord, error)
	Cancel(ctx context.Context, id, by string) (*models.TradeRecord, error)
	RateTrade(ctx context.Context, id string, satisfied bool) (*models.TradeRecord, error)
}

// TradeHandler handles trade requests.
type TradeHandler struct {
	service TradeService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(service TradeService) *TradeHandler {
	return &TradeHandler{service: service}
}

// GetTrades returns every known trade and the related instance snapshots.
func (h *TradeHandler) GetTrades(w http.ResponseWriter, _ *http.Request) {
	list := h.service.Trades()
	if list == nil {
		list = []*models.TradeRecord{}
	}
	related := h.service.RelatedInstances()
	if related == nil {
		related = map[string]*models.RelatedInstance{}
	}
	response.Success(w, map[string]any{
		"trades":           list,
		"relatedInstances": related,
	})
}

// ProposeTrade validates and records a new proposal.
func (h *TradeHandler) ProposeTrade(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		response.BadRequest(w, err)
		return
	}
	proposal, err := trades.DecodeTradeProposal(body)
	if err != nil {
		writeTradeError(w, r, err)
		return
	}

	record, err := h.service.Propose(r.Context(), proposal)
	if err != nil {
		writeTradeError(w, r, err)
		return
	}
	response.Created(w, record)
}

// AcceptTrade accepts a proposed trade.
func (h *TradeHandler) AcceptTrade(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Accept)
}

// CompleteTrade confirms completion for the signed-in trainer's side.
func (h *TradeHandler) CompleteTrade(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Complete)
}

// CancelRequest is the optional body of POST /trades/{id}/cancel.
type CancelRequest struct {
	CancelledBy string `json:"cancelled_by"`
}

// CancelTrade cancels an open trade.
func (h *TradeHandler) CancelTrade(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decodeJSON(r, &req, true); err != nil {
		response.BadRequest(w, err)
		return
	}
	h.respond(w, r, func(ctx context.Context, id string) (*models.TradeRecord, error) {
		return h.service.Cancel(ctx, id, req.CancelledBy)
	})
}

// RateRequest is the body of POST /trades/{id}/rate.
type RateRequest struct {
	Satisfied *bool `json:"satisfied"`
}

// RateTrade records the signed-in trainer's satisfaction with a completed trade.
func (h *TradeHandler) RateTrade(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.BadRequest(w, err)
		return
	}
	if req.Satisfied == nil {
		response.BadRequest(w, errors.New("satisfied must be a boolean"))
		return
	}
	h.respond(w, r, func(ctx context.Context, id string) (*models.TradeRecord, error) {
		return h.service.RateTrade(ctx, id, *req.Satisfied)
	})
}

func (h *TradeHandler) respond(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*models.TradeRecord, error)) {
	record, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeTradeError(w, r, err)
		return
	}
	response.Success(w, record)
}

func writeTradeError(w http.ResponseWriter, r *http.Request, err error) {
	var dup *trades.DuplicateTradeError
	switch {
	case trades.IsValidationError(err):
		response.BadRequest(w, err)
	case errors.As(err, &dup):
		response.Conflict(w, err, map[string]string{"existing_trade_id": dup.ExistingTradeID})
	case trades.IsTransitionError(err):
		response.Conflict(w, err, nil)
	case errors.Is(err, trades.ErrTradeNotFound):
		response.NotFound(w, err)
	case errors.Is(err, trades.ErrNotParticipant):
		response.Forbidden(w, err)
	default:
		response.InternalError(w, r, err)
	}
}
