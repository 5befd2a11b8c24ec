// Package trades validates trade proposals and drives the trade lifecycle
// against the local store and the batched update queue.
package trades

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// OpenTradeFinder looks up an open trade for an ordered instance pair.
type OpenTradeFinder interface {
	FindOpenTrade(ctx context.Context, proposedInstanceID string, acceptingInstanceID *string) (*models.TradeRecord, error)
}

// Proposal is the result of ProposeTrade. The caller persists both parts and
// enqueues the matching batched update.
type Proposal struct {
	TradeEntry      *models.TradeRecord     `json:"tradeEntry"`
	RelatedInstance *models.RelatedInstance `json:"relatedInstanceData"`
}

// CoordinatorOptions holds the optional collaborators of a Coordinator.
type CoordinatorOptions struct {
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Coordinator builds trade records from validated proposals.
type Coordinator struct {
	finder OpenTradeFinder
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewCoordinator creates a coordinator that checks duplicates through finder.
func NewCoordinator(finder OpenTradeFinder, opts CoordinatorOptions) *Coordinator {
	c := &Coordinator{finder: finder, logger: opts.Logger, now: opts.Now, newID: opts.NewID}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "trades")
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// ProposeTrade validates p, rejects a duplicate open proposal for the same
// ordered instance pair and builds the new record. It has no side effects.
// The duplicate check is local and best effort; the remote authority makes
// the final call.
func (c *Coordinator) ProposeTrade(ctx context.Context, p *TradeProposal) (*Proposal, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if p.PokemonInstanceIDUserAccepting != nil && c.finder != nil {
		existing, err := c.finder.FindOpenTrade(ctx, p.PokemonInstanceIDUserProposed, p.PokemonInstanceIDUserAccepting)
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicate trade: %w", err)
		}
		if existing != nil {
			c.logger.Debug("Duplicate trade proposal", "existing", existing.TradeID)
			return nil, &DuplicateTradeError{ExistingTradeID: existing.TradeID}
		}
	}

	now := c.now()
	var accepting *string
	if p.PokemonInstanceIDUserAccepting != nil {
		v := *p.PokemonInstanceIDUserAccepting
		accepting = &v
	}
	record := &models.TradeRecord{
		TradeID:                        "trade_" + c.newID(),
		UsernameProposed:               p.UsernameProposed,
		UsernameAccepting:              p.UsernameAccepting,
		PokemonInstanceIDUserProposed:  p.PokemonInstanceIDUserProposed,
		PokemonInstanceIDUserAccepting: accepting,
		Status:                         models.TradeStatusProposed,
		FriendshipLevel:                p.FriendshipLevel,
		IsSpecialTrade:                 p.IsSpecialTrade,
		IsRegisteredTrade:              p.IsRegisteredTrade,
		IsLuckyTrade:                   p.IsLuckyTrade,
		DustCost:                       p.DustCost,
		ProposalDate:                   now,
		LastUpdate:                     now.UnixMilli(),
	}

	return &Proposal{TradeEntry: record, RelatedInstance: relatedSnapshot(p)}, nil
}

// relatedSnapshot projects the offered creature into the shape stored next
// to trades.
func relatedSnapshot(p *TradeProposal) *models.RelatedInstance {
	data := make(map[string]any, len(p.Pokemon))
	for k, v := range p.Pokemon {
		data[k] = v
	}

	variantID, _ := data["variant_id"].(string)
	if variantID == "" {
		variantID = models.VariantKeyFromInstanceID(p.PokemonInstanceIDUserProposed)
	}
	data["instance_id"] = p.PokemonInstanceIDUserProposed

	return &models.RelatedInstance{
		InstanceID: p.PokemonInstanceIDUserProposed,
		VariantID:  variantID,
		Username:   p.UsernameProposed,
		Data:       data,
	}
}
