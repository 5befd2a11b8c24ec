package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

func strPtr(s string) *string { return &s }

func newTestTrade(id, proposed string, accepting *string, status string) *models.TradeRecord {
	return &models.TradeRecord{
		TradeID:                        id,
		UsernameProposed:               "ash",
		UsernameAccepting:              "misty",
		PokemonInstanceIDUserProposed:  proposed,
		PokemonInstanceIDUserAccepting: accepting,
		Status:                         status,
		FriendshipLevel:                2,
		ProposalDate:                   time.Now().UTC(),
	}
}

func TestTradeRepository_FindOpenByPair(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	trades := []*models.TradeRecord{
		newTestTrade("trade_open", "A_1", strPtr("B_1"), models.TradeStatusProposed),
		newTestTrade("trade_cancelled", "A_2", strPtr("B_2"), models.TradeStatusCancelled),
		newTestTrade("trade_nil", "A_3", nil, models.TradeStatusAccepted),
	}
	for _, tr := range trades {
		if err := repo.Put(ctx, tr); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	found, err := repo.FindOpenByPair(ctx, "A_1", strPtr("B_1"))
	if err != nil {
		t.Fatalf("FindOpenByPair failed: %v", err)
	}
	if found == nil || found.TradeID != "trade_open" {
		t.Errorf("Expected trade_open, got %+v", found)
	}

	// Ordered pair: the reverse direction is a different pair.
	reverse, err := repo.FindOpenByPair(ctx, "B_1", strPtr("A_1"))
	if err != nil {
		t.Fatalf("FindOpenByPair failed: %v", err)
	}
	if reverse != nil {
		t.Errorf("Expected no trade for reversed pair, got %s", reverse.TradeID)
	}

	cancelled, err := repo.FindOpenByPair(ctx, "A_2", strPtr("B_2"))
	if err != nil {
		t.Fatalf("FindOpenByPair failed: %v", err)
	}
	if cancelled != nil {
		t.Error("Cancelled trades must not count as open")
	}

	nilSide, err := repo.FindOpenByPair(ctx, "A_3", nil)
	if err != nil {
		t.Fatalf("FindOpenByPair failed: %v", err)
	}
	if nilSide == nil || nilSide.TradeID != "trade_nil" {
		t.Errorf("Expected trade_nil for nil accepting side, got %+v", nilSide)
	}
}

func TestTradeRepository_FindOpenInvolving(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	for _, tr := range []*models.TradeRecord{
		newTestTrade("trade_1", "A_1", strPtr("B_1"), models.TradeStatusProposed),
		newTestTrade("trade_2", "C_1", strPtr("A_1"), models.TradeStatusProposed),
		newTestTrade("trade_3", "A_1", strPtr("D_1"), models.TradeStatusCompleted),
		newTestTrade("trade_4", "E_1", strPtr("F_1"), models.TradeStatusProposed),
	} {
		if err := repo.Put(ctx, tr); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got, err := repo.FindOpenInvolving(ctx, "A_1")
	if err != nil {
		t.Fatalf("FindOpenInvolving failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 open trades, got %d", len(got))
	}
	if got[0].TradeID != "trade_1" || got[1].TradeID != "trade_2" {
		t.Errorf("Unexpected trades: %s, %s", got[0].TradeID, got[1].TradeID)
	}
}

func TestTradeRepository_RelatedInstances(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTradeRepository(db)
	ctx := context.Background()

	related := &models.RelatedInstance{
		InstanceID: "0025-default_abc",
		VariantID:  "0025-default",
		Username:   "ash",
		Data:       map[string]any{"cp": float64(812)},
	}
	if err := repo.PutRelated(ctx, related); err != nil {
		t.Fatalf("PutRelated failed: %v", err)
	}

	got, err := repo.GetRelated(ctx, "0025-default_abc")
	if err != nil {
		t.Fatalf("GetRelated failed: %v", err)
	}
	if got == nil || got.VariantID != "0025-default" || got.Data["cp"] != float64(812) {
		t.Errorf("Unexpected related instance: %+v", got)
	}

	all, err := repo.GetAllRelated(ctx)
	if err != nil {
		t.Fatalf("GetAllRelated failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 related instance, got %d", len(all))
	}

	if err := repo.DeleteRelated(ctx, "0025-default_abc"); err != nil {
		t.Fatalf("DeleteRelated failed: %v", err)
	}
	if got, _ := repo.GetRelated(ctx, "0025-default_abc"); got != nil {
		t.Error("Expected related instance to be deleted")
	}
}
