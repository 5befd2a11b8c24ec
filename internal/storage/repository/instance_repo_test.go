package repository

import (
	"context"
	"testing"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

func TestInstanceRepository_PutGetDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	inst := &models.Instance{
		InstanceID:   "0025-default_abc",
		Username:     "ash",
		CP:           512,
		IsCaught:     true,
		NotTradeList: map[string]bool{"0001-default_xyz": true},
		LastUpdate:   1700000000000,
	}
	if err := repo.Put(ctx, inst); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := repo.Get(ctx, "0025-default_abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected instance, got nil")
	}
	if got.CP != 512 || !got.IsCaught || !got.NotTradeList["0001-default_xyz"] {
		t.Errorf("Unexpected instance: %+v", got)
	}

	var variantID string
	if err := db.QueryRow(`SELECT variant_id FROM instances WHERE instance_id = ?`, inst.InstanceID).Scan(&variantID); err != nil {
		t.Fatalf("Failed to read variant_id column: %v", err)
	}
	if variantID != "0025-default" {
		t.Errorf("Expected variant_id derived from instance id, got %q", variantID)
	}

	if err := repo.Delete(ctx, inst.InstanceID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := repo.Get(ctx, inst.InstanceID); got != nil {
		t.Error("Expected instance to be deleted")
	}
}

func TestInstanceRepository_PutRequiresID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInstanceRepository(db)

	if err := repo.Put(context.Background(), &models.Instance{}); err == nil {
		t.Error("Expected error for instance without id")
	}
}

func TestInstanceRepository_ReplaceAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInstanceRepository(db)
	ctx := context.Background()

	if err := repo.Put(ctx, &models.Instance{InstanceID: "0001-default_old"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err := repo.ReplaceAll(ctx, map[string]*models.Instance{
		"0004-default_a": {InstanceID: "0004-default_a", IsWanted: true},
		"0007-shiny_b":   {InstanceID: "0007-shiny_b", IsCaught: true},
	})
	if err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 instances, got %d", len(all))
	}
	if _, ok := all["0001-default_old"]; ok {
		t.Error("Expected old instance to be removed")
	}
	if !all["0004-default_a"].IsWanted {
		t.Error("Expected wanted flag to survive round trip")
	}
}
