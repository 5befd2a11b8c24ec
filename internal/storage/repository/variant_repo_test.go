package repository

import (
	"context"
	"testing"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

func TestVariantRepository_PutAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVariantRepository(db)
	ctx := context.Background()

	form := "Alola"
	v := &models.Variant{
		VariantID:     "0019-alola",
		PokemonID:     19,
		Name:          "Rattata",
		Form:          &form,
		VariantType:   "default",
		PokedexNumber: 19,
		Evolutions:    []int{20},
	}
	if err := repo.Put(ctx, v); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := repo.Get(ctx, "0019-alola")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected variant, got nil")
	}
	if got.Name != "Rattata" || got.Form == nil || *got.Form != "Alola" {
		t.Errorf("Unexpected variant: %+v", got)
	}
	if len(got.Evolutions) != 1 || got.Evolutions[0] != 20 {
		t.Errorf("Expected evolutions [20], got %v", got.Evolutions)
	}

	missing, err := repo.Get(ctx, "9999-default")
	if err != nil {
		t.Fatalf("Get missing failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing variant, got %+v", missing)
	}
}

func TestVariantRepository_GetAllOrdered(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVariantRepository(db)
	ctx := context.Background()

	for _, v := range []models.Variant{
		{VariantID: "0004-default", PokedexNumber: 4, Name: "Charmander"},
		{VariantID: "0001-shiny", PokedexNumber: 1, Name: "Bulbasaur"},
		{VariantID: "0001-default", PokedexNumber: 1, Name: "Bulbasaur"},
	} {
		v := v
		if err := repo.Put(ctx, &v); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	want := []string{"0001-default", "0001-shiny", "0004-default"}
	if len(all) != len(want) {
		t.Fatalf("Expected %d variants, got %d", len(want), len(all))
	}
	for i, id := range want {
		if all[i].VariantID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, all[i].VariantID)
		}
	}
}

func TestVariantRepository_ReplaceAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewVariantRepository(db)
	ctx := context.Background()

	if err := repo.Put(ctx, &models.Variant{VariantID: "0150-default", PokedexNumber: 150}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err := repo.ReplaceAll(ctx, []models.Variant{
		{VariantID: "0001-default", PokedexNumber: 1},
		{VariantID: "0002-default", PokedexNumber: 2},
	})
	if err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 variants after replace, got %d", len(all))
	}
	if old, _ := repo.Get(ctx, "0150-default"); old != nil {
		t.Error("Expected replaced variant to be gone")
	}
}

func TestGroupingListRepository_ReplaceAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGroupingListRepository(db)
	ctx := context.Background()

	if err := repo.Put(ctx, "stale", []string{"0001-default"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	err := repo.ReplaceAll(ctx, models.GroupingLists{
		"default": {"0001-default", "0004-default"},
		"shiny":   {"0001-shiny"},
	})
	if err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	lists, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if _, ok := lists["stale"]; ok {
		t.Error("Expected stale list to be removed")
	}
	if got := lists["default"]; len(got) != 2 || got[1] != "0004-default" {
		t.Errorf("Unexpected default list: %v", got)
	}
}
