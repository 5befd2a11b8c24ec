package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

func TestBatchedUpdateRepository_OrderAndReput(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBatchedUpdateRepository(db)
	ctx := context.Background()

	for _, key := range []string{"instance:a", "instance:b", "trade:c"} {
		_, err := repo.Put(ctx, &models.BatchedUpdate{
			Key:       key,
			Operation: models.OpUpdateInstance,
			Payload:   json.RawMessage(`{"k":"` + key + `"}`),
		})
		if err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	// Re-putting a key moves it to the end.
	if _, err := repo.Put(ctx, &models.BatchedUpdate{Key: "instance:a", Operation: models.OpUpdateInstance, Payload: json.RawMessage(`{"v":2}`)}); err != nil {
		t.Fatalf("Re-put failed: %v", err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 updates, got %d", len(all))
	}
	want := []string{"instance:b", "trade:c", "instance:a"}
	for i, key := range want {
		if all[i].Key != key {
			t.Errorf("Position %d: expected %s, got %s", i, key, all[i].Key)
		}
	}
	if string(all[2].Payload) != `{"v":2}` {
		t.Errorf("Expected replaced payload, got %s", all[2].Payload)
	}
	if all[2].CreatedAt.After(time.Now().Add(time.Minute)) {
		t.Errorf("Unexpected created_at %v", all[2].CreatedAt)
	}
}

func TestBatchedUpdateRepository_DeleteIfUnchanged(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBatchedUpdateRepository(db)
	ctx := context.Background()

	seq, err := repo.Put(ctx, &models.BatchedUpdate{Key: "instance:a", Operation: models.OpUpdateInstance})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	newSeq, err := repo.Put(ctx, &models.BatchedUpdate{Key: "instance:a", Operation: models.OpUpdateInstance})
	if err != nil {
		t.Fatalf("Re-put failed: %v", err)
	}
	if newSeq <= seq {
		t.Fatalf("Expected seq to advance, got %d then %d", seq, newSeq)
	}

	removed, err := repo.DeleteIfUnchanged(ctx, "instance:a", seq)
	if err != nil {
		t.Fatalf("DeleteIfUnchanged failed: %v", err)
	}
	if removed {
		t.Error("Stale seq must not remove the newer descriptor")
	}

	if err := repo.RecordFailure(ctx, "instance:a", newSeq, "boom"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	got, err := repo.Get(ctx, "instance:a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Attempts != 1 || got.LastError != "boom" {
		t.Errorf("Expected one recorded failure, got attempts=%d err=%q", got.Attempts, got.LastError)
	}

	removed, err = repo.DeleteIfUnchanged(ctx, "instance:a", newSeq)
	if err != nil {
		t.Fatalf("DeleteIfUnchanged failed: %v", err)
	}
	if !removed {
		t.Error("Expected current seq to remove the descriptor")
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected empty queue, got %d", n)
	}
}

func TestCacheStampRepository_SetGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCacheStampRepository(db)
	ctx := context.Background()

	if _, ok, err := repo.Get(ctx, "variants"); err != nil || ok {
		t.Fatalf("Expected no stamp, got ok=%v err=%v", ok, err)
	}

	at := time.UnixMilli(1700000000000)
	if err := repo.Set(ctx, "variants", at); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok, err := repo.Get(ctx, "variants")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if !got.Equal(at) {
		t.Errorf("Expected %v, got %v", at, got)
	}
}

func TestTagSnapshotRepository_PutGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTagSnapshotRepository(db)
	ctx := context.Background()

	buckets := models.NewTagBuckets()
	buckets.Caught["0025-default_a"] = models.TagItem{InstanceID: "0025-default_a", Name: "Pikachu"}

	err := repo.Put(ctx, &models.TagSnapshot{Partition: "local", Buckets: buckets, BuiltAt: time.UnixMilli(1700000000000)})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	snap, err := repo.Get(ctx, "local")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if snap == nil || snap.Buckets.Caught["0025-default_a"].Name != "Pikachu" {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
	if snap.BuiltAt.UnixMilli() != 1700000000000 {
		t.Errorf("Unexpected built_at %v", snap.BuiltAt)
	}

	other, err := repo.Get(ctx, "foreign")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if other != nil {
		t.Error("Expected no foreign snapshot")
	}
}
