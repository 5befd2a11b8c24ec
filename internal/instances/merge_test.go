package instances

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

func TestMergeInstances(t *testing.T) {
	local := map[string]*models.Instance{
		"a": {InstanceID: "a", Username: "ash", IsCaught: true, LastUpdate: 10},
		"b": {InstanceID: "b", Username: "ash", LastUpdate: 50},
		"c": {InstanceID: "c", Username: "ash", IsWanted: true, LastUpdate: 10},
		"x": {InstanceID: "x", Username: "misty", IsCaught: true},
	}
	incoming := map[string]*models.Instance{
		"a": {InstanceID: "a", Username: "Ash", IsForTrade: true, IsCaught: true, LastUpdate: 10},
		"b": {InstanceID: "b", Username: "ash", LastUpdate: 20, Nickname: "older"},
		"d": {InstanceID: "d", Username: "ash", IsCaught: true},
		"y": {InstanceID: "y", Username: "brock", IsCaught: true},
	}

	merged := MergeInstances(local, incoming, "ash", nil)

	require.Len(t, merged, 4)
	assert.True(t, merged["a"].IsForTrade, "flagged incoming wins a tie")
	assert.Empty(t, merged["b"].Nickname, "newer local placeholder wins")
	assert.True(t, merged["c"].IsWanted, "local-only kept")
	assert.Contains(t, merged, "d")
	assert.NotContains(t, merged, "x")
	assert.NotContains(t, merged, "y")

	merged["a"].Nickname = "mutated"
	assert.Empty(t, incoming["a"].Nickname)
}

func TestMergeInstances_NewerUnflaggedWins(t *testing.T) {
	local := map[string]*models.Instance{"a": {InstanceID: "a", IsCaught: true, LastUpdate: 10}}
	incoming := map[string]*models.Instance{"a": {InstanceID: "a", LastUpdate: 20}}

	merged := MergeInstances(local, incoming, "ash", nil)
	assert.False(t, merged["a"].IsCaught)
}

func TestMergeInstances_LocalWins(t *testing.T) {
	local := map[string]*models.Instance{
		"newer":  {InstanceID: "newer", IsForTrade: true, LastUpdate: 200},
		"queued": {InstanceID: "queued", IsWanted: true, LastUpdate: 50},
	}
	incoming := map[string]*models.Instance{
		"newer":   {InstanceID: "newer", IsCaught: true, LastUpdate: 100},
		"queued":  {InstanceID: "queued", IsCaught: true, LastUpdate: 900},
		"deleted": {InstanceID: "deleted", IsCaught: true, LastUpdate: 900},
	}
	pending := map[string]struct{}{
		models.InstanceKey("queued"):  {},
		models.InstanceKey("deleted"): {},
	}

	merged := MergeInstances(local, incoming, "ash", pending)

	assert.True(t, merged["newer"].IsForTrade, "newer local record beats a flagged older one")
	assert.False(t, merged["newer"].IsCaught)
	assert.True(t, merged["queued"].IsWanted, "queued edit beats any incoming record")
	assert.False(t, merged["queued"].IsCaught)
	assert.NotContains(t, merged, "deleted", "queued delete is not undone")
}

func TestSetInstances_KeepsQueuedEdit(t *testing.T) {
	f := bootstrapped(t, &models.Instance{InstanceID: "0025-default_a", VariantID: "0025-default", Username: "ash", IsCaught: true, LastUpdate: 100})
	ctx := context.Background()

	_, err := f.store.UpdateInstanceStatus(ctx, []string{"0025-default_a"}, models.StatusTrade)
	require.NoError(t, err)
	queued, err := f.svc.BatchedUpdates().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	// The server has not seen the edit and still reports the old record.
	require.NoError(t, f.store.SetInstances(ctx, map[string]*models.Instance{
		"0025-default_a": {InstanceID: "0025-default_a", VariantID: "0025-default", Username: "ash", IsCaught: true, LastUpdate: 100},
	}))

	got, ok := f.store.Get("0025-default_a")
	require.True(t, ok)
	assert.True(t, got.IsForTrade)

	stored, err := f.svc.LoadInstances(ctx)
	require.NoError(t, err)
	assert.True(t, stored["0025-default_a"].IsForTrade)
	assert.Greater(t, stored["0025-default_a"].LastUpdate, int64(100))
}

func TestMergePulled_DiscardsAfterReset(t *testing.T) {
	f := bootstrapped(t, &models.Instance{InstanceID: "0025-default_a", VariantID: "0025-default", Username: "ash", IsCaught: true})
	ctx := context.Background()

	token := f.store.LocalToken()
	f.store.Reset(ctx)

	applied, err := f.store.MergePulled(ctx, token, map[string]*models.Instance{
		"0001-default_b": {InstanceID: "0001-default_b", VariantID: "0001-default", Username: "ash", IsCaught: true},
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.True(t, f.store.Loading())
	snap, _ := f.store.Snapshot()
	assert.Empty(t, snap)

	applied, err = f.store.MergePulled(ctx, f.store.LocalToken(), map[string]*models.Instance{
		"0001-default_b": {InstanceID: "0001-default_b", VariantID: "0001-default", Username: "ash", IsCaught: true},
	})
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestSetInstances(t *testing.T) {
	f := bootstrapped(t, &models.Instance{InstanceID: "0025-default_a", VariantID: "0025-default", Username: "ash", IsCaught: true})
	ctx := context.Background()
	version := f.store.Version()

	require.NoError(t, f.store.SetInstances(ctx, map[string]*models.Instance{
		"0001-default_b": {InstanceID: "0001-default_b", VariantID: "0001-default", Username: "ash", IsWanted: true},
	}))

	snap, v := f.store.Snapshot()
	assert.Greater(t, v, version)
	assert.Len(t, snap, 2)

	stored, err := f.svc.LoadInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
