package fs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/Pokedex-Companion/internal/blob"
)

func TestStore_PutGetListDelete(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	info, err := store.Put(ctx, "backups/a.db.enc", strings.NewReader("payload"), blob.PutOptions{ContentType: "application/octet-stream"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.Size)

	// Put overwrites.
	_, err = store.Put(ctx, "backups/a.db.enc", strings.NewReader("payload-2"), blob.PutOptions{})
	require.NoError(t, err)

	got, rc, err := store.Get(ctx, "backups/a.db.enc")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()
	assert.Equal(t, "payload-2", string(data))
	assert.Equal(t, int64(9), got.Size)

	_, err = store.Put(ctx, "other/b", strings.NewReader("x"), blob.PutOptions{})
	require.NoError(t, err)

	infos, err := store.List(ctx, "backups/")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "backups/a.db.enc", infos[0].Key)

	deleted, err := store.Delete(ctx, "backups/a.db.enc")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, _, err = store.Get(ctx, "backups/a.db.enc")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestStore_RejectsTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape", strings.NewReader("x"), blob.PutOptions{})
	assert.Error(t, err)

	_, err = store.Put(context.Background(), "/abs", strings.NewReader("x"), blob.PutOptions{})
	assert.Error(t, err)
}
