package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/Pokedex-Companion/internal/blob"
	"github.com/ramonehamilton/Pokedex-Companion/internal/config"
	"github.com/ramonehamilton/Pokedex-Companion/internal/remote"
	"github.com/ramonehamilton/Pokedex-Companion/internal/session"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
	"github.com/ramonehamilton/Pokedex-Companion/internal/variants"
)

func newTestDaemon(t *testing.T, src *fakeRemote, sess *session.Static) *Service {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Sync.FlushDebounce = "10ms"

	svc, err := New(cfg, Options{
		Storage: storage.NewTestService(t),
		Remote:  src,
		Session: sess,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}

func waitLoaded(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Variants().WaitReady(ctx))
	require.Eventually(t, func() bool { return !svc.Instances().Loading() }, 5*time.Second, 10*time.Millisecond)
}

func TestService_StartLoadsCatalogAndCollection(t *testing.T) {
	src := newFakeRemote()
	src.collections["ash"] = &remote.Collection{
		Username: "ash",
		Instances: map[string]*models.Instance{
			"0025-default_a": {InstanceID: "0025-default_a", VariantID: "0025-default", Username: "ash", IsCaught: true, LastUpdate: 1},
		},
	}
	svc := newTestDaemon(t, src, session.NewStatic("ash", true))

	require.NoError(t, svc.Start(context.Background()))
	assert.Error(t, svc.Start(context.Background()))
	waitLoaded(t, svc)

	assert.Equal(t, 2, svc.Variants().Len())
	require.Eventually(t, func() bool {
		_, ok := svc.Instances().Get("0025-default_a")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		b := svc.Tags().Tags()
		return b != nil && len(b.Caught) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Greater(t, svc.Uptime(), time.Duration(0))
}

func TestService_MutationsReachRemote(t *testing.T) {
	src := newFakeRemote()
	src.collections["ash"] = &remote.Collection{Username: "ash", Instances: map[string]*models.Instance{}}
	svc := newTestDaemon(t, src, session.NewStatic("ash", true))

	require.NoError(t, svc.Start(context.Background()))
	waitLoaded(t, svc)

	changed, err := svc.Instances().UpdateInstanceStatus(context.Background(), []string{"0133-default"}, models.StatusCaught)
	require.NoError(t, err)
	require.Len(t, changed, 1)

	require.Eventually(t, func() bool {
		for _, k := range src.appliedKeys() {
			if k == models.InstanceKey(changed[0]) {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		n, err := svc.Queue().Len(context.Background())
		return err == nil && n == 0
	}, 5*time.Second, 10*time.Millisecond)

	report, err := svc.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
}

func TestService_SignedOutKeepsQueue(t *testing.T) {
	src := newFakeRemote()
	svc := newTestDaemon(t, src, session.NewStatic("ash", false))

	require.NoError(t, svc.Start(context.Background()))
	waitLoaded(t, svc)

	_, err := svc.Instances().UpdateInstanceStatus(context.Background(), []string{"0025-default"}, models.StatusWanted)
	require.NoError(t, err)

	report, err := svc.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	n, err := svc.Queue().Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, src.appliedKeys())
}

func TestService_RefreshAndForeign(t *testing.T) {
	src := newFakeRemote()
	src.collections["misty"] = &remote.Collection{
		Username: "misty",
		Instances: map[string]*models.Instance{
			"0133-default_m": {InstanceID: "0133-default_m", VariantID: "0133-default", Username: "misty", IsForTrade: true, IsCaught: true},
		},
	}
	svc := newTestDaemon(t, src, session.NewStatic("ash", false))
	require.NoError(t, svc.Start(context.Background()))
	waitLoaded(t, svc)

	require.Eventually(t, func() bool {
		return svc.Refresh(context.Background(), false) == variants.RefreshServedCache
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, variants.RefreshFetched, svc.Refresh(context.Background(), true))

	n, err := svc.FetchForeign(context.Background(), "misty")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool {
		b, owner := svc.Tags().ForeignTags()
		return b != nil && owner == "misty" && len(b.Trade) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestService_ApplyConfigSignsOut(t *testing.T) {
	src := newFakeRemote()
	sess := session.NewStatic("ash", true)
	svc := newTestDaemon(t, src, sess)

	cfg := config.DefaultConfig()
	cfg.Session.Username = "ash"
	cfg.Session.Authenticated = false
	svc.applyConfig(cfg)

	assert.False(t, sess.Authenticated())
	assert.Equal(t, "ash", sess.Username())
}

func TestService_StopWithoutStart(t *testing.T) {
	svc := newTestDaemon(t, newFakeRemote(), nil)
	assert.NoError(t, svc.Stop())
	assert.Equal(t, time.Duration(0), svc.Uptime())
}

func TestNew_OpensConfiguredDatabase(t *testing.T) {
	cfg := config.DefaultConfig()
	dbPath := filepath.Join(t.TempDir(), "engine.db")

	svc, err := New(cfg, Options{DBPath: dbPath, Remote: newFakeRemote()})
	require.NoError(t, err)
	require.NoError(t, svc.Stop())

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestNew_BackupScheduler(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backup.Interval = "1h"

	store := blob.NewMemoryStore()
	svc, err := New(cfg, Options{Storage: storage.NewTestService(t), Remote: newFakeRemote(), BackupStore: store})
	require.NoError(t, err)
	require.NotNil(t, svc.backups)

	require.NoError(t, svc.Start(context.Background()))
	assert.True(t, svc.backups.IsRunning())
	require.NoError(t, svc.Stop())
	assert.False(t, svc.backups.IsRunning())
}
