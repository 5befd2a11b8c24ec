package storage

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/Pokedex-Companion/internal/blob"
)

func TestNewBackupScheduler_Defaults(t *testing.T) {
	s := NewBackupScheduler(nil, nil)
	assert.Equal(t, 24*time.Hour, s.config.Interval)
	assert.False(t, s.IsRunning())
}

func TestBackupScheduler_StartImmediatelyAndStop(t *testing.T) {
	svc := NewTestService(t)
	store := blob.NewMemoryStore()

	var calls atomic.Int32
	s := NewBackupScheduler(NewBackupManager(svc.DB(), store), &SchedulerConfig{
		Interval:         time.Hour,
		StartImmediately: true,
		OnBackupComplete: func(info blob.Info, err error) {
			assert.NoError(t, err)
			calls.Add(1)
		},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.Error(t, s.Stop())

	status := s.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 1, status.BackupCount)
	assert.NotEmpty(t, status.LastKey)

	list, err := store.List(context.Background(), "backups/")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBackupScheduler_PeriodicRuns(t *testing.T) {
	svc := NewTestService(t)

	var calls atomic.Int32
	s := NewBackupScheduler(NewBackupManager(svc.DB(), blob.NewMemoryStore()), &SchedulerConfig{
		Interval:         20 * time.Millisecond,
		OnBackupComplete: func(blob.Info, error) { calls.Add(1) },
	})
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())

	// Restart after stop.
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestBackupScheduler_RecordsFailures(t *testing.T) {
	svc := NewTestService(t)
	s := NewBackupScheduler(NewBackupManager(svc.DB(), blob.NewMemoryStore()), &SchedulerConfig{
		BackupConfig: &BackupConfig{Encryption: &EncryptionConfig{}},
	})

	s.RunBackup(context.Background())

	status := s.Status()
	assert.Equal(t, 1, status.FailureCount)
	assert.Contains(t, status.LastError, "password")
	assert.Zero(t, status.BackupCount)
}
