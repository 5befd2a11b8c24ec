package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/blob"
)

// BackupScheduler runs backups on a fixed interval.
type BackupScheduler struct {
	manager  *BackupManager
	config   *SchedulerConfig
	logger   *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu           sync.RWMutex
	running      bool
	lastBackup   time.Time
	lastKey      string
	lastError    error
	backupCount  int
	failureCount int
}

// SchedulerConfig holds configuration for the backup scheduler.
type SchedulerConfig struct {
	// Interval is how often to run backups. Default: 24h
	Interval time.Duration

	// BackupConfig is used for each backup. Name is ignored so every run
	// gets a timestamped key.
	BackupConfig *BackupConfig

	// StartImmediately runs a backup as soon as the scheduler starts.
	StartImmediately bool

	// OnBackupComplete is called after each attempt.
	OnBackupComplete func(info blob.Info, err error)

	Logger *slog.Logger
}

// DefaultSchedulerConfig returns a scheduler config with daily backups.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Interval:     24 * time.Hour,
		BackupConfig: &BackupConfig{},
	}
}

// NewBackupScheduler creates a new backup scheduler.
func NewBackupScheduler(manager *BackupManager, config *SchedulerConfig) *BackupScheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupScheduler{
		manager: manager,
		config:  config,
		logger:  logger.With("component", "backup-scheduler"),
	}
}

// Start starts the scheduler. It returns an error if already running.
func (s *BackupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.run(ctx, s.stopChan)
	return nil
}

// Stop stops the scheduler and waits for a running backup to finish.
func (s *BackupScheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *BackupScheduler) run(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	if s.config.StartImmediately {
		s.RunBackup(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.RunBackup(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunBackup executes one backup and records the outcome.
func (s *BackupScheduler) RunBackup(ctx context.Context) {
	cfg := BackupConfig{}
	if s.config.BackupConfig != nil {
		cfg = *s.config.BackupConfig
		cfg.Name = ""
	}
	info, err := s.manager.Backup(ctx, &cfg)

	s.mu.Lock()
	s.lastBackup = time.Now()
	s.lastError = err
	if err != nil {
		s.failureCount++
	} else {
		s.backupCount++
		s.lastKey = info.Key
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Scheduled backup failed", "error", err)
	} else {
		s.logger.Info("Scheduled backup written", "key", info.Key, "size", info.Size)
	}
	if s.config.OnBackupComplete != nil {
		s.config.OnBackupComplete(info, err)
	}
}

// SchedulerStatus contains information about the scheduler state.
type SchedulerStatus struct {
	Running      bool          `json:"running"`
	Interval     time.Duration `json:"interval"`
	LastBackup   time.Time     `json:"last_backup"`
	LastKey      string        `json:"last_key,omitempty"`
	NextBackup   time.Time     `json:"next_backup"`
	BackupCount  int           `json:"backup_count"`
	FailureCount int           `json:"failure_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Status returns the current scheduler status.
func (s *BackupScheduler) Status() *SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := &SchedulerStatus{
		Running:      s.running,
		Interval:     s.config.Interval,
		LastBackup:   s.lastBackup,
		LastKey:      s.lastKey,
		BackupCount:  s.backupCount,
		FailureCount: s.failureCount,
	}
	if s.running && !s.lastBackup.IsZero() {
		status.NextBackup = s.lastBackup.Add(s.config.Interval)
	}
	if s.lastError != nil {
		status.LastError = s.lastError.Error()
	}
	return status
}

// IsRunning returns whether the scheduler is currently running.
func (s *BackupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
