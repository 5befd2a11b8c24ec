// Package daemon wires the sync engine together and runs its background
// loops.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/batch"
	"github.com/ramonehamilton/Pokedex-Companion/internal/blob"
	"github.com/ramonehamilton/Pokedex-Companion/internal/config"
	"github.com/ramonehamilton/Pokedex-Companion/internal/events"
	"github.com/ramonehamilton/Pokedex-Companion/internal/freshness"
	"github.com/ramonehamilton/Pokedex-Companion/internal/instances"
	"github.com/ramonehamilton/Pokedex-Companion/internal/metrics"
	"github.com/ramonehamilton/Pokedex-Companion/internal/remote"
	"github.com/ramonehamilton/Pokedex-Companion/internal/session"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
	"github.com/ramonehamilton/Pokedex-Companion/internal/tags"
	"github.com/ramonehamilton/Pokedex-Companion/internal/trades"
	"github.com/ramonehamilton/Pokedex-Companion/internal/variants"
)

// RemoteClient is everything the engine needs from the remote authority.
type RemoteClient interface {
	FetchCatalog(ctx context.Context) (*models.Catalog, error)
	ApplyBatch(ctx context.Context, updates []models.BatchedUpdate) ([]models.BatchResult, error)
	RemoteSource
}

// Options overrides collaborators that New would otherwise build from the
// config. All fields are optional.
type Options struct {
	Logger *slog.Logger

	// Session defaults to a static session from the session section.
	Session *session.Static

	// Storage defaults to the database at the configured path. A supplied
	// service is not closed by Stop.
	Storage *storage.Service
	DBPath  string

	Remote RemoteClient

	// BackupStore receives scheduled backups. Defaults to OpenBackupStore
	// when backup.interval is set.
	BackupStore blob.Store

	// ConfigPath enables live reload of the session section.
	ConfigPath string

	// VerboseEvents logs event payloads.
	VerboseEvents bool
}

// Service owns the sync engine components and their background loops.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	storage     *storage.Service
	ownsStorage bool
	session     *session.Static
	client      RemoteClient
	tracker     *freshness.Tracker
	metrics     *metrics.SyncMetrics
	dispatcher  *events.EventDispatcher

	variants  *variants.Cache
	instances *instances.Store
	tags      *tags.Index
	trades    *trades.Service
	queue     *batch.Queue
	flusher   *batch.Scheduler
	pull      *RemoteSync

	backups         *storage.BackupScheduler
	configPath      string
	refreshInterval time.Duration

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time
}

// New builds the engine from cfg. Nothing runs until Start.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:             cfg,
		logger:          logger.With("component", "daemon"),
		session:         opts.Session,
		client:          opts.Remote,
		storage:         opts.Storage,
		configPath:      opts.ConfigPath,
		refreshInterval: cfg.GetRefreshCheckInterval(),
		metrics:         metrics.NewSyncMetrics(),
		dispatcher:      events.NewEventDispatcher(logger),
	}

	if s.session == nil {
		s.session = session.NewStatic(cfg.Session.Username, cfg.Session.Authenticated)
	}

	if s.storage == nil {
		db, err := storage.Open(StorageConfig(cfg, opts.DBPath))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.storage = storage.NewService(db)
		s.ownsStorage = true
	}

	if s.client == nil {
		rc := RemoteConfig(cfg)
		rc.Logger = logger
		client, err := remote.NewClient(rc)
		if err != nil {
			s.closeStorage()
			return nil, fmt.Errorf("failed to create remote client: %w", err)
		}
		s.client = client
	}

	fc := FreshnessConfig(cfg)
	fc.Logger = logger
	s.tracker = freshness.NewTracker(s.storage.CacheStamps(), fc)

	s.dispatcher.Register(events.NewLoggingObserver(logger, opts.VerboseEvents))

	s.variants = variants.New(s.storage, s.client, s.tracker, variants.Options{
		Logger:  logger,
		Events:  s.dispatcher,
		Metrics: s.metrics,
	})

	s.queue = batch.NewQueue(s.storage.BatchedUpdates(), s.client, batch.Options{
		Logger:  logger,
		Events:  s.dispatcher,
		Metrics: s.metrics,
		Session: s.session,
	})
	flusher, err := batch.NewScheduler(s.queue, batch.SchedulerConfig{
		Logger:   logger,
		Interval: cfg.GetFlushInterval(),
		Debounce: cfg.GetFlushDebounce(),
	})
	if err != nil {
		s.closeStorage()
		return nil, err
	}
	s.flusher = flusher

	s.instances = instances.New(s.storage, s.variants, instances.Options{
		Logger:    logger,
		Events:    s.dispatcher,
		Session:   s.session,
		Flusher:   s.queue,
		Scheduler: s.flusher,
		Stamper:   s.tracker,
	})

	s.tags = tags.New(s.variants, s.instances, tags.Options{
		Logger:    logger,
		Events:    s.dispatcher,
		Metrics:   s.metrics,
		Snapshots: s.storage.TagSnapshots(),
		Freshness: s.tracker,
	})
	s.dispatcher.Register(s.tags.Observer())

	s.trades = trades.NewService(s.storage, trades.ServiceOptions{
		Logger:    logger,
		Events:    s.dispatcher,
		Metrics:   s.metrics,
		Session:   s.session,
		Instances: s.instances,
		Scheduler: s.flusher,
	})

	s.pull = NewRemoteSync(s.client, s.instances, s.trades, s.session, RemoteSyncConfig{
		Interval: cfg.GetPullInterval(),
		Timeout:  cfg.GetRemoteTimeout() * 2,
		Logger:   logger,
	})

	if interval := cfg.GetBackupInterval(); interval > 0 {
		store := opts.BackupStore
		if store == nil {
			store, err = OpenBackupStore(context.Background(), cfg)
			if err != nil {
				s.closeStorage()
				return nil, fmt.Errorf("failed to open backup store: %w", err)
			}
		}
		s.backups = storage.NewBackupScheduler(storage.NewBackupManager(s.storage.DB(), store), &storage.SchedulerConfig{
			Interval:     interval,
			BackupConfig: &storage.BackupConfig{Encryption: BackupEncryption(cfg)},
			Logger:       logger,
		})
	}

	return s, nil
}

// Start hydrates the caches and starts the background loops: the variant
// catalog is served from disk first, the tag snapshot is painted from its
// cache, and the instance collection loads in the background once the
// catalog is ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("daemon already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startTime = time.Now()
	s.logger.Info("Starting sync engine", "user", s.session.Username())

	s.variants.HydrateFromCache(ctx)
	s.tags.HydrateFromCache(ctx)

	if err := s.trades.Hydrate(ctx); err != nil {
		s.logger.Warn("Failed to load stored trades", "error", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.instances.Bootstrap(ctx); err != nil {
			s.logger.Warn("Instance bootstrap interrupted", "error", err)
			return
		}
		if _, err := s.pull.FullSync(ctx); err != nil {
			s.logger.Warn("Initial pull failed", "error", err)
		}
	}()

	if err := s.flusher.Start(ctx); err != nil {
		cancel()
		s.cancel = nil
		return fmt.Errorf("failed to start flush scheduler: %w", err)
	}

	s.wg.Add(1)
	go s.refreshLoop(ctx)

	s.pull.StartScheduledSync(ctx)

	if s.backups != nil {
		if err := s.backups.Start(ctx); err != nil {
			s.logger.Warn("Failed to start backup scheduler", "error", err)
		}
	}

	if s.configPath != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := config.Watch(ctx, s.configPath, s.logger, s.applyConfig); err != nil {
				s.logger.Warn("Config watcher stopped", "error", err)
			}
		}()
	}

	return nil
}

// refreshLoop re-checks catalog freshness on an interval. Fresh stamps make
// each check free of network calls.
func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcome := s.variants.RefreshVariants(ctx)
			s.logger.Debug("Catalog freshness check", "outcome", outcome.String())
		}
	}
}

// applyConfig picks up session changes from a reloaded config. Signing out
// clears the foreign partition; signing in triggers a pull and a flush.
func (s *Service) applyConfig(cfg *config.Config) {
	prevUser := s.session.Username()
	prevAuth := s.session.Authenticated()
	s.session.Set(cfg.Session.Username, cfg.Session.Authenticated)

	if c, ok := s.client.(*remote.Client); ok {
		c.SetToken(cfg.AuthToken())
	}

	if s.session.Username() == prevUser && s.session.Authenticated() == prevAuth {
		return
	}
	s.logger.Info("Session changed", "user", s.session.Username(), "authenticated", s.session.Authenticated())

	ctx := context.Background()
	if !s.session.Authenticated() {
		s.instances.ResetForeignInstances(ctx)
		return
	}
	s.flusher.Schedule()
	go func() {
		if _, err := s.pull.FullSync(ctx); err != nil {
			s.logger.Warn("Pull after sign-in failed", "error", err)
		}
	}()
}

// Stop cancels the background loops and waits for them. It closes the
// database when New opened it.
func (s *Service) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		s.logger.Info("Stopping sync engine")
		cancel()
		s.flusher.Stop()
		s.pull.StopScheduledSync()
		if s.backups != nil && s.backups.IsRunning() {
			_ = s.backups.Stop()
		}
		s.variants.Wait()
		s.wg.Wait()
	}

	return s.closeStorage()
}

func (s *Service) closeStorage() error {
	if !s.ownsStorage || s.storage == nil {
		return nil
	}
	s.ownsStorage = false
	return s.storage.Close()
}

// Refresh fetches the catalog now. force ignores the freshness stamps.
func (s *Service) Refresh(ctx context.Context, force bool) variants.RefreshOutcome {
	if force {
		return s.variants.ForceRefresh(ctx)
	}
	return s.variants.RefreshVariants(ctx)
}

// Flush replays the batched update queue now.
func (s *Service) Flush(ctx context.Context) (*batch.FlushReport, error) {
	return s.queue.CheckAndFlush(ctx)
}

// Pull fetches the signed-in trainer's collection and trades now.
func (s *Service) Pull(ctx context.Context) (*SyncResult, error) {
	return s.pull.FullSync(ctx)
}

// FetchForeign loads another trainer's collection for comparison.
func (s *Service) FetchForeign(ctx context.Context, username string) (int, error) {
	return s.pull.FetchForeign(ctx, username)
}

// Uptime returns how long the engine has been running.
func (s *Service) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Variants returns the variant cache.
func (s *Service) Variants() *variants.Cache { return s.variants }

// Instances returns the instance store.
func (s *Service) Instances() *instances.Store { return s.instances }

// Tags returns the tag index.
func (s *Service) Tags() *tags.Index { return s.tags }

// Trades returns the trade service.
func (s *Service) Trades() *trades.Service { return s.trades }

// Queue returns the batched update queue.
func (s *Service) Queue() *batch.Queue { return s.queue }

// Metrics returns the engine metrics.
func (s *Service) Metrics() *metrics.SyncMetrics { return s.metrics }

// Dispatcher returns the event dispatcher.
func (s *Service) Dispatcher() *events.EventDispatcher { return s.dispatcher }

// Session returns the session the engine reads.
func (s *Service) Session() *session.Static { return s.session }

// Storage returns the storage service.
func (s *Service) Storage() *storage.Service { return s.storage }
