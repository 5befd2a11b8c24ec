package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/remote"
	"github.com/ramonehamilton/Pokedex-Companion/internal/session"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// RemoteSource is the read side of the remote authority.
type RemoteSource interface {
	FetchCollection(ctx context.Context, username, etag string) (*remote.Collection, error)
	FetchTrades(ctx context.Context, username string) (*remote.TradesSnapshot, error)
}

// CollectionSink receives pulled collections. Each pull takes a token when
// it starts; a sink discards results whose token has been superseded.
type CollectionSink interface {
	LocalToken() uint64
	MergePulled(ctx context.Context, token uint64, incoming map[string]*models.Instance) (bool, error)
	BeginForeign() uint64
	ApplyForeign(ctx context.Context, token uint64, owner string, data map[string]*models.Instance) bool
	ResetForeignInstances(ctx context.Context)
}

// ErrSuperseded is returned by FetchForeign when a newer fetch or a reset
// replaced the foreign partition while this fetch was in flight.
var ErrSuperseded = errors.New("superseded by a newer request")

// TradeSink receives pulled trades.
type TradeSink interface {
	ApplyRemoteTrades(ctx context.Context, incoming map[string]*models.TradeRecord, related map[string]*models.RelatedInstance) error
}

// RemoteSyncConfig holds configuration for the pull loop.
type RemoteSyncConfig struct {
	// Interval is how often to pull (0 = disabled).
	Interval time.Duration

	// Timeout bounds a single pull.
	Timeout time.Duration

	Logger *slog.Logger
}

// SyncResult contains the result of a pull.
type SyncResult struct {
	Instances   int           `json:"instances"`
	Trades      int           `json:"trades"`
	NotModified bool          `json:"notModified"`
	Discarded   bool          `json:"discarded"`
	Skipped     bool          `json:"skipped"`
	Duration    time.Duration `json:"duration"`
}

// RemoteSync pulls the signed-in trainer's collection and trades from the
// remote authority and merges them into the local stores. Records with an
// edit still waiting in the batched update queue keep their local state.
type RemoteSync struct {
	source    RemoteSource
	instances CollectionSink
	trades    TradeSink
	session   session.Session
	config    RemoteSyncConfig
	logger    *slog.Logger

	mu       sync.Mutex
	syncing  bool
	lastSync time.Time
	etag     string

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewRemoteSync creates a pull loop. trades may be nil.
func NewRemoteSync(source RemoteSource, instances CollectionSink, trades TradeSink, sess session.Session, config RemoteSyncConfig) *RemoteSync {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	return &RemoteSync{
		source:    source,
		instances: instances,
		trades:    trades,
		session:   sess,
		config:    config,
		logger:    logger.With("component", "remote-sync"),
	}
}

// FullSync pulls the collection and trades once. It is skipped when the
// trainer is signed out, and fails when another pull is running.
func (s *RemoteSync) FullSync(ctx context.Context) (*SyncResult, error) {
	if s.session == nil || !s.session.Authenticated() {
		return &SyncResult{Skipped: true}, nil
	}

	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		return nil, fmt.Errorf("sync already in progress")
	}
	s.syncing = true
	etag := s.etag
	s.mu.Unlock()

	start := time.Now()
	result := &SyncResult{}
	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.lastSync = time.Now()
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	username := s.session.Username()
	token := s.instances.LocalToken()

	coll, err := s.source.FetchCollection(ctx, username, etag)
	if err != nil {
		return nil, err
	}
	if coll.NotModified {
		result.NotModified = true
	} else {
		applied, err := s.instances.MergePulled(ctx, token, coll.Instances)
		if err != nil {
			return nil, fmt.Errorf("failed to merge pulled collection: %w", err)
		}
		if applied {
			result.Instances = len(coll.Instances)
			s.mu.Lock()
			s.etag = coll.ETag
			s.mu.Unlock()
		} else {
			result.Discarded = true
		}
	}

	if s.trades != nil {
		snap, err := s.source.FetchTrades(ctx, username)
		if err != nil {
			return nil, err
		}
		incoming := make(map[string]*models.TradeRecord, len(snap.Trades))
		for i := range snap.Trades {
			t := snap.Trades[i]
			incoming[t.TradeID] = &t
		}
		related := make(map[string]*models.RelatedInstance, len(snap.RelatedInstances))
		for i := range snap.RelatedInstances {
			r := snap.RelatedInstances[i]
			related[r.InstanceID] = &r
		}
		if err := s.trades.ApplyRemoteTrades(ctx, incoming, related); err != nil {
			return nil, fmt.Errorf("failed to apply pulled trades: %w", err)
		}
		result.Trades = len(incoming)
	}

	result.Duration = time.Since(start)
	s.logger.Info("Pulled remote state",
		"instances", result.Instances,
		"trades", result.Trades,
		"not_modified", result.NotModified,
		"discarded", result.Discarded,
		"duration", result.Duration)
	return result, nil
}

// FetchForeign loads another trainer's collection into the foreign partition.
// An empty username clears it.
func (s *RemoteSync) FetchForeign(ctx context.Context, username string) (int, error) {
	if username == "" {
		s.instances.ResetForeignInstances(ctx)
		return 0, nil
	}
	token := s.instances.BeginForeign()
	coll, err := s.source.FetchCollection(ctx, username, "")
	if err != nil {
		return 0, err
	}
	owner := coll.Username
	if owner == "" {
		owner = username
	}
	if !s.instances.ApplyForeign(ctx, token, owner, coll.Instances) {
		return 0, fmt.Errorf("foreign collection for %s: %w", username, ErrSuperseded)
	}
	return len(coll.Instances), nil
}

// IsSyncing returns true if a pull is currently in progress.
func (s *RemoteSync) IsSyncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// LastSyncTime returns the time of the last pull attempt.
func (s *RemoteSync) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// StartScheduledSync starts periodic pulls.
func (s *RemoteSync) StartScheduledSync(ctx context.Context) {
	if s.config.Interval <= 0 {
		return
	}

	s.mu.Lock()
	if s.stopChan != nil {
		s.mu.Unlock()
		return
	}
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.FullSync(ctx); err != nil {
					s.logger.Warn("Scheduled pull failed", "error", err)
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopScheduledSync stops periodic pulls and waits for the loop to exit.
func (s *RemoteSync) StopScheduledSync() {
	s.mu.Lock()
	if s.stopChan == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.doneChan
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	s.stopChan = nil
	s.doneChan = nil
	s.mu.Unlock()
}
