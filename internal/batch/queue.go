// Package batch keeps the durable, ordered log of local mutations waiting to
// be replayed against the remote authority.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/events"
	"github.com/ramonehamilton/Pokedex-Companion/internal/metrics"
	"github.com/ramonehamilton/Pokedex-Companion/internal/session"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/repository"
)

// Applier replays descriptors against the remote authority.
type Applier interface {
	ApplyBatch(ctx context.Context, updates []models.BatchedUpdate) ([]models.BatchResult, error)
}

// FlushReport summarizes one flush.
type FlushReport struct {
	Attempted int
	Succeeded int
	Failed    int
	// Superseded counts acknowledged entries that were re-queued during the
	// flush and therefore kept.
	Superseded int
	Remaining  int
	// Skipped is set when nothing was sent: a flush was already running, the
	// queue was empty, or the trainer is signed out.
	Skipped bool
	// TransportErr is the failure that kept every entry queued, if any.
	TransportErr error
	Duration     time.Duration
}

// Options holds the optional collaborators of a Queue.
type Options struct {
	Logger  *slog.Logger
	Events  events.Publisher
	Metrics *metrics.SyncMetrics
	// Session gates flushing; nil means always allowed.
	Session session.Session
	Now     func() time.Time
}

// Queue is the batched update log.
type Queue struct {
	repo    repository.BatchedUpdateRepository
	applier Applier
	session session.Session
	events  events.Publisher
	metrics *metrics.SyncMetrics
	logger  *slog.Logger
	now     func() time.Time

	flushing atomic.Bool
}

// NewQueue creates a queue over repo.
func NewQueue(repo repository.BatchedUpdateRepository, applier Applier, opts Options) *Queue {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Queue{
		repo:    repo,
		applier: applier,
		session: opts.Session,
		events:  opts.Events,
		metrics: opts.Metrics,
		logger:  logger.With("component", "batch"),
		now:     now,
	}
}

// NewUpdate builds a payload-complete descriptor. payload is marshaled as-is,
// so callers pass the whole record rather than a delta.
func NewUpdate(key, operation string, payload any, lastUpdate int64) (*models.BatchedUpdate, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload for %s: %w", operation, key, err)
	}
	return &models.BatchedUpdate{
		Key:        key,
		Operation:  operation,
		Payload:    data,
		LastUpdate: lastUpdate,
	}, nil
}

// Put stores a descriptor under its key, replacing any pending one.
func (q *Queue) Put(ctx context.Context, update *models.BatchedUpdate) error {
	if update.LastUpdate == 0 {
		update.LastUpdate = q.now().UnixMilli()
	}
	if _, err := q.repo.Put(ctx, update); err != nil {
		return fmt.Errorf("failed to queue update %s: %w", update.Key, err)
	}
	q.refreshDepth(ctx)
	return nil
}

// GetAll returns every pending descriptor in insertion order.
func (q *Queue) GetAll(ctx context.Context) ([]*models.BatchedUpdate, error) {
	return q.repo.GetAll(ctx)
}

// Get returns the pending descriptor for key, or nil.
func (q *Queue) Get(ctx context.Context, key string) (*models.BatchedUpdate, error) {
	return q.repo.Get(ctx, key)
}

// Delete drops the descriptor for key.
func (q *Queue) Delete(ctx context.Context, key string) error {
	if err := q.repo.Delete(ctx, key); err != nil {
		return err
	}
	q.refreshDepth(ctx)
	return nil
}

// Clear drops every pending descriptor.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.repo.Clear(ctx); err != nil {
		return err
	}
	q.refreshDepth(ctx)
	return nil
}

// Len returns the number of pending descriptors.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.repo.Count(ctx)
}

// CheckAndFlush flushes the current queue when it is not empty.
func (q *Queue) CheckAndFlush(ctx context.Context) (*FlushReport, error) {
	snapshot, err := q.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read batched updates: %w", err)
	}
	if len(snapshot) == 0 {
		return &FlushReport{Skipped: true}, nil
	}
	return q.Flush(ctx, snapshot)
}

// Flush replays snapshot in order. Acknowledged entries are removed only if
// they were not re-queued meanwhile; rejected entries stay with their attempt
// count bumped. A transport failure keeps everything and is reported in
// FlushReport.TransportErr rather than returned.
func (q *Queue) Flush(ctx context.Context, snapshot []*models.BatchedUpdate) (*FlushReport, error) {
	if len(snapshot) == 0 {
		return &FlushReport{Skipped: true}, nil
	}
	if q.session != nil && !q.session.Authenticated() {
		q.logger.Debug("Skipping flush, trainer not signed in")
		return &FlushReport{Skipped: true}, nil
	}
	if !q.flushing.CompareAndSwap(false, true) {
		q.logger.Debug("Flush already in progress")
		return &FlushReport{Skipped: true}, nil
	}
	defer q.flushing.Store(false)

	start := time.Now()
	report := &FlushReport{Attempted: len(snapshot)}

	updates := make([]models.BatchedUpdate, len(snapshot))
	bySeq := make(map[string]int64, len(snapshot))
	for i, u := range snapshot {
		updates[i] = *u
		bySeq[u.Key] = u.Seq
	}

	results, err := q.applier.ApplyBatch(ctx, updates)
	if err != nil {
		report.TransportErr = err
		for _, u := range snapshot {
			if ferr := q.repo.RecordFailure(ctx, u.Key, u.Seq, err.Error()); ferr != nil {
				q.logger.Warn("Failed to record flush failure", "key", u.Key, "error", ferr)
			}
		}
		q.logger.Warn("Flush failed, updates stay queued", "count", len(snapshot), "error", err)
		return q.finish(ctx, report, start), nil
	}

	seen := make(map[string]bool, len(results))
	for _, r := range results {
		seq, ok := bySeq[r.Key]
		if !ok || seen[r.Key] {
			continue
		}
		seen[r.Key] = true

		if !r.OK {
			report.Failed++
			if ferr := q.repo.RecordFailure(ctx, r.Key, seq, r.Error); ferr != nil {
				q.logger.Warn("Failed to record rejected update", "key", r.Key, "error", ferr)
			}
			q.logger.Warn("Remote rejected update", "key", r.Key, "error", r.Error)
			continue
		}

		removed, derr := q.repo.DeleteIfUnchanged(ctx, r.Key, seq)
		if derr != nil {
			return nil, fmt.Errorf("failed to remove applied update %s: %w", r.Key, derr)
		}
		report.Succeeded++
		if !removed {
			report.Superseded++
		}
	}

	// Keys the remote did not answer for stay queued for the next flush.
	return q.finish(ctx, report, start), nil
}

// Flushing reports whether a flush is in progress.
func (q *Queue) Flushing() bool {
	return q.flushing.Load()
}

func (q *Queue) finish(ctx context.Context, report *FlushReport, start time.Time) *FlushReport {
	report.Duration = time.Since(start)
	if n, err := q.repo.Count(ctx); err == nil {
		report.Remaining = n
		q.metrics.SetQueueDepth(n)
	}
	q.metrics.ObserveFlush(report.Succeeded, report.Failed, report.TransportErr != nil, report.Duration)

	ev := events.BatchFlushedEvent{
		Attempted: report.Attempted,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Remaining: report.Remaining,
	}
	if report.TransportErr != nil {
		ev.Error = report.TransportErr.Error()
	}
	events.Publish(ctx, q.events, events.TopicBatchFlushed, ev)

	q.logger.Info("Flushed batched updates",
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"remaining", report.Remaining)
	return report
}

func (q *Queue) refreshDepth(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	if n, err := q.repo.Count(ctx); err == nil {
		q.metrics.SetQueueDepth(n)
	}
}
