package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// Flushable is the part of Queue the scheduler drives.
type Flushable interface {
	CheckAndFlush(ctx context.Context) (*FlushReport, error)
}

// SchedulerConfig configures the flush scheduler.
type SchedulerConfig struct {
	Logger   *slog.Logger
	Interval time.Duration // periodic flush (default: 1 minute)
	Debounce time.Duration // delay between Schedule and the flush (default: 5 seconds)
}

// Scheduler flushes the queue periodically and shortly after each mutation.
// Schedule calls within one debounce window collapse into a single flush.
// The flush itself always runs on the loop goroutine.
type Scheduler struct {
	queue     Flushable
	config    SchedulerConfig
	logger    *slog.Logger
	debounced func(f func())

	fire   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler for queue.
func NewScheduler(queue Flushable, config SchedulerConfig) (*Scheduler, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Debounce <= 0 {
		config.Debounce = 5 * time.Second
	}
	return &Scheduler{
		queue:     queue,
		config:    config,
		logger:    config.Logger.With("component", "batch-scheduler"),
		debounced: debounce.New(config.Debounce),
		fire:      make(chan struct{}, 1),
	}, nil
}

// Start begins the flush loop. It returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)

	s.logger.Info("Flush scheduler started",
		"interval", s.config.Interval,
		"debounce", s.config.Debounce)
	return nil
}

// Schedule requests a flush once the debounce delay passes without another
// Schedule call. It never blocks.
func (s *Scheduler) Schedule() {
	s.debounced(s.signal)
}

func (s *Scheduler) signal() {
	select {
	case s.fire <- struct{}{}:
	default:
	}
}

// Stop ends the loop and waits for an in-progress flush to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Flush scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-s.fire:
			s.flush(ctx, "scheduled")
		case <-ticker.C:
			s.flush(ctx, "periodic")
		}
	}
}

func (s *Scheduler) flush(ctx context.Context, trigger string) {
	report, err := s.queue.CheckAndFlush(ctx)
	if err != nil {
		s.logger.Error("Flush failed", "trigger", trigger, "error", err)
		return
	}
	if report.Skipped {
		return
	}
	s.logger.Debug("Flush complete", "trigger", trigger,
		"succeeded", report.Succeeded, "failed", report.Failed, "remaining", report.Remaining)
}
