package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pokedex"

// SyncMetrics tracks the sync engine's refreshes, tag builds, flushes and
// trade actions. Every method is safe on a nil receiver so components can run
// without metrics in tests.
type SyncMetrics struct {
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	tagBuildTotal   *prometheus.CounterVec
	tagBuildSeconds *prometheus.HistogramVec
	flushTotal      *prometheus.CounterVec
	flushEntries    *prometheus.CounterVec
	flushSeconds    prometheus.Histogram
	queueDepth      prometheus.Gauge
	tradeActions    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpSeconds     *prometheus.HistogramVec

	// Counters mirrored for the JSON stats endpoint.
	refreshes       atomic.Uint64
	networkFetches  atomic.Uint64
	tagBuilds       atomic.Uint64
	flushes         atomic.Uint64
	flushFailures   atomic.Uint64
	entriesApplied  atomic.Uint64
	entriesRejected atomic.Uint64
	depth           atomic.Int64
	lastFlushNanos  atomic.Int64

	startTime time.Time
}

// NewSyncMetrics creates the collectors on a private registry.
func NewSyncMetrics() *SyncMetrics {
	m := &SyncMetrics{
		registry: prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variant_refresh_total",
			Help:      "Variant cache refreshes by outcome.",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "variant_refresh_duration_seconds",
			Help:      "Variant cache refresh duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		tagBuildTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tag_builds_total",
			Help:      "Tag partition builds, labeled by partition and whether the memoized result was reused.",
		}, []string{"partition", "result"}),
		tagBuildSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tag_build_duration_seconds",
			Help:      "Tag partition build duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"partition"}),
		flushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_flush_total",
			Help:      "Batched update flushes by result.",
		}, []string{"result"}),
		flushEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_flush_entries_total",
			Help:      "Batched update entries replayed, by outcome.",
		}, []string{"outcome"}),
		flushSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_flush_duration_seconds",
			Help:      "Batched update flush duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_queue_depth",
			Help:      "Pending batched updates.",
		}),
		tradeActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_actions_total",
			Help:      "Trade lifecycle actions by action and result.",
		}, []string{"action", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"method", "route", "status"}),
		httpSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		startTime: time.Now(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.refreshTotal,
		m.refreshDuration,
		m.tagBuildTotal,
		m.tagBuildSeconds,
		m.flushTotal,
		m.flushEntries,
		m.flushSeconds,
		m.queueDepth,
		m.tradeActions,
		m.httpRequests,
		m.httpSeconds,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *SyncMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *SyncMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRefresh records one variant refresh. fetched marks a network fetch.
func (m *SyncMetrics) ObserveRefresh(outcome string, fetched bool, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(label(outcome)).Inc()
	m.refreshDuration.Observe(d.Seconds())
	m.refreshes.Add(1)
	if fetched {
		m.networkFetches.Add(1)
	}
}

// ObserveTagBuild records a tag partition build; reused marks a memo hit.
func (m *SyncMetrics) ObserveTagBuild(partition string, reused bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "built"
	if reused {
		result = "reused"
	} else {
		m.tagBuildSeconds.WithLabelValues(label(partition)).Observe(d.Seconds())
		m.tagBuilds.Add(1)
	}
	m.tagBuildTotal.WithLabelValues(label(partition), result).Inc()
}

// ObserveFlush records one flush attempt. A transport failure is recorded with
// transportErr set and no per-entry outcomes.
func (m *SyncMetrics) ObserveFlush(succeeded, failed int, transportErr bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case transportErr:
		result = "transport_error"
	case failed > 0:
		result = "partial"
	}
	m.flushTotal.WithLabelValues(result).Inc()
	m.flushEntries.WithLabelValues("applied").Add(float64(succeeded))
	m.flushEntries.WithLabelValues("rejected").Add(float64(failed))
	m.flushSeconds.Observe(d.Seconds())

	m.flushes.Add(1)
	if transportErr {
		m.flushFailures.Add(1)
	}
	m.entriesApplied.Add(uint64(succeeded))
	m.entriesRejected.Add(uint64(failed))
	m.lastFlushNanos.Store(time.Now().UnixNano())
}

// SetQueueDepth records the number of pending batched updates.
func (m *SyncMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
	m.depth.Store(int64(n))
}

// TradeAction records a trade lifecycle action and whether it succeeded.
func (m *SyncMetrics) TradeAction(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tradeActions.WithLabelValues(label(action), result).Inc()
}

// ObserveHTTP records one API request.
func (m *SyncMetrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, label(route), code).Inc()
	m.httpSeconds.WithLabelValues(method, label(route), code).Observe(d.Seconds())
}

// SyncStats is a JSON-friendly snapshot of the counters.
type SyncStats struct {
	Refreshes       uint64 `json:"refreshes"`
	NetworkFetches  uint64 `json:"network_fetches"`
	TagBuilds       uint64 `json:"tag_builds"`
	Flushes         uint64 `json:"flushes"`
	FlushFailures   uint64 `json:"flush_failures"`
	EntriesApplied  uint64 `json:"entries_applied"`
	EntriesRejected uint64 `json:"entries_rejected"`
	QueueDepth      int64  `json:"queue_depth"`
	LastFlush       string `json:"last_flush,omitempty"` // RFC 3339
	Uptime          string `json:"uptime"`               // human-readable uptime
}

// GetStats returns a snapshot of the current statistics.
func (m *SyncMetrics) GetStats() *SyncStats {
	if m == nil {
		return &SyncStats{}
	}
	stats := &SyncStats{
		Refreshes:       m.refreshes.Load(),
		NetworkFetches:  m.networkFetches.Load(),
		TagBuilds:       m.tagBuilds.Load(),
		Flushes:         m.flushes.Load(),
		FlushFailures:   m.flushFailures.Load(),
		EntriesApplied:  m.entriesApplied.Load(),
		EntriesRejected: m.entriesRejected.Load(),
		QueueDepth:      m.depth.Load(),
		Uptime:          time.Since(m.startTime).Round(time.Second).String(),
	}
	if ns := m.lastFlushNanos.Load(); ns > 0 {
		stats.LastFlush = time.Unix(0, ns).UTC().Format(time.RFC3339)
	}
	return stats
}

func label(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}
