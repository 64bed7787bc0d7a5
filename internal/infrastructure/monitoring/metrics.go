package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsRemoved prometheus.Counter
	SessionsPruned  prometheus.Counter

	// Watcher metrics
	ChangeEvents *prometheus.CounterVec // relevance: "relevant" | "ignored"

	// Rebuild metrics
	RebuildsScheduled prometheus.Counter
	RebuildsCoalesced prometheus.Counter
	BuildsDeduped     prometheus.Counter
	BuildsTotal       *prometheus.CounterVec // target, status
	BuildDuration     *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections   prometheus.Gauge
	WSEventsDropped prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebuild_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livebuild_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "livebuild_sessions_active",
				Help: "Number of registered editing sessions",
			},
		),
		SessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "livebuild_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsRemoved: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "livebuild_sessions_removed_total",
				Help: "Total number of sessions explicitly removed",
			},
		),
		SessionsPruned: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "livebuild_sessions_pruned_total",
				Help: "Total number of stale sessions pruned during reconciliation",
			},
		),

		ChangeEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebuild_change_events_total",
				Help: "File change events observed by workspace watchers",
			},
			[]string{"relevance"},
		),

		RebuildsScheduled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "livebuild_rebuilds_scheduled_total",
				Help: "Debounce timers started for relevant changes",
			},
		),
		RebuildsCoalesced: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "livebuild_rebuilds_coalesced_total",
				Help: "Pending rebuilds superseded by a newer change",
			},
		),
		BuildsDeduped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "livebuild_builds_deduped_total",
				Help: "Rebuild requests dropped because a build was in flight",
			},
		),
		BuildsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livebuild_builds_total",
				Help: "Compilation attempts per target and outcome",
			},
			[]string{"target", "status"},
		),
		BuildDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livebuild_build_duration_seconds",
				Help:    "Compilation duration per target",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"target"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "livebuild_ws_connections",
				Help: "Active WebSocket event stream connections",
			},
		),
		WSEventsDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "livebuild_ws_events_dropped_total",
				Help: "Lifecycle events dropped due to slow subscribers",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "livebuild_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBuild records the outcome of one compilation target
func (m *Metrics) RecordBuild(target string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.BuildsTotal.WithLabelValues(target, status).Inc()
	m.BuildDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// UpdateUptime refreshes the uptime gauge
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
