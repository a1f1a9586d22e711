package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRegistry holds all Prometheus metrics for StudioSync
type MetricsRegistry struct {
	// HTTP Metrics
	HTTPRequestsTotal    prometheus.CounterVec
	HTTPRequestDuration  prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.GaugeVec

	// Sync Metrics
	OpsEnqueuedTotal  prometheus.CounterVec
	PushesTotal       prometheus.CounterVec
	PullsAppliedTotal prometheus.CounterVec
	ConflictsTotal    prometheus.CounterVec
	SyncCycleDuration prometheus.HistogramVec

	// Queue Metrics
	QueueDepth      prometheus.Gauge
	EntitiesInError prometheus.Gauge
	OpAttempts      prometheus.HistogramVec

	// Connectivity Metrics
	ConnectivityQuality prometheus.Gauge
	ProbeDuration       prometheus.Histogram
}

// NewMetricsRegistry initializes and returns a new MetricsRegistry with all metrics
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		// HTTP Metrics
		HTTPRequestsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiosync_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studiosync_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: *promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "studiosync_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"endpoint"},
		),

		// Sync Metrics
		OpsEnqueuedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiosync_ops_enqueued_total",
				Help: "Total sync operations enqueued by entity type and kind",
			},
			[]string{"entity_type", "kind"},
		),
		PushesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiosync_pushes_total",
				Help: "Total push attempts by entity type and outcome (acked, requeued, rejected, conflict)",
			},
			[]string{"entity_type", "outcome"},
		),
		PullsAppliedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiosync_pulls_applied_total",
				Help: "Total remote records applied locally by entity type",
			},
			[]string{"entity_type"},
		),
		ConflictsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiosync_conflicts_total",
				Help: "Total conflicts resolved by strategy and winner",
			},
			[]string{"strategy", "winner"},
		),
		SyncCycleDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studiosync_sync_cycle_duration_seconds",
				Help:    "Sync cycle execution time in seconds by phase",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"phase"},
		),

		// Queue Metrics
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "studiosync_queue_depth",
				Help: "Current number of pending sync operations",
			},
		),
		EntitiesInError: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "studiosync_entities_in_error",
				Help: "Current number of entities in error or conflict status",
			},
		),
		OpAttempts: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studiosync_op_attempts",
				Help:    "Attempt count distribution of acknowledged operations",
				Buckets: []float64{1, 2, 3, 4, 5, 10},
			},
			[]string{"entity_type"},
		),

		// Connectivity Metrics
		ConnectivityQuality: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "studiosync_connectivity_quality",
				Help: "Current connectivity quality (0=none, 1=poor, 2=good, 3=excellent)",
			},
		),
		ProbeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "studiosync_probe_duration_seconds",
				Help:    "Reachability probe round-trip time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 0.75, 1, 2, 5},
			},
		),
	}
}
