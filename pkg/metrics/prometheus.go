// Package metrics provides Prometheus metrics for the epiwatch service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Feed ingestion
	fetchTotal    prometheus.Counter
	fetchErrors   *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	parseErrors   prometheus.Counter

	// Snapshot state
	snapshotRegions  prometheus.Gauge
	snapshotWarnings prometheus.Gauge
	snapshotLastUnix prometheus.Gauge

	// Reconciliation
	reconcileTicks    prometheus.Counter
	reconcileSkips    *prometheus.CounterVec
	reconcileDuration prometheus.Histogram

	// Notification delivery
	notificationsSent   prometheus.Counter
	notificationsFailed prometheus.Counter

	// Subscriptions
	subscriptionsActive prometheus.Gauge

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager()
}

// NewManager creates a manager with its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "epiwatch",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.fetchTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "fetch_total",
		Help: "Feed fetch attempts.",
	})
	m.fetchErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "fetch_errors_total",
		Help: "Feed fetch failures by reason.",
	}, []string{"reason"})
	m.fetchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Name: "fetch_duration_seconds",
		Help: "Feed fetch latency.", Buckets: m.histogramBuckets,
	})
	m.parseErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "parse_errors_total",
		Help: "Snapshot publications that failed to parse.",
	})

	m.snapshotRegions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "snapshot_regions",
		Help: "Regions in the currently published snapshot.",
	})
	m.snapshotWarnings = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "snapshot_warnings",
		Help: "Row warnings recorded while parsing the current snapshot.",
	})
	m.snapshotLastUnix = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "snapshot_last_timestamp_seconds",
		Help: "Timestamp of the currently published snapshot.",
	})

	m.reconcileTicks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "reconcile_ticks_total",
		Help: "Completed reconciliation ticks.",
	})
	m.reconcileSkips = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "reconcile_skips_total",
		Help: "Ticks skipped before reconciliation, by stage.",
	}, []string{"stage"})
	m.reconcileDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Name: "reconcile_duration_seconds",
		Help: "Duration of the reconcile phase.", Buckets: m.histogramBuckets,
	})

	m.notificationsSent = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "notifications_sent_total",
		Help: "Successful notification deliveries.",
	})
	m.notificationsFailed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "notifications_failed_total",
		Help: "Failed notification deliveries.",
	})

	m.subscriptionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Name: "subscriptions_active",
		Help: "Subscriptions currently stored.",
	})

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Name: "http_requests_total",
		Help: "HTTP requests by endpoint and status.",
	}, []string{"endpoint", "status"})
	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Name: "http_request_duration_seconds",
		Help: "HTTP request latency by endpoint.", Buckets: m.histogramBuckets,
	}, []string{"endpoint"})
}

// Handler returns an HTTP handler serving the global registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(globalManager.registry, promhttp.HandlerOpts{})
}

// Package-level recording helpers against the global manager.

func RecordFetch()                     { globalManager.fetchTotal.Inc() }
func RecordFetchError(reason string)   { globalManager.fetchErrors.WithLabelValues(reason).Inc() }
func ObserveFetchDuration(sec float64) { globalManager.fetchDuration.Observe(sec) }
func RecordParseError()                { globalManager.parseErrors.Inc() }

func UpdateSnapshotRegions(n int)        { globalManager.snapshotRegions.Set(float64(n)) }
func UpdateSnapshotWarnings(n int)       { globalManager.snapshotWarnings.Set(float64(n)) }
func UpdateSnapshotTimestamp(unix int64) { globalManager.snapshotLastUnix.Set(float64(unix)) }

func RecordReconcileTick()                 { globalManager.reconcileTicks.Inc() }
func RecordReconcileSkip(stage string)     { globalManager.reconcileSkips.WithLabelValues(stage).Inc() }
func ObserveReconcileDuration(sec float64) { globalManager.reconcileDuration.Observe(sec) }

func RecordNotificationSent()   { globalManager.notificationsSent.Inc() }
func RecordNotificationFailed() { globalManager.notificationsFailed.Inc() }

func UpdateSubscriptionsActive(n int) { globalManager.subscriptionsActive.Set(float64(n)) }

func RecordHTTPRequest(endpoint, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, status).Inc()
}

func ObserveHTTPRequestDuration(endpoint string, sec float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint).Observe(sec)
}
