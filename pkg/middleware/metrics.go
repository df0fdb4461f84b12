// Package middleware provides HTTP middleware and metric recording hooks
// for the algoviz server: Prometheus metrics and OpenTelemetry tracing.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "algoviz").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for durations.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "algoviz",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus instruments.
type metrics struct {
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	eventsTotal       *prometheus.CounterVec
	eventDuration     *prometheus.HistogramVec
	broadcastsTotal   prometheus.Counter
	evictionsTotal    prometheus.Counter
	activeSessions    prometheus.Gauge
	activeConnections prometheus.Gauge
}

var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_total",
			Help:        "Total HTTP requests by path and status code",
			ConstLabels: config.ConstLabels,
		}, []string{"path", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"path"}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "events_total",
			Help:        "Total realtime events processed by type and status",
			ConstLabels: config.ConstLabels,
		}, []string{"type", "status"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "event_duration_seconds",
			Help:        "Realtime event processing duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"type"}),

		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "broadcasts_total",
			Help:        "Total messages fanned out to session subscribers",
			ConstLabels: config.ConstLabels,
		}),

		evictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "session_evictions_total",
			Help:        "Total sessions evicted by the sweeper",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "active_sessions",
			Help:        "Number of live sessions in the registry",
			ConstLabels: config.ConstLabels,
		}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "active_connections",
			Help:        "Number of open websocket connections",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// statusRecorder captures the response status for labeling.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Prometheus creates HTTP middleware that records request metrics and
// initializes the shared instruments used by the Record* functions.
//
// Expose the registry with promhttp.Handler() on /metrics.
func Prometheus(opts ...MetricsOption) func(http.Handler) http.Handler {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			path := r.URL.Path
			m.httpDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
			m.httpRequests.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
		})
	}
}

// =============================================================================
// Recording hooks, called from the gateway and sweeper
// =============================================================================

// RecordEvent records one processed realtime event.
func RecordEvent(eventType string, err error, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	globalMetrics.eventsTotal.WithLabelValues(eventType, status).Inc()
	globalMetrics.eventDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordBroadcast records n messages fanned out to subscribers.
func RecordBroadcast(n int) {
	if globalMetrics != nil && n > 0 {
		globalMetrics.broadcastsTotal.Add(float64(n))
	}
}

// RecordEvictions records n sessions removed by a sweep.
func RecordEvictions(n int) {
	if globalMetrics != nil && n > 0 {
		globalMetrics.evictionsTotal.Add(float64(n))
	}
}

// SetActiveSessions updates the live session gauge.
func SetActiveSessions(n int) {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Set(float64(n))
	}
}

// RecordConnectionOpen records a websocket connection opening.
func RecordConnectionOpen() {
	if globalMetrics != nil {
		globalMetrics.activeConnections.Inc()
	}
}

// RecordConnectionClose records a websocket connection closing.
func RecordConnectionClose() {
	if globalMetrics != nil {
		globalMetrics.activeConnections.Dec()
	}
}
