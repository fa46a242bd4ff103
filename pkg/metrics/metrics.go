package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Cache metrics
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheEvictions *prometheus.CounterVec

	// Transport metrics
	TransportAttempts *prometheus.CounterVec
	TransportRetries  *prometheus.CounterVec
	TransportDuration *prometheus.HistogramVec
	ConnectionStatus  prometheus.Gauge

	// Loader metrics
	LoaderRequests  *prometheus.CounterVec
	PrefetchesTotal *prometheus.CounterVec
	HierarchyWalks  *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers every collector on the given registerer; tests pass a
// fresh registry so repeated construction cannot collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_cache_hits_total",
				Help: "Total number of report cache hits",
			},
			[]string{"kind"},
		),

		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_cache_misses_total",
				Help: "Total number of report cache misses",
			},
			[]string{"kind"},
		),

		CacheEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_cache_evictions_total",
				Help: "Total number of report cache entries evicted",
			},
			[]string{"reason"},
		),

		TransportAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_transport_attempts_total",
				Help: "Total number of query service request attempts",
			},
			[]string{"request", "outcome"},
		),

		TransportRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_transport_retries_total",
				Help: "Total number of query service retries",
			},
			[]string{"request"},
		),

		TransportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_transport_duration_seconds",
				Help:    "Query service request duration in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"request"},
		),

		ConnectionStatus: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "query_connection_status",
				Help: "Query service connection status (0=connected, 1=retrying, 2=failed)",
			},
		),

		LoaderRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drilldown_loader_requests_total",
				Help: "Total number of drill-down loader requests",
			},
			[]string{"operation", "source"},
		),

		PrefetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hierarchy_prefetches_total",
				Help: "Total number of background hierarchy prefetches",
			},
			[]string{"status"},
		),

		HierarchyWalks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hierarchy_walks_total",
				Help: "Total number of cached hierarchy traversals",
			},
			[]string{"result"},
		),
	}
}

// HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// Cache lookup metrics
func (m *Metrics) RecordCacheHit(kind string) {
	m.CacheHits.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCacheMiss(kind string) {
	m.CacheMisses.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCacheEviction(reason string) {
	m.CacheEvictions.WithLabelValues(reason).Inc()
}

// Transport attempt metrics
func (m *Metrics) RecordTransportAttempt(request, outcome string) {
	m.TransportAttempts.WithLabelValues(request, outcome).Inc()
}

func (m *Metrics) RecordTransportRetry(request string) {
	m.TransportRetries.WithLabelValues(request).Inc()
}

func (m *Metrics) RecordTransportDuration(request string, duration time.Duration) {
	m.TransportDuration.WithLabelValues(request).Observe(duration.Seconds())
}

// Connection status gauge
func (m *Metrics) SetConnectionStatus(value float64) {
	m.ConnectionStatus.Set(value)
}

// Loader resolution metrics
func (m *Metrics) RecordLoaderRequest(operation, source string) {
	m.LoaderRequests.WithLabelValues(operation, source).Inc()
}

func (m *Metrics) RecordPrefetch(status string) {
	m.PrefetchesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordHierarchyWalk(result string) {
	m.HierarchyWalks.WithLabelValues(result).Inc()
}
