// Package metrics holds the analyzer's Prometheus collectors. All names
// carry the qya_ namespace.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qya"

// Metrics is safe to use as a nil pointer; every Observe method is then a
// no-op, which keeps call sites free of checks when metrics are disabled.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	AnalysesTotal   *prometheus.CounterVec
	AnalysisLatency *prometheus.HistogramVec
	QueryNodes      prometheus.Histogram

	SourceFetchesTotal  *prometheus.CounterVec
	SourceFetchLatency  *prometheus.HistogramVec
	CacheLookupsTotal   *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	// Platform calls dominate latency; buckets reach a minute for large
	// trees on throttled platforms.
	slow := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "API requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "API request latency.",
			Buckets: slow,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "API requests being served.",
		}),

		AnalysesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "analyses_total",
			Help: "Completed analyses by platform and root yield range.",
		}, []string{"platform", "range"}),
		AnalysisLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "analysis_duration_seconds",
			Help:    "End-to-end analysis latency.",
			Buckets: slow,
		}, []string{"platform"}),
		QueryNodes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "query_tree_nodes",
			Help:    "Nodes per analyzed query tree.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),

		SourceFetchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "source", Name: "fetches_total",
			Help: "Platform fetches by platform and status (ok, error).",
		}, []string{"platform", "status"}),
		SourceFetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "source", Name: "fetch_duration_seconds",
			Help:    "Platform fetch latency, including retries and throttling.",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),
		CacheLookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "source", Name: "cache_lookups_total",
			Help: "Platform result cache lookups by result (hit, miss).",
		}, []string{"result"}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "source", Name: "circuit_breaker_state",
			Help: "Circuit breaker state per platform (0 closed, 1 open, 2 half-open).",
		}, []string{"platform"}),
	}
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveFetch(platform string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SourceFetchesTotal.WithLabelValues(platform, status).Inc()
	m.SourceFetchLatency.WithLabelValues(platform).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAnalysis(platform, yieldRange string, nodes int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(platform, yieldRange).Inc()
	m.AnalysisLatency.WithLabelValues(platform).Observe(elapsed.Seconds())
	m.QueryNodes.Observe(float64(nodes))
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBreakerState(platform string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(platform).Set(float64(state))
}
