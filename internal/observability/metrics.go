package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream calls per source (firms, nws_points, nws_forecast) and status class.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 approaching the client timeout.
	UpstreamDuration *prometheus.HistogramVec

	// Fetch outcomes per source. Watch for: degraded share rising (fallback values on screen).
	FetchResultsTotal *prometheus.CounterVec

	// Degraded fetches by source and reason category.
	FetchDegradedTotal *prometheus.CounterVec

	// Detections kept after bounding-box filtering on the last successful fetch.
	DetectionsInBox prometheus.Gauge

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend failures by operation (get, set, encode, decode).
	CacheErrorsTotal *prometheus.CounterVec

	// Last-known-good values served in place of fallbacks.
	StaleServesTotal *prometheus.CounterVec

	// Misses that shared another caller's in-flight fetch. Watch for: spikes after TTL expiry.
	CacheCoalescedTotal *prometheus.CounterVec

	// Scheduled refresh passes by outcome (ok, degraded).
	RefreshRunsTotal       *prometheus.CounterVec
	RefreshDurationSeconds prometheus.Histogram

	CircuitBreakerState            *prometheus.GaugeVec
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials on the data routes.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream data source calls",
		},
		[]string{"source", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream data source latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source", "status"},
	)
	FetchResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchResultsTotal",
			Help: "Fetch outcomes per data source (ok or degraded)",
		},
		[]string{"source", "status"},
	)
	FetchDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchDegradedTotal",
			Help: "Fallback values served per data source and failure category",
		},
		[]string{"source", "reason"},
	)
	DetectionsInBox = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fireDetectionsInBox",
			Help: "Fire detections inside the bounding box on the last successful fetch",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of refresh cache hits",
		},
		[]string{"key"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of refresh cache misses (each triggers a fetch)",
		},
		[]string{"key"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend failures by operation",
		},
		[]string{"operation"},
	)
	StaleServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleServesTotal",
			Help: "Last-known-good values served in place of a fallback",
		},
		[]string{"key"},
	)
	CacheCoalescedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheCoalescedTotal",
			Help: "Cache misses that waited on another caller's fetch instead of fetching",
		},
		[]string{"key"},
	)
	RefreshRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshRunsTotal",
			Help: "Scheduled refresh passes by outcome",
		},
		[]string{"outcome"},
	)
	RefreshDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refreshDurationSeconds",
			Help:    "Duration of a full refresh pass in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per component (0=closed, 1=half_open, 2=open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration,
		FetchResultsTotal, FetchDegradedTotal, DetectionsInBox,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, StaleServesTotal, CacheCoalescedTotal,
		RefreshRunsTotal, RefreshDurationSeconds,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal,
	)
}

// RecordFetch counts one fetch outcome for source.
func RecordFetch(source string, ok bool, reason string) {
	if ok {
		FetchResultsTotal.WithLabelValues(source, "ok").Inc()
		return
	}
	FetchResultsTotal.WithLabelValues(source, "degraded").Inc()
	FetchDegradedTotal.WithLabelValues(source, reason).Inc()
}

// CircuitBreakerStateValue maps a breaker state name to the circuitBreakerState gauge value.
func CircuitBreakerStateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
