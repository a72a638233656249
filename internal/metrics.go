package internal

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// _httpRequests counts all HTTP requests processed by the service.
	_httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rrjudge_http_requests_total",
			Help: "Total number of HTTP requests handled by the service.",
		},
		[]string{"route", "method", "status"},
	)

	_httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rrjudge_http_request_duration_seconds",
			Help:    "Histogram of latencies for HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// _upstreamRequests counts calls made to Judge.me, labeled by endpoint.
	_upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rrjudge_upstream_requests_total",
			Help: "Count of requests to the upstream review provider.",
		},
		[]string{"endpoint", "status"},
	)

	_upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rrjudge_upstream_request_duration_seconds",
			Help:    "Histogram of upstream request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	_cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rrjudge_cache_layer_hits_total",
			Help: "Number of cache hits on each layer.",
		},
		[]string{"layer"},
	)

	_cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rrjudge_cache_misses_total",
			Help: "Number of lookups which missed every cache layer.",
		},
	)

	_resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rrjudge_resolutions_total",
			Help: "Identifier resolutions by outcome.",
		},
		[]string{"method"},
	)

	_itemOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rrjudge_batch_items_total",
			Help: "Per-identifier batch outcomes.",
		},
		[]string{"outcome"},
	)

	_registerOnce sync.Once
)

// RegisterMetrics registers all metrics in the default registry. Safe to call
// more than once.
func RegisterMetrics() {
	_registerOnce.Do(func() {
		prometheus.MustRegister(
			_httpRequests,
			_httpDuration,
			_upstreamRequests,
			_upstreamDuration,
			_cacheHits,
			_cacheMisses,
			_resolutions,
			_itemOutcomes,
		)
	})
}

// recordUpstream records metrics for an upstream API call.
func recordUpstream(endpoint string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = strconv.Itoa(statusOf(err))
	}
	_upstreamRequests.WithLabelValues(endpoint, status).Inc()
	_upstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// metricsMiddleware collects Prometheus metrics for each HTTP request. Routes
// are labeled by their chi pattern to keep cardinality bounded.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		_httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		_httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
