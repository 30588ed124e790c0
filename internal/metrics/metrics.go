// Package metrics provides Prometheus metrics for wirekit.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirekit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wirekit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RPC metrics
	rpcCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirekit_rpc_calls_total",
			Help: "Total number of dispatched API calls",
		},
		[]string{"outcome"}, // "ok", "error", "panic"
	)

	rpcBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wirekit_rpc_batch_size",
			Help:    "Number of calls per API request",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	// Authentication metrics
	authActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirekit_auth_actions_total",
			Help: "Total number of authentication state transitions",
		},
		[]string{"action", "result"}, // result: "ok", "rejected", "error"
	)

	sessionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirekit_session_rejections_total",
			Help: "Total number of session cookies that failed verification",
		},
		[]string{"reason"}, // "expired", "invalid"
	)

	// Account lockout metrics
	accountLockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wirekit_account_lockouts_total",
			Help: "Total number of account lockouts",
		},
	)

	// Storage metrics
	cacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirekit_store_cache_requests_total",
			Help: "Total number of read cache lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)

	rateLimitExceededTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirekit_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"endpoint"},
	)
)

// RecordRPCCall records the outcome of one dispatched call.
func RecordRPCCall(outcome string) {
	rpcCallsTotal.WithLabelValues(outcome).Inc()
}

// RecordRPCBatch records the size of an API request.
func RecordRPCBatch(size int) {
	rpcBatchSize.Observe(float64(size))
}

// RecordAuthAction records an authentication action and its result.
func RecordAuthAction(action, result string) {
	authActionsTotal.WithLabelValues(action, result).Inc()
}

// RecordSessionRejected records a session token that did not verify.
func RecordSessionRejected(reason string) {
	sessionRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordAccountLockout records an account lockout.
func RecordAccountLockout() {
	accountLockoutsTotal.Inc()
}

// RecordCacheLookup records a read cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheRequestsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheRequestsTotal.WithLabelValues("miss").Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event.
func RecordRateLimitExceeded(endpoint string) {
	rateLimitExceededTotal.WithLabelValues(endpoint).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

var (
	knownMu    sync.RWMutex
	knownPaths = map[string]bool{
		"/healthz": true,
		"/readyz":  true,
		"/metrics": true,
	}
)

// RegisterPath adds a path that is reported as-is instead of as "/other".
func RegisterPath(path string) {
	knownMu.Lock()
	defer knownMu.Unlock()
	knownPaths[path] = true
}

// normalizePath normalizes the path for metrics to avoid high cardinality.
func normalizePath(path string) string {
	knownMu.RLock()
	defer knownMu.RUnlock()
	if knownPaths[path] {
		return path
	}
	return "/other"
}
