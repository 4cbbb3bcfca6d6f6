// Package metrics provides Prometheus metrics for the networkfs driver and directory service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Remote call metrics (driver side)
	remoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "networkfs_remote_calls_total",
			Help: "Total number of remote calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	remoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "networkfs_remote_call_duration_seconds",
			Help:    "Remote call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	remoteCallRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "networkfs_remote_call_retries_total",
			Help: "Total number of retried remote calls",
		},
		[]string{"method"},
	)

	// Core metrics
	nodesMaterialized = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "networkfs_nodes_materialized",
			Help: "Number of node handles currently held by identity tables",
		},
	)

	dirEntriesEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "networkfs_dir_entries_emitted_total",
			Help: "Total directory entries emitted to the host, including . and ..",
		},
	)

	fsOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "networkfs_fs_operations_total",
			Help: "Total filesystem operations dispatched by the host",
		},
		[]string{"method", "status"},
	)

	// HTTP metrics (service side)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "networkfs_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "networkfs_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "networkfs_store_operation_duration_seconds",
			Help:    "Directory store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	listingsTruncated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "networkfs_listings_truncated_total",
			Help: "Listings cut to the fixed page capacity",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRemoteCall records a finished remote call.
func RecordRemoteCall(method, outcome string, duration time.Duration) {
	remoteCallsTotal.WithLabelValues(method, outcome).Inc()
	remoteCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRemoteRetry records a retried remote call attempt.
func RecordRemoteRetry(method string) {
	remoteCallRetries.WithLabelValues(method).Inc()
}

// AddNodesMaterialized adjusts the number of handles held across all
// identity tables by delta.
func AddNodesMaterialized(delta int) {
	nodesMaterialized.Add(float64(delta))
}

// RecordDirEntries records entries emitted by one iteration call.
func RecordDirEntries(count int) {
	dirEntriesEmitted.Add(float64(count))
}

// RecordFSOperation records a host-dispatched operation.
func RecordFSOperation(method string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	fsOperationsTotal.WithLabelValues(method, status).Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordStoreOperation records a directory store operation duration.
func RecordStoreOperation(operation string, duration time.Duration) {
	storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordListingTruncated records a listing cut to the page capacity.
func RecordListingTruncated() {
	listingsTruncated.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
// Paths are labelled with the chi route pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}
