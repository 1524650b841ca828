// Package metrics provides Prometheus metrics for the upload server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uploader_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Upload pipeline metrics
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_uploads_total",
			Help: "Total number of files pushed to the object store",
		},
		[]string{"type", "status"},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uploader_upload_bytes_total",
			Help: "Total bytes pushed to the object store",
		},
	)

	thumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_thumbnails_total",
			Help: "Total thumbnails generated",
		},
		[]string{"status"},
	)

	thumbnailDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uploader_thumbnail_duration_seconds",
			Help:    "Time to decode, scale and encode a thumbnail",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Auth and rate limiting
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uploader_rate_limited_total",
			Help: "Total upload requests rejected by the rate limiter",
		},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "uploader_sse_connections_active",
			Help: "Number of connected event stream subscribers",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_sse_events_total",
			Help: "Total events published to subscribers",
		},
		[]string{"type"},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uploader_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploader_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric. route must come from a
// fixed set, see Middleware.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpload records a put of one file of the given coarse type.
func RecordUpload(fileType string, bytes int64, success bool) {
	if success {
		uploadBytes.Add(float64(bytes))
	}
	uploadsTotal.WithLabelValues(fileType, statusLabel(success)).Inc()
}

// RecordThumbnail records a thumbnail generation attempt.
func RecordThumbnail(duration time.Duration, success bool) {
	thumbnailDuration.Observe(duration.Seconds())
	thumbnailsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordRateLimited records a rejected request.
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}

// SetSSEConnectionsActive sets the number of event stream subscribers.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records a published event.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	s3OperationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
}

// unmatchedRoute labels requests no registered pattern matched.
const unmatchedRoute = "other"

// routeLabel returns the path part of the ServeMux pattern that handled r.
// Raw paths are never used as labels: they are client controlled.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return unmatchedRoute
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// statusWriter captures the status code and passes Flush through for SSE.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request count and latency per route. It must wrap the
// ServeMux directly so the matched pattern is visible once the mux returns.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, routeLabel(r), rw.statusCode, time.Since(start))
	})
}
