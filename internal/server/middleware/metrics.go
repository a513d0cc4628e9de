package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/astrowidget/astroproxy/internal/metrics"
	"github.com/astrowidget/astroproxy/internal/observability"
)

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// getEndpointPattern extracts chi route pattern to avoid high-cardinality paths
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if routePattern := rctx.RoutePattern(); routePattern != "" {
			return routePattern
		}
	}

	return metrics.EndpointLabel(r.URL.Path)
}

// RequestMetrics middleware captures HTTP request metrics following Prometheus standards
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		// Get request size from Content-Length header
		requestSize := int64(0)
		if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
			if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
				requestSize = size
			}
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := getEndpointPattern(r)

		if observability.TelemetrySystem != nil {
			emitRequestMetrics(r.Method, endpoint, wrapped, duration, requestSize)
		}

		// Log request with request ID for tracing (request ID stays in logs, not metrics)
		requestID := GetRequestID(r.Context())
		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("HTTP request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", endpoint),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", duration),
				zap.Int64("request_size", requestSize),
				zap.Int64("response_size", wrapped.bytesWritten),
				zap.String("requestID", requestID),
			)
		}
	})
}

func emitRequestMetrics(method, endpoint string, wrapped *responseWriter, duration time.Duration, requestSize int64) {
	// Common labels for all metrics (avoid high cardinality)
	commonLabels := map[string]string{
		"method":   method,
		"endpoint": endpoint,
		"status":   strconv.Itoa(wrapped.statusCode),
	}

	// Emit request counter
	_ = observability.TelemetrySystem.Counter(
		"http_requests_total",
		1,
		commonLabels,
	)

	// Emit duration histogram in milliseconds (keep gofulmen standard)
	_ = observability.TelemetrySystem.Histogram(
		"http_request_duration_ms",
		duration,
		commonLabels,
	)

	// Emit request size as gauge (not histogram since it's a single value)
	_ = observability.TelemetrySystem.Gauge(
		"http_request_size_bytes",
		float64(requestSize),
		map[string]string{
			"method":   method,
			"endpoint": endpoint,
		},
	)

	// Emit response size as gauge (not histogram since it's a single value)
	_ = observability.TelemetrySystem.Gauge(
		"http_response_size_bytes",
		float64(wrapped.bytesWritten),
		map[string]string{
			"method":   method,
			"endpoint": endpoint,
		},
	)

	// Emit error counter for non-2xx responses
	if wrapped.statusCode >= 400 {
		errorType := "client_error" // 4xx
		if wrapped.statusCode >= 500 {
			errorType = "server_error" // 5xx
		}

		_ = observability.TelemetrySystem.Counter(
			"http_errors_total",
			1,
			map[string]string{
				"method":     method,
				"endpoint":   endpoint,
				"status":     strconv.Itoa(wrapped.statusCode),
				"error_type": errorType,
			},
		)
	}
}
