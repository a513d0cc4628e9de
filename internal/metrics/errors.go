package metrics

import (
	"strconv"

	"github.com/astrowidget/astroproxy/internal/observability"
)

// Error metric names
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// Endpoint labels for paths outside the proxy's routes.
const (
	EndpointHealth  = "/health/*"
	EndpointUnknown = "/unknown"
)

// EndpointLabel maps a request path onto a bounded label set: the proxy's
// own routes keep their path, the health probes share one label and
// anything else is EndpointUnknown.
func EndpointLabel(path string) string {
	switch path {
	case "/v1/horoscope", "/v1/nonce", "/version", "/metrics", "/admin/signal", "/":
		return path
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return EndpointHealth
	default:
		return EndpointUnknown
	}
}

// RecordError counts one error envelope written to a client.
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ErrorsTotalName, 1, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic counts a handler panic turned into a 500.
func RecordPanic() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(PanicsTotalName, 1, nil)
}

// RecordErrorByEndpoint counts an error against the route that produced it.
// Raw paths are collapsed with EndpointLabel so probing scanners cannot
// grow the label set.
func RecordErrorByEndpoint(path string, errorCode string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ErrorsByEndpointName, 1, map[string]string{
		"endpoint":   EndpointLabel(path),
		"error_code": errorCode,
	})
}
