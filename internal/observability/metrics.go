package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// fallbackMetricsPort is reported when an exporter asked for :0 and its
// bound address cannot be read back.
const fallbackMetricsPort = 9090

var (
	// TelemetrySystem receives every proxy metric (submissions, rate limit
	// decisions, upstream latency, HTTP requests). Nil when metrics are off.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves TelemetrySystem on its own listener.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts the Prometheus exporter on port (0 picks a free one)
// and routes TelemetrySystem into it. Metric names are prefixed with
// namespace.
func InitMetrics(namespace string, port int) error {
	if port < 0 {
		port = 0
	}
	metricsPort = port

	exporter := exporters.NewPrometheusExporter(namespace, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return err
	}

	if bound, err := resolvePort(exporter.GetAddr()); err == nil {
		metricsPort = bound
	} else if port == 0 {
		metricsPort = fallbackMetricsPort
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: exporter,
	})
	if err != nil {
		_ = exporter.Stop()
		return err
	}

	// errors_total, panics_total and errors_by_endpoint register themselves
	// on first emission from internal/metrics.
	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// ShutdownMetrics flushes buffered metrics and closes the exporter listener.
// Safe to call when metrics were never started.
func ShutdownMetrics() error {
	if TelemetrySystem != nil {
		_ = TelemetrySystem.Flush()
	}
	if PrometheusExporter == nil {
		return nil
	}
	return PrometheusExporter.Stop()
}

// GetMetricsPort returns the port the exporter is bound to.
func GetMetricsPort() int {
	return metricsPort
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
