// Package observability wires OpenTelemetry tracing and metrics and the
// structured logger used across hydraql.
package observability

import (
	"io"
	"log/slog"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeScan is a regular scan.
	ModeScan AppMode = "scan"
	// ModeDryRun plans a scan without running the analyzer.
	ModeDryRun AppMode = "dry-run"
)

const (
	defaultServiceName     = "hydraql"
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds all observability configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Mode           AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export.
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// SampleRatio is the root trace sampling ratio; zero samples everything.
	SampleRatio float64

	LogLevel slog.Level
	LogJSON  bool
	// LogWriter receives log output; nil writes to stderr.
	LogWriter io.Writer

	// MetricReaders are attached to the meter provider in addition to the
	// OTLP exporter, e.g. a Prometheus reader for the diagnostics server.
	MetricReaders []sdkmetric.Reader

	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeScan,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
