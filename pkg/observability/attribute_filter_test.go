package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/hydraql/pkg/observability"
)

func spanAttrMap(span tracetest.SpanStub) map[string]any {
	out := make(map[string]any, len(span.Attributes))
	for _, kv := range span.Attributes {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}

	return out
}

func TestAttributeFilter_KeepsScanAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	exporter := tracetest.NewInMemoryExporter()
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)),
	)

	_, span := tp.Tracer("test").Start(context.Background(), "hydraql.scan.item")
	span.SetAttributes(
		attribute.String("scan.query", "/q/Sqli.ql"),
		attribute.Int("scan.findings", 3),
		attribute.String("scan.diagnostic", "stderr text"),
		attribute.String("user.name", "alice"),
		attribute.String("error.type", "timeout"),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	attrs := spanAttrMap(spans[0])
	assert.Equal(t, "/q/Sqli.ql", attrs["scan.query"])
	assert.Equal(t, int64(3), attrs["scan.findings"])
	assert.Equal(t, "timeout", attrs["error.type"])
	assert.NotContains(t, attrs, "scan.diagnostic")
	assert.NotContains(t, attrs, "user.name")
	assert.Contains(t, buf.String(), "user.name")
}
