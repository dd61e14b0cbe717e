package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID  = "trace_id"
	attrSpanID   = "span_id"
	attrService  = "service"
	attrEnv      = "env"
	attrMode     = "mode"
	attrQuery    = "query"
	attrLanguage = "language"
)

type workItemKey struct{}

type workItem struct {
	query    string
	language string
}

// WithWorkItem tags ctx with the (query, language) pair being scanned. Records
// logged with the returned context carry both, including those emitted by the
// analyzer wrapper which knows nothing about work items.
func WithWorkItem(ctx context.Context, query, language string) context.Context {
	return context.WithValue(ctx, workItemKey{}, workItem{query: query, language: language})
}

// TracingHandler is an [slog.Handler] that stamps each record with the scan
// mode, the active span and the work item found in the record's context.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler wraps inner with service, mode and optional env attributes.
func NewTracingHandler(inner slog.Handler, service, env string, mode AppMode) *TracingHandler {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(mode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return &TracingHandler{inner: inner.WithAttrs(attrs)}
}

func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.inner.Enabled(ctx, level)
}

func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(contextAttrs(ctx, record)...)

	err := th.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{inner: th.inner.WithAttrs(attrs)}
}

func (th *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{inner: th.inner.WithGroup(name)}
}

// contextAttrs collects span and work item attributes from ctx, skipping keys
// the caller already set on the record.
func contextAttrs(ctx context.Context, record slog.Record) []slog.Attr {
	var attrs []slog.Attr

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		attrs = append(attrs,
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	item, ok := ctx.Value(workItemKey{}).(workItem)
	if !ok {
		return attrs
	}

	present := map[string]bool{}

	record.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true

		return true
	})

	if !present[attrQuery] {
		attrs = append(attrs, slog.String(attrQuery, item.query))
	}

	if !present[attrLanguage] {
		attrs = append(attrs, slog.String(attrLanguage, item.language))
	}

	return attrs
}
