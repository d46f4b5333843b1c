package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing for the playground.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer named name. When enabled, spans go to the global
// TracerProvider, so whatever provider the process installs receives them;
// otherwise every span is a no-op regardless of the global provider.
func NewTracer(enabled bool, name string) *Tracer {
	if !enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(name)}
	}
	return &Tracer{tracer: otel.Tracer(name)}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("playground.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

var (
	AttrRequestID = attribute.Key("playground.request.id")
	AttrAuditID   = attribute.Key("playground.audit.id")
	AttrEndpoint  = attribute.Key("playground.endpoint")
	AttrBackend   = attribute.Key("playground.backend")
	AttrTarget    = attribute.Key("playground.target")
	AttrCodeHash  = attribute.Key("playground.code_hash")
	AttrExitCode  = attribute.Key("playground.exit_code")
	AttrTimedOut  = attribute.Key("playground.timed_out")
	AttrSizeBytes = attribute.Key("playground.size_bytes")
)
