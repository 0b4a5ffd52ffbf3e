package observe

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/oculus"

// ComponentKey names the subsystem that started a span.
const ComponentKey = attribute.Key("oculus.component")

// Tracer returns the oculus tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named "<component>.<operation>", for example
// "listener.transcribe", and tags it with [ComponentKey]. The caller must
// end the span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if component, _, ok := strings.Cut(name, "."); ok {
		opts = append(opts, trace.WithAttributes(ComponentKey.String(component)))
	}
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID in ctx, or "" outside a span. It ties
// together the log lines of one question across pipeline and speaker.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id from ctx
// attached, or the default logger unchanged outside a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
