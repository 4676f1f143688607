// Package tracing provides OpenTelemetry spans around cache operations and
// gRPC server interceptors that continue the caller's trace. It is entirely
// optional: tracing is only active when a [TracingConfig] is wired in via the
// WithTracing cache option or the WithOpenTelemetry server option.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/Keksclan/simplecache/tracing"

// TracingConfig holds the OpenTelemetry configuration used for cache spans.
type TracingConfig struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators extracts trace context from incoming gRPC metadata in the
	// server interceptors. When nil the global otel.GetTextMapPropagator()
	// is used.
	Propagators propagation.TextMapPropagator
}

// tracer returns a configured [trace.Tracer]. A nil config yields a no-op
// tracer so callers never end a parent span by accident.
func (c *TracingConfig) tracer() trace.Tracer {
	if c == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// Start opens an internal span named "simplecache.<op>". The key itself is
// not recorded because it is derived from caller data; only its size is.
func Start(ctx context.Context, cfg *TracingConfig, op string, key string) (context.Context, trace.Span) {
	ctx, span := cfg.tracer().Start(ctx, "simplecache."+op, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("cache.operation", op))
	if key != "" {
		span.SetAttributes(attribute.Int("cache.key_bytes", len(key)))
	}
	return ctx, span
}

// RecordHit marks whether the operation was served from cache.
func RecordHit(span trace.Span, hit bool) {
	span.SetAttributes(attribute.Bool("cache.hit", hit))
}

// RecordError records err on span and sets the span status accordingly.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
