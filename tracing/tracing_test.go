package tracing

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newTestConfig returns a TracingConfig backed by an in-memory span recorder.
func newTestConfig(t *testing.T) (*TracingConfig, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	return &TracingConfig{TracerProvider: tp}, rec
}

func TestStart_CreatesSpan(t *testing.T) {
	cfg, rec := newTestConfig(t)

	_, span := Start(t.Context(), cfg, "Load", `{"name":"Bill"}`)
	RecordHit(span, true)
	RecordError(span, nil)
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "simplecache.Load" {
		t.Fatalf("expected span name %q, got %q", "simplecache.Load", s.Name())
	}
	if s.SpanKind() != trace.SpanKindInternal {
		t.Fatalf("expected SpanKindInternal, got %v", s.SpanKind())
	}
	if s.Status().Code != codes.Ok {
		t.Fatalf("expected Ok status, got %v", s.Status().Code)
	}

	assertAttr(t, s.Attributes(), "cache.operation", attribute.StringValue("Load"))
	assertAttr(t, s.Attributes(), "cache.key_bytes", attribute.IntValue(15))
	assertAttr(t, s.Attributes(), "cache.hit", attribute.BoolValue(true))
}

func TestRecordError(t *testing.T) {
	cfg, rec := newTestConfig(t)

	_, span := Start(t.Context(), cfg, "Load", "k")
	RecordError(span, errors.New("loader failed"))
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected Error status, got %v", spans[0].Status().Code)
	}
	if len(spans[0].Events()) == 0 {
		t.Fatal("expected an exception event")
	}
}

func TestStart_NilConfigIsNoop(t *testing.T) {
	cfg, rec := newTestConfig(t)

	// Parent span from a real provider.
	ctx, parent := Start(t.Context(), cfg, "Flush", "")

	_, span := Start(ctx, nil, "Load", "k")
	span.End()
	if span.IsRecording() {
		t.Fatal("nil config should produce a non-recording span")
	}

	if n := len(rec.Ended()); n != 0 {
		t.Fatalf("ending the no-op span must not end the parent, got %d ended spans", n)
	}
	parent.End()
}

func assertAttr(t *testing.T, attrs []attribute.KeyValue, key string, want attribute.Value) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			if a.Value != want {
				t.Errorf("attribute %q = %v, want %v", key, a.Value.Emit(), want.Emit())
			}
			return
		}
	}
	t.Errorf("attribute %q not found", key)
}
