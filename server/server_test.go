package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Keksclan/simplecache"
	"github.com/Keksclan/simplecache/interceptors"
	"github.com/Keksclan/simplecache/metrics"
	"github.com/Keksclan/simplecache/server"
	"github.com/Keksclan/simplecache/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	bufSize     = 1024 * 1024
	upperMethod = "/simplecache.test.Echo/Upper"
)

// echoService upper-cases string values and counts its invocations.
type echoService struct {
	calls atomic.Int32
}

func (s *echoService) upper(_ context.Context, req any) (any, error) {
	s.calls.Add(1)
	return wrapperspb.String(strings.ToUpper(req.(*wrapperspb.StringValue).GetValue())), nil
}

var echoDesc = grpc.ServiceDesc{
	ServiceName: "simplecache.test.Echo",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Upper",
			Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
				in := new(wrapperspb.StringValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				svc := srv.(*echoService)
				if ic == nil {
					return svc.upper(ctx, in)
				}
				return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: upperMethod}, svc.upper)
			},
		},
	},
}

func start(t *testing.T, srv *server.Server, svc *echoService) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	srv.GRPC().RegisterService(&echoDesc, svc)
	t.Cleanup(srv.GRPC().Stop)
	go func() { _ = srv.GRPC().Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func upper(t *testing.T, conn *grpc.ClientConn, s string) string {
	t.Helper()
	out := new(wrapperspb.StringValue)
	if err := conn.Invoke(t.Context(), upperMethod, wrapperspb.String(s), out); err != nil {
		t.Fatalf("Upper(%q): %v", s, err)
	}
	return out.GetValue()
}

func TestServer_ResponseCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg, "grpc")
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}
	rc := simplecache.New[interceptors.Request, json.RawMessage](
		simplecache.WithMetrics(m),
		simplecache.WithLogger(slog.New(slog.DiscardHandler)),
	)

	svc := &echoService{}
	srv := server.NewServer(
		server.WithResponseCache(rc, interceptors.CacheConfig{Methods: []string{upperMethod}}),
		server.WithGatherer(reg),
	)
	conn := start(t, srv, svc)

	for range 3 {
		if got := upper(t, conn, "bill"); got != "BILL" {
			t.Fatalf("Upper = %q, want BILL", got)
		}
	}
	if got := upper(t, conn, "bob"); got != "BOB" {
		t.Fatalf("Upper = %q, want BOB", got)
	}
	if n := svc.calls.Load(); n != 2 {
		t.Fatalf("service called %d times, want 2", n)
	}

	if err := rc.Flush(t.Context()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	upper(t, conn, "bill")
	if n := svc.calls.Load(); n != 3 {
		t.Fatalf("after flush: service called %d times, want 3", n)
	}

	rec := httptest.NewRecorder()
	srv.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"grpc_cache_hits_total 2", "grpc_cache_misses_total 3"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestServer_InterceptorOrder(t *testing.T) {
	var log []string
	tag := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, h grpc.UnaryHandler) (any, error) {
			log = append(log, name)
			return h(ctx, req)
		}
	}
	rc := simplecache.New[interceptors.Request, json.RawMessage](
		simplecache.WithLogger(slog.New(slog.DiscardHandler)),
	)

	svc := &echoService{}
	srv := server.NewServer(
		server.WithUnaryInterceptor(tag("outer")),
		server.WithResponseCache(rc, interceptors.CacheConfig{}),
		server.WithUnaryInterceptor(tag("inner")),
	)
	conn := start(t, srv, svc)

	upper(t, conn, "bill")
	upper(t, conn, "bill")

	want := []string{"outer", "inner", "outer"}
	if strings.Join(log, ",") != strings.Join(want, ",") {
		t.Fatalf("interceptor log = %v, want %v", log, want)
	}
}

func TestServer_NoInterceptors(t *testing.T) {
	svc := &echoService{}
	conn := start(t, server.NewServer(), svc)

	upper(t, conn, "bill")
	upper(t, conn, "bill")
	if n := svc.calls.Load(); n != 2 {
		t.Fatalf("service called %d times, want 2", n)
	}
}

func TestServer_OpenTelemetryNestsCacheSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tc := tracing.TracingConfig{TracerProvider: tp, Propagators: propagation.TraceContext{}}

	rc := simplecache.New[interceptors.Request, json.RawMessage](
		simplecache.WithTracing(tc),
		simplecache.WithLogger(slog.New(slog.DiscardHandler)),
	)
	svc := &echoService{}
	// Added after the cache, yet the server span must still be outermost.
	srv := server.NewServer(
		server.WithResponseCache(rc, interceptors.CacheConfig{}),
		server.WithOpenTelemetry(tc),
	)
	conn := start(t, srv, svc)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	ctx := metadata.AppendToOutgoingContext(t.Context(),
		"traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	out := new(wrapperspb.StringValue)
	if err := conn.Invoke(ctx, upperMethod, wrapperspb.String("bill"), out); err != nil {
		t.Fatalf("Upper: %v", err)
	}

	var rpc, load sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		switch s.Name() {
		case upperMethod:
			rpc = s
		case "simplecache.Load":
			load = s
		}
	}
	if rpc == nil || load == nil {
		t.Fatalf("expected server and cache spans, got %d spans", len(rec.Ended()))
	}
	if got := rpc.SpanContext().TraceID().String(); got != traceID {
		t.Fatalf("server span trace id = %s, want %s", got, traceID)
	}
	if load.Parent().SpanID() != rpc.SpanContext().SpanID() {
		t.Fatal("cache span is not a child of the server span")
	}
}
