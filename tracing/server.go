package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor opens a server span for every unary RPC, continuing
// the trace found in the incoming metadata. Cache spans started by handlers
// and by the response cache become its children. A nil cfg passes calls
// through untouched.
func UnaryServerInterceptor(cfg *TracingConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg == nil {
			return handler(ctx, req)
		}
		ctx, span := cfg.serverSpan(ctx, info.FullMethod)
		defer span.End()

		resp, err := handler(ctx, req)
		recordStatus(span, err)
		return resp, err
	}
}

// StreamServerInterceptor is the streaming counterpart of
// UnaryServerInterceptor.
func StreamServerInterceptor(cfg *TracingConfig) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg == nil {
			return handler(srv, ss)
		}
		ctx, span := cfg.serverSpan(ss.Context(), info.FullMethod)
		defer span.End()

		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		recordStatus(span, err)
		return err
	}
}

func (c *TracingConfig) serverSpan(ctx context.Context, fullMethod string) (context.Context, trace.Span) {
	md, _ := metadata.FromIncomingContext(ctx)
	ctx = c.propagators().Extract(ctx, mdCarrier(md))

	service, method := splitMethod(fullMethod)
	return c.tracer().Start(ctx, fullMethod,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
		),
	)
}

func (c *TracingConfig) propagators() propagation.TextMapPropagator {
	if c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// mdCarrier reads and writes trace headers in gRPC metadata. A nil map is
// readable and reports no keys.
type mdCarrier metadata.MD

func (m mdCarrier) Get(key string) string {
	if v := metadata.MD(m).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (m mdCarrier) Set(key, value string) {
	metadata.MD(m).Set(key, value)
}

func (m mdCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// splitMethod splits "/pkg.Service/Method" into its service and method.
func splitMethod(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return service, ""
	}
	return service, method
}

func recordStatus(span trace.Span, err error) {
	st := status.Convert(err)
	span.SetAttributes(attribute.String("rpc.grpc.status_code", st.Code().String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, st.Message())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// tracedStream carries the span context to stream handlers.
type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context { return s.ctx }
