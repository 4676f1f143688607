package server

import (
	"github.com/Keksclan/simplecache/interceptors"
	"github.com/Keksclan/simplecache/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	unaryInterceptors  []grpc.UnaryServerInterceptor
	streamInterceptors []grpc.StreamServerInterceptor
	gatherer           prometheus.Gatherer
	tracing            *tracing.TracingConfig
}

// Option configures a Server.
type Option func(*config)

// WithUnaryInterceptor appends a unary server interceptor to the chain.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) Option {
	return func(c *config) {
		c.unaryInterceptors = append(c.unaryInterceptors, i)
	}
}

// WithStreamInterceptor appends a stream server interceptor to the chain.
func WithStreamInterceptor(i grpc.StreamServerInterceptor) Option {
	return func(c *config) {
		c.streamInterceptors = append(c.streamInterceptors, i)
	}
}

// WithResponseCache appends an interceptor that serves unary responses from
// rc. Interceptors added before it run on every call; those added after it
// run only on cache misses.
func WithResponseCache(rc *interceptors.ResponseCache, cfg interceptors.CacheConfig) Option {
	return func(c *config) {
		if rc != nil {
			c.unaryInterceptors = append(c.unaryInterceptors, interceptors.CacheUnary(rc, cfg))
		}
	}
}

// WithGatherer sets the registry served by MetricsHandler. Without it the
// default Prometheus registry is served.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *config) {
		c.gatherer = g
	}
}

// WithOpenTelemetry traces every RPC with a server span that continues the
// caller's trace. The tracing interceptors run before all others, so spans
// from the response cache and handlers nest under the RPC span.
func WithOpenTelemetry(cfg tracing.TracingConfig) Option {
	return func(c *config) {
		c.tracing = &cfg
	}
}
