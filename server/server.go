// Package server wraps a gRPC server with the response cache, optional
// OpenTelemetry tracing and a Prometheus metrics endpoint.
package server

import (
	"net/http"

	"github.com/Keksclan/simplecache/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
)

// Server is a minimal wrapper around a gRPC server with optional metrics.
type Server struct {
	grpcServer *grpc.Server
	gatherer   prometheus.Gatherer
}

// NewServer creates a Server by applying functional options and wiring the
// resulting interceptor chains into grpc.NewServer. Interceptors run in the
// order they were added.
func NewServer(opts ...Option) *Server {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.tracing != nil {
		cfg.unaryInterceptors = append([]grpc.UnaryServerInterceptor{tracing.UnaryServerInterceptor(cfg.tracing)}, cfg.unaryInterceptors...)
		cfg.streamInterceptors = append([]grpc.StreamServerInterceptor{tracing.StreamServerInterceptor(cfg.tracing)}, cfg.streamInterceptors...)
	}

	var serverOpts []grpc.ServerOption
	if len(cfg.unaryInterceptors) > 0 {
		serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(cfg.unaryInterceptors...))
	}
	if len(cfg.streamInterceptors) > 0 {
		serverOpts = append(serverOpts, grpc.ChainStreamInterceptor(cfg.streamInterceptors...))
	}

	return &Server{
		grpcServer: grpc.NewServer(serverOpts...),
		gatherer:   cfg.gatherer,
	}
}

// GRPC returns the underlying *grpc.Server so callers can register services.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func (s *Server) MetricsHandler() http.Handler {
	if s.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}
