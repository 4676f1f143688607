package simplecache

import (
	"log/slog"
	"time"

	"github.com/Keksclan/simplecache/metrics"
	"github.com/Keksclan/simplecache/store"
	"github.com/Keksclan/simplecache/tracing"
	"golang.org/x/time/rate"
)

// Option configures a Cache.
type Option func(*config)

// WithStore sets the store adapter. A nil store is ignored and the default
// in-process map is used.
func WithStore(s store.Store) Option {
	return func(c *config) {
		if s != nil {
			c.store = s
		}
	}
}

// WithLogger sets the logger used for loader failures, store errors and
// per-load debug output. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records hits, misses, expirations and errors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithTracing enables OpenTelemetry spans for every cache operation.
func WithTracing(cfg tracing.TracingConfig) Option {
	return func(c *config) {
		c.tracing = &cfg
	}
}

// WithSingleFlight collapses concurrent misses for the same key into a single
// loader invocation whose result is shared. Without it, concurrent misses
// each call the loader and the last write wins.
func WithSingleFlight() Option {
	return func(c *config) {
		c.singleFlight = true
	}
}

// WithLoaderLimit throttles loader invocations to rps per second with the
// given burst. A miss waits for a token; if ctx ends first the load fails
// like any other loader error.
func WithLoaderLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithClock replaces the time source used for entry creation and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// CallOption configures a single Load, Loader or Delete call.
type CallOption func(*callConfig)

// ExcludeKeys removes the named fields, at every nesting level, from the
// options before the key is derived. The loader still receives the options
// unchanged.
func ExcludeKeys(keys ...string) CallOption {
	return func(c *callConfig) {
		c.excludeKeys = append(c.excludeKeys, keys...)
	}
}

// AltKey derives the key from key instead of the options. It takes
// precedence over ExcludeKeys.
func AltKey(key any) CallOption {
	return func(c *callConfig) {
		c.altKey = key
	}
}

// Expiry sets the lifetime of the entry written on a miss. Zero, the
// default, means the entry never expires. Lifetimes are kept in whole
// milliseconds; positive values below 1ms are rounded up to 1ms. Expiry has
// no effect on Delete.
func Expiry(d time.Duration) CallOption {
	return func(c *callConfig) {
		c.expiry = d
	}
}
