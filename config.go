package simplecache

import (
	"log/slog"
	"time"

	"github.com/Keksclan/simplecache/metrics"
	"github.com/Keksclan/simplecache/store"
	"github.com/Keksclan/simplecache/tracing"
	"golang.org/x/time/rate"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	store        store.Store
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracing      *tracing.TracingConfig
	limiter      *rate.Limiter
	singleFlight bool
	now          func() time.Time
}

// callConfig holds the per-call key and expiry settings.
type callConfig struct {
	excludeKeys []string
	altKey      any
	expiry      time.Duration
}

func newCallConfig(opts []CallOption) callConfig {
	var cc callConfig
	for _, o := range opts {
		o(&cc)
	}
	return cc
}
