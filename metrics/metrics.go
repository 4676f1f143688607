// Package metrics exposes Prometheus collectors for the memoizing loader.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors updated by a cache instance.
type Metrics struct {
	hits         prometheus.Counter
	misses       prometheus.Counter
	expired      prometheus.Counter
	loaderErrors prometheus.Counter
	storeErrors  *prometheus.CounterVec
	loadDuration prometheus.Histogram
}

// New creates the collectors under namespace and registers them with reg.
// When reg is nil the collectors are created but not registered.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Loads served from a fresh cache entry.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Loads that invoked the loader function.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "expired_total",
			Help:      "Stale entries purged on read.",
		}),
		loaderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "loader_errors_total",
			Help:      "Loader invocations that failed; nothing was cached.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "store_errors_total",
			Help:      "Store adapter operations that returned an error.",
		}, []string{"op"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "load_duration_seconds",
			Help:      "Wall time of Load calls, hits and misses alike.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.expired, m.loaderErrors, m.storeErrors, m.loadDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hit records a load served from cache.
func (m *Metrics) Hit() {
	if m != nil {
		m.hits.Inc()
	}
}

// Miss records a load that fell through to the loader.
func (m *Metrics) Miss() {
	if m != nil {
		m.misses.Inc()
	}
}

// Expired records a stale entry purged on read.
func (m *Metrics) Expired() {
	if m != nil {
		m.expired.Inc()
	}
}

// LoaderError records a failed loader invocation.
func (m *Metrics) LoaderError() {
	if m != nil {
		m.loaderErrors.Inc()
	}
}

// StoreError records a failed adapter operation such as "get" or "put".
func (m *Metrics) StoreError(op string) {
	if m != nil {
		m.storeErrors.WithLabelValues(op).Inc()
	}
}

// ObserveLoad records the duration of a Load call.
func (m *Metrics) ObserveLoad(d time.Duration) {
	if m != nil {
		m.loadDuration.Observe(d.Seconds())
	}
}
