package simplecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Keksclan/simplecache/metrics"
	"github.com/Keksclan/simplecache/store"
	"github.com/Keksclan/simplecache/tracing"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// LoaderFunc computes the authoritative value for options. It is only called
// on a cache miss.
type LoaderFunc[O, T any] func(ctx context.Context, options O) (T, error)

// Cache memoizes loader functions taking options of type O and producing
// values of type T. Values are stored as JSON, so T must round-trip through
// encoding/json. All methods are safe for concurrent use when the store is.
type Cache[O, T any] struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracing *tracing.TracingConfig
	limiter *rate.Limiter
	flight  *singleflight.Group
	now     func() time.Time
}

// New creates a Cache by applying the supplied functional options. Without
// WithStore the cache owns a fresh [store.Memory].
func New[O, T any](opts ...Option) *Cache[O, T] {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.store == nil {
		cfg.store = store.NewMemory()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	c := &Cache[O, T]{
		store:   cfg.store,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		tracing: cfg.tracing,
		limiter: cfg.limiter,
		now:     cfg.now,
	}
	if cfg.singleFlight {
		c.flight = &singleflight.Group{}
	}
	return c
}

// Store returns the adapter backing the cache.
func (c *Cache[O, T]) Store() store.Store {
	return c.store
}

// Load returns the cached value for options, calling fn and storing its result
// on a miss. A fresh hit never calls fn. Stale entries are deleted and
// treated as misses, as is everything while the store is disconnected.
//
// When fn fails the error is logged, nothing is cached and ok is false.
// Callers must treat ok == false as "no data produced".
func (c *Cache[O, T]) Load(ctx context.Context, options O, fn LoaderFunc[O, T], opts ...CallOption) (T, bool) {
	start := time.Now()
	call := newCallConfig(opts)
	key, keyErr := DeriveKey(options, call.excludeKeys, call.altKey)

	ctx, span := tracing.Start(ctx, c.tracing, "Load", key)
	defer span.End()
	defer func() { c.metrics.ObserveLoad(time.Since(start)) }()

	if keyErr != nil {
		// Without a key there is nothing to look up or store.
		c.logger.WarnContext(ctx, "simplecache: key derivation failed, loading uncached",
			slog.String("error", keyErr.Error()),
		)
		tracing.RecordHit(span, false)
		v, err := c.invoke(ctx, "", options, fn)
		tracing.RecordError(span, err)
		return v, err == nil
	}

	if v, ok := c.lookup(ctx, key); ok {
		c.metrics.Hit()
		tracing.RecordHit(span, true)
		tracing.RecordError(span, nil)
		c.logger.DebugContext(ctx, "simplecache: hit",
			slog.String("key", key),
			slog.Duration("duration", time.Since(start)),
		)
		return v, true
	}

	c.metrics.Miss()
	tracing.RecordHit(span, false)
	v, err := c.fill(ctx, key, options, fn, call.expiry)
	tracing.RecordError(span, err)
	if err != nil {
		return v, false
	}
	c.logger.DebugContext(ctx, "simplecache: miss",
		slog.String("key", key),
		slog.Duration("duration", time.Since(start)),
	)
	return v, true
}

// Loader binds fn and opts into a function that only needs options at call
// time. It is equivalent to calling Load with the same arguments.
func (c *Cache[O, T]) Loader(fn LoaderFunc[O, T], opts ...CallOption) func(ctx context.Context, options O) (T, bool) {
	return func(ctx context.Context, options O) (T, bool) {
		return c.Load(ctx, options, fn, opts...)
	}
}

// Delete removes the entry Load would use for options and opts. Deleting a
// missing key is not an error.
func (c *Cache[O, T]) Delete(ctx context.Context, options O, opts ...CallOption) error {
	call := newCallConfig(opts)
	key, err := DeriveKey(options, call.excludeKeys, call.altKey)
	if err != nil {
		return err
	}

	ctx, span := tracing.Start(ctx, c.tracing, "Delete", key)
	defer span.End()

	if !store.Available(c.store) {
		return nil
	}
	err = c.store.Delete(ctx, key)
	tracing.RecordError(span, err)
	return err
}

// Flush clears the whole store. It is a no-op while the store is
// disconnected.
func (c *Cache[O, T]) Flush(ctx context.Context) error {
	ctx, span := tracing.Start(ctx, c.tracing, "Flush", "")
	defer span.End()

	if !store.Available(c.store) {
		return nil
	}
	err := c.store.Flush(ctx)
	tracing.RecordError(span, err)
	return err
}

// Prime replaces the store contents with snap, typically the output of a
// previous Dump. It fails with ErrUnsupportedOperation when the store is not
// a [store.Primer].
func (c *Cache[O, T]) Prime(ctx context.Context, snap store.Snapshot) error {
	p, ok := c.store.(store.Primer)
	if !ok {
		return ErrUnsupportedOperation
	}

	ctx, span := tracing.Start(ctx, c.tracing, "Prime", "")
	defer span.End()

	if !store.Available(c.store) {
		return nil
	}
	err := p.Prime(ctx, snap)
	tracing.RecordError(span, err)
	return err
}

// Dump returns the full store contents. It fails with ErrUnsupportedOperation
// when the store is not a [store.Dumper], and returns an empty snapshot while
// the store is disconnected.
func (c *Cache[O, T]) Dump(ctx context.Context) (store.Snapshot, error) {
	d, ok := c.store.(store.Dumper)
	if !ok {
		return nil, ErrUnsupportedOperation
	}

	ctx, span := tracing.Start(ctx, c.tracing, "Dump", "")
	defer span.End()

	if !store.Available(c.store) {
		return store.Snapshot{}, nil
	}
	snap, err := d.Dump(ctx)
	tracing.RecordError(span, err)
	return snap, err
}

// lookup returns the decoded value of a fresh entry under key.
func (c *Cache[O, T]) lookup(ctx context.Context, key string) (T, bool) {
	var zero T
	if !store.Available(c.store) {
		return zero, false
	}

	e, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.StoreError("get")
		c.logger.WarnContext(ctx, "simplecache: store get failed, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return zero, false
	}
	if e == nil {
		return zero, false
	}

	if !e.Fresh(c.now()) {
		c.metrics.Expired()
		c.purge(ctx, key)
		return zero, false
	}

	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		c.logger.WarnContext(ctx, "simplecache: cached entry does not decode, purging",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.purge(ctx, key)
		return zero, false
	}
	return v, true
}

// fill computes and stores the value for key, sharing the work between
// concurrent callers when single-flight is enabled.
func (c *Cache[O, T]) fill(ctx context.Context, key string, options O, fn LoaderFunc[O, T], ttl time.Duration) (T, error) {
	if c.flight == nil {
		return c.compute(ctx, key, options, fn, ttl)
	}

	res, err, _ := c.flight.Do(key, func() (any, error) {
		return c.compute(ctx, key, options, fn, ttl)
	})
	v, _ := res.(T)
	return v, err
}

func (c *Cache[O, T]) compute(ctx context.Context, key string, options O, fn LoaderFunc[O, T], ttl time.Duration) (T, error) {
	v, err := c.invoke(ctx, key, options, fn)
	if err != nil {
		return v, err
	}
	c.put(ctx, key, v, ttl)
	return v, nil
}

// invoke calls fn once, honouring the loader rate limit. Failures are logged
// here so that every path reports them the same way.
func (c *Cache[O, T]) invoke(ctx context.Context, key string, options O, fn LoaderFunc[O, T]) (T, error) {
	var zero T
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			err = fmt.Errorf("simplecache: waiting for loader slot: %w", err)
			c.loaderFailed(ctx, key, err)
			return zero, err
		}
	}

	v, err := fn(ctx, options)
	if err != nil {
		c.loaderFailed(ctx, key, err)
		return zero, err
	}
	return v, nil
}

func (c *Cache[O, T]) loaderFailed(ctx context.Context, key string, err error) {
	c.metrics.LoaderError()
	c.logger.ErrorContext(ctx, "simplecache: loader failed, nothing cached",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

func (c *Cache[O, T]) put(ctx context.Context, key string, v T, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "simplecache: value does not encode, not cached",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if !store.Available(c.store) {
		return
	}
	if err := c.store.Put(ctx, key, store.NewEntry(data, ttl, c.now())); err != nil {
		c.metrics.StoreError("put")
		c.logger.WarnContext(ctx, "simplecache: store put failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Cache[O, T]) purge(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.metrics.StoreError("delete")
		c.logger.WarnContext(ctx, "simplecache: store delete failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
