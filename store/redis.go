package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisConfig controls key namespacing, connectivity tracking and connect
// retries of the Redis store.
type RedisConfig struct {
	// Prefix namespaces every key written by the store. Flush and Dump only
	// touch keys carrying this prefix.
	Prefix string

	// FailureThreshold is the number of consecutive command failures after
	// which the store reports itself disconnected. Zero disables tripping.
	FailureThreshold int

	// RetryAfter is how long the store stays disconnected after tripping
	// before a probe command is let through.
	RetryAfter time.Duration

	// ConnectAttempts is the maximum number of pings issued by Connect.
	ConnectAttempts int

	// ConnectBaseDelay is the delay before the first connect retry.
	// Subsequent retries use ConnectBaseDelay * 2^attempt.
	ConnectBaseDelay time.Duration

	// ConnectMaxDelay caps the computed back-off delay.
	ConnectMaxDelay time.Duration

	// Jitter adds randomness to the connect back-off. 0.2 means ±20 %.
	Jitter float64

	// ScanCount is the COUNT hint used when iterating keys for Flush and Dump.
	ScanCount int64
}

// DefaultRedisConfig returns a RedisConfig populated with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix:           "simplecache:",
		FailureThreshold: 5,
		RetryAfter:       5 * time.Second,
		ConnectAttempts:  3,
		ConnectBaseDelay: 100 * time.Millisecond,
		ConnectMaxDelay:  2 * time.Second,
		Jitter:           0.2,
		ScanCount:        100,
	}
}

// Validate checks whether the configuration values are valid.
func (c RedisConfig) Validate() error {
	if c.Prefix == "" {
		return &ConfigError{Field: "Prefix", Message: "must not be empty"}
	}
	if c.FailureThreshold < 0 {
		return &ConfigError{Field: "FailureThreshold", Message: "must be non-negative"}
	}
	if c.RetryAfter < 0 {
		return &ConfigError{Field: "RetryAfter", Message: "must be non-negative"}
	}
	if c.ConnectAttempts < 1 {
		return &ConfigError{Field: "ConnectAttempts", Message: "must be at least 1"}
	}
	if c.ConnectBaseDelay < 0 || c.ConnectMaxDelay < 0 {
		return &ConfigError{Field: "ConnectBaseDelay", Message: "delays must be non-negative"}
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return &ConfigError{Field: "Jitter", Message: "must be between 0 and 1"}
	}
	if c.ScanCount <= 0 {
		return &ConfigError{Field: "ScanCount", Message: "must be greater than 0"}
	}
	return nil
}

// Redis is an external store backed by Redis. Entries are msgpack encoded
// under prefixed keys and carry a native expiry when they have a TTL.
//
// The store tracks connectivity: SetConnected flips an externally controlled
// flag, and repeated command failures trip an internal breaker. While
// disconnected, Get reports a miss and writes are skipped.
type Redis struct {
	rdb   redis.UniversalClient
	cfg   RedisConfig
	owned bool

	connected atomic.Bool
	link      *link
	now       func() time.Time
}

// NewRedis wraps an existing client. The caller keeps ownership of rdb.
func NewRedis(rdb redis.UniversalClient, cfg RedisConfig) (*Redis, error) {
	if rdb == nil {
		return nil, &ConfigError{Field: "client", Message: "must not be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Redis{
		rdb:  rdb,
		cfg:  cfg,
		link: newLink(cfg.FailureThreshold, cfg.RetryAfter),
		now:  time.Now,
	}
	r.connected.Store(true)
	return r, nil
}

// DialRedis creates a client for addr and wraps it. The returned store owns
// the client; Close releases it.
func DialRedis(addr, password string, db int, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	r, err := NewRedis(rdb, cfg)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	r.owned = true
	return r, nil
}

// Connect pings Redis, retrying with exponential back-off, and sets the
// connectivity flag from the outcome.
func (r *Redis) Connect(ctx context.Context) error {
	var err error
	for i := range r.cfg.ConnectAttempts {
		if err = r.rdb.Ping(ctx).Err(); err == nil {
			r.link.success()
			r.connected.Store(true)
			return nil
		}
		if i == r.cfg.ConnectAttempts-1 {
			break
		}

		timer := time.NewTimer(backoff(r.cfg.ConnectBaseDelay, r.cfg.ConnectMaxDelay, r.cfg.Jitter, i))
		select {
		case <-ctx.Done():
			timer.Stop()
			r.connected.Store(false)
			return ctx.Err()
		case <-timer.C:
		}
	}
	r.connected.Store(false)
	return fmt.Errorf("store: redis unreachable after %d attempts: %w", r.cfg.ConnectAttempts, err)
}

// SetConnected sets the externally controlled connectivity flag.
func (r *Redis) SetConnected(v bool) {
	r.connected.Store(v)
}

// Connected reports whether commands are currently sent to Redis.
func (r *Redis) Connected() bool {
	return r.connected.Load() && r.link.allow()
}

// Get returns the entry stored under key. It returns nil while disconnected.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, error) {
	if !r.Connected() {
		return nil, nil
	}
	b, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.observe(nil)
		return nil, nil
	}
	r.observe(err)
	if err != nil {
		return nil, fmt.Errorf("store: redis get %q: %w", key, err)
	}

	var e Entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("store: decode entry %q: %w", key, err)
	}
	return &e, nil
}

// Put stores e under key with a native expiry matching its remaining TTL.
func (r *Redis) Put(ctx context.Context, key string, e Entry) error {
	if !r.Connected() {
		return nil
	}
	ttl, ok := r.expiration(e)
	if !ok {
		return nil
	}
	b, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("store: encode entry %q: %w", key, err)
	}
	err = r.rdb.Set(ctx, r.key(key), b, ttl).Err()
	r.observe(err)
	if err != nil {
		return fmt.Errorf("store: redis set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if !r.Connected() {
		return nil
	}
	err := r.rdb.Del(ctx, r.key(key)).Err()
	r.observe(err)
	if err != nil {
		return fmt.Errorf("store: redis del %q: %w", key, err)
	}
	return nil
}

// Flush removes every key carrying the configured prefix.
func (r *Redis) Flush(ctx context.Context) error {
	if !r.Connected() {
		return nil
	}
	err := r.scan(ctx, func(keys []string) error {
		return r.rdb.Del(ctx, keys...).Err()
	})
	r.observe(err)
	if err != nil {
		return fmt.Errorf("store: redis flush: %w", err)
	}
	return nil
}

// Prime flushes the prefix and writes every fresh entry of snap in a single
// pipeline.
func (r *Redis) Prime(ctx context.Context, snap Snapshot) error {
	if !r.Connected() {
		return nil
	}
	if err := r.Flush(ctx); err != nil {
		return err
	}
	if len(snap) == 0 {
		return nil
	}

	pipe := r.rdb.Pipeline()
	for key, e := range snap {
		ttl, ok := r.expiration(e)
		if !ok {
			continue
		}
		b, err := msgpack.Marshal(&e)
		if err != nil {
			return fmt.Errorf("store: encode entry %q: %w", key, err)
		}
		pipe.Set(ctx, r.key(key), b, ttl)
	}
	_, err := pipe.Exec(ctx)
	r.observe(err)
	if err != nil {
		return fmt.Errorf("store: redis prime: %w", err)
	}
	return nil
}

// Dump reads every key carrying the configured prefix.
func (r *Redis) Dump(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{}
	if !r.Connected() {
		return snap, nil
	}
	err := r.scan(ctx, func(keys []string) error {
		vals, err := r.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				// Deleted or expired between SCAN and MGET.
				continue
			}
			var e Entry
			if err := msgpack.Unmarshal([]byte(s), &e); err != nil {
				return fmt.Errorf("decode entry %q: %w", keys[i], err)
			}
			snap[strings.TrimPrefix(keys[i], r.cfg.Prefix)] = e
		}
		return nil
	})
	r.observe(err)
	if err != nil {
		return nil, fmt.Errorf("store: redis dump: %w", err)
	}
	return snap, nil
}

// Ping checks the Redis connection without touching the connectivity state.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying client when the store owns it.
func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.rdb.Close()
}

func (r *Redis) key(key string) string {
	return r.cfg.Prefix + key
}

// expiration returns the native expiry for e. ok is false when e is already
// stale and should not be written.
func (r *Redis) expiration(e Entry) (time.Duration, bool) {
	if e.TTL <= 0 {
		return 0, true
	}
	ttl := e.Remaining(r.now())
	return ttl, ttl > 0
}

// scan walks the prefixed keyspace in batches of at most ScanCount keys.
func (r *Redis) scan(ctx context.Context, fn func(keys []string) error) error {
	iter := r.rdb.Scan(ctx, 0, r.cfg.Prefix+"*", r.cfg.ScanCount).Iterator()
	batch := make([]string, 0, r.cfg.ScanCount)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if int64(len(batch)) >= r.cfg.ScanCount {
			if err := fn(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// observe feeds a command outcome into the connectivity breaker. Context
// cancellation says nothing about backend health and is ignored.
func (r *Redis) observe(err error) {
	switch {
	case err == nil:
		r.link.success()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		r.link.failure()
	}
}

var (
	_ Store     = (*Redis)(nil)
	_ Primer    = (*Redis)(nil)
	_ Dumper    = (*Redis)(nil)
	_ Connector = (*Redis)(nil)
)
