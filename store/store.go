// Package store defines the adapter contract used by the memoizing loader and
// ships the built-in adapters: an owned in-process map, a ristretto-backed
// in-process cache, a Redis-backed external store and a two-level combination.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrUnsupportedOperation is returned when an adapter lacks an optional
// capability such as priming or dumping.
var ErrUnsupportedOperation = errors.New("store: unsupported operation")

// Entry is a single cached value together with its expiry metadata.
type Entry struct {
	// Data is the JSON encoding of the cached value.
	Data json.RawMessage `json:"data" msgpack:"data"`

	// TTL is the lifetime in milliseconds. Zero means the entry never expires.
	TTL int64 `json:"ttl" msgpack:"ttl"`

	// Created is the creation time in Unix milliseconds.
	Created int64 `json:"created" msgpack:"created"`
}

// NewEntry builds an entry created at now with the given lifetime. Negative
// lifetimes are treated as zero.
func NewEntry(data []byte, ttl time.Duration, now time.Time) Entry {
	return Entry{
		Data:    data,
		TTL:     ttlMillis(ttl),
		Created: now.UnixMilli(),
	}
}

// ttlMillis converts ttl to whole milliseconds. Negative values mean no
// expiry. Positive values below a millisecond round up to 1 so that a short
// TTL never turns into "never expires".
func ttlMillis(ttl time.Duration) int64 {
	switch {
	case ttl <= 0:
		return 0
	case ttl < time.Millisecond:
		return 1
	default:
		return ttl.Milliseconds()
	}
}

// Fresh reports whether the entry is still valid at now.
func (e Entry) Fresh(now time.Time) bool {
	if e.TTL <= 0 {
		return true
	}
	return now.UnixMilli()-e.Created < e.TTL
}

// Remaining returns how long the entry stays valid after now. It returns 0 for
// entries without a TTL and a negative duration for stale entries.
func (e Entry) Remaining(now time.Time) time.Duration {
	if e.TTL <= 0 {
		return 0
	}
	return time.Duration(e.Created+e.TTL-now.UnixMilli()) * time.Millisecond
}

// Snapshot maps cache keys to entries. It is the unit of priming and dumping.
type Snapshot map[string]Entry

// Store is the required capability set of a cache adapter.
type Store interface {
	// Get returns the raw entry stored under key, or nil when absent.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores or replaces the entry under key.
	Put(ctx context.Context, key string, e Entry) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Flush removes every entry.
	Flush(ctx context.Context) error
}

// Primer is implemented by stores that can replace their contents wholesale.
type Primer interface {
	Prime(ctx context.Context, snap Snapshot) error
}

// Dumper is implemented by stores that can export their full contents.
type Dumper interface {
	Dump(ctx context.Context) (Snapshot, error)
}

// Connector is implemented by stores whose backend may be unreachable. When
// Connected returns false, callers treat reads as misses and skip writes.
type Connector interface {
	Connected() bool
}

// Available reports whether s can currently serve requests.
func Available(s Store) bool {
	if c, ok := s.(Connector); ok {
		return c.Connected()
	}
	return true
}

// ConfigError represents an adapter configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "store: config error in field " + e.Field + ": " + e.Message
}
