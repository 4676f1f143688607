package store

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Ristretto is an in-process store backed by ristretto. Entries with a TTL are
// also expired natively by ristretto. It does not support priming or dumping
// because ristretto offers no way to enumerate its contents.
type Ristretto struct {
	rc  *ristretto.Cache[string, Entry]
	now func() time.Time
}

// NewRistretto creates a ristretto-backed store. maxCost bounds the number of
// entries held (each entry has a cost of 1).
func NewRistretto(maxCost int64) (*Ristretto, error) {
	if maxCost <= 0 {
		return nil, &ConfigError{Field: "maxCost", Message: "must be greater than 0"}
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{rc: rc, now: time.Now}, nil
}

// Get returns the entry stored under key.
func (r *Ristretto) Get(_ context.Context, key string) (*Entry, error) {
	e, ok := r.rc.Get(key)
	if !ok {
		return nil, nil
	}
	e.Data = bytes.Clone(e.Data)
	return &e, nil
}

// Put stores e under key. Entries that are already stale are dropped.
func (r *Ristretto) Put(_ context.Context, key string, e Entry) error {
	var ttl time.Duration
	if e.TTL > 0 {
		ttl = e.Remaining(r.now())
		if ttl <= 0 {
			r.rc.Del(key)
			return nil
		}
	}
	e.Data = bytes.Clone(e.Data)
	r.rc.SetWithTTL(key, e, 1, ttl)
	r.rc.Wait()
	return nil
}

// Delete removes key.
func (r *Ristretto) Delete(_ context.Context, key string) error {
	r.rc.Del(key)
	return nil
}

// Flush clears the cache.
func (r *Ristretto) Flush(_ context.Context) error {
	r.rc.Clear()
	return nil
}

// Close stops ristretto's background goroutines.
func (r *Ristretto) Close() {
	r.rc.Close()
}

var _ Store = (*Ristretto)(nil)
