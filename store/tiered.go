package store

import (
	"context"
	"errors"
	"maps"
	"slices"
)

// Tiered combines a near (L1) and a far (L2) store. Reads check L1 first, then
// L2. Writes populate both layers, far layer first.
type Tiered struct {
	l1 Store
	l2 Store
}

// NewTiered creates a two-level store.
func NewTiered(l1, l2 Store) *Tiered {
	return &Tiered{l1: l1, l2: l2}
}

// Get checks L1, then L2. An L2 hit is promoted into L1 unchanged, so the
// promoted copy keeps its original creation time and TTL.
func (t *Tiered) Get(ctx context.Context, key string) (*Entry, error) {
	if Available(t.l1) {
		if e, err := t.l1.Get(ctx, key); err != nil || e != nil {
			return e, err
		}
	}
	if !Available(t.l2) {
		return nil, nil
	}
	e, err := t.l2.Get(ctx, key)
	if err != nil || e == nil {
		return nil, err
	}
	if Available(t.l1) {
		_ = t.l1.Put(ctx, key, *e)
	}
	return e, nil
}

// Put writes e to L2, then L1. The L1 write happens even when L2 fails.
func (t *Tiered) Put(ctx context.Context, key string, e Entry) error {
	var errs []error
	if Available(t.l2) {
		errs = append(errs, t.l2.Put(ctx, key, e))
	}
	if Available(t.l1) {
		errs = append(errs, t.l1.Put(ctx, key, e))
	}
	return errors.Join(errs...)
}

// Delete removes key from both layers.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	return t.each(func(s Store) error { return s.Delete(ctx, key) })
}

// Flush clears both layers.
func (t *Tiered) Flush(ctx context.Context) error {
	return t.each(func(s Store) error { return s.Flush(ctx) })
}

// Prime replaces the contents of both layers with snap. A layer that cannot
// be primed is flushed instead, so it never shadows the primed entries. It
// fails with ErrUnsupportedOperation only when neither layer supports
// priming, and then leaves both layers untouched.
func (t *Tiered) Prime(ctx context.Context, snap Snapshot) error {
	layers := []Store{t.l2, t.l1}
	if !slices.ContainsFunc(layers, func(s Store) bool {
		_, ok := s.(Primer)
		return ok
	}) {
		return ErrUnsupportedOperation
	}

	var errs []error
	for _, s := range layers {
		if !Available(s) {
			continue
		}
		if p, ok := s.(Primer); ok {
			errs = append(errs, p.Prime(ctx, snap))
		} else {
			errs = append(errs, s.Flush(ctx))
		}
	}
	return errors.Join(errs...)
}

// Dump merges the contents of both layers, L1 entries taking precedence. It
// fails with ErrUnsupportedOperation only when neither layer supports dumping.
func (t *Tiered) Dump(ctx context.Context) (Snapshot, error) {
	var dumped bool
	snap := Snapshot{}
	for _, s := range []Store{t.l2, t.l1} {
		d, ok := s.(Dumper)
		if !ok {
			continue
		}
		dumped = true
		if !Available(s) {
			continue
		}
		part, err := d.Dump(ctx)
		if err != nil {
			return nil, err
		}
		maps.Copy(snap, part)
	}
	if !dumped {
		return nil, ErrUnsupportedOperation
	}
	return snap, nil
}

func (t *Tiered) each(fn func(Store) error) error {
	var errs []error
	for _, s := range []Store{t.l2, t.l1} {
		if Available(s) {
			errs = append(errs, fn(s))
		}
	}
	return errors.Join(errs...)
}

var (
	_ Store  = (*Tiered)(nil)
	_ Primer = (*Tiered)(nil)
	_ Dumper = (*Tiered)(nil)
)
