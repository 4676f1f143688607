package store

import (
	"bytes"
	"context"
	"maps"
	"sync"
)

// Memory is the default in-process store. Its contents live exactly as long as
// the value itself. All methods are safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

// Get returns a copy of the entry stored under key.
func (m *Memory) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	e.Data = bytes.Clone(e.Data)
	return &e, nil
}

// Put stores e under key, replacing any previous entry.
func (m *Memory) Put(_ context.Context, key string, e Entry) error {
	e.Data = bytes.Clone(e.Data)
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Flush replaces the mapping with an empty one.
func (m *Memory) Flush(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
	return nil
}

// Prime replaces the contents with a copy of snap.
func (m *Memory) Prime(_ context.Context, snap Snapshot) error {
	entries := make(map[string]Entry, len(snap))
	for k, e := range snap {
		e.Data = bytes.Clone(e.Data)
		entries[k] = e
	}
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	return nil
}

// Dump returns a copy of the current contents.
func (m *Memory) Dump(_ context.Context) (Snapshot, error) {
	m.mu.RLock()
	snap := Snapshot(maps.Clone(m.entries))
	m.mu.RUnlock()
	if snap == nil {
		snap = Snapshot{}
	}
	for k, e := range snap {
		e.Data = bytes.Clone(e.Data)
		snap[k] = e
	}
	return snap, nil
}

// Len returns the number of stored entries, including stale ones not yet purged.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var (
	_ Store  = (*Memory)(nil)
	_ Primer = (*Memory)(nil)
	_ Dumper = (*Memory)(nil)
)
