package model

import (
	"context"
	"sort"
	"sync"
)

// MultiPage caches one model per page index, plus Shared. Each index is
// loaded at most once: concurrent lookups of the same index wait for the
// first, and a failed load is retried by the next lookup. Entries are never
// evicted or rebuilt.
type MultiPage[M any] struct {
	mu      sync.Mutex
	entries map[int]*pageEntry[M]
	load    func(ctx context.Context, n int) (M, error)
}

type pageEntry[M any] struct {
	mu     sync.Mutex
	model  M
	loaded bool
}

// NewMultiPage returns a cache that builds models with load.
func NewMultiPage[M any](load func(ctx context.Context, n int) (M, error)) *MultiPage[M] {
	return &MultiPage[M]{entries: make(map[int]*pageEntry[M]), load: load}
}

// Get returns the model for index n, loading it on first use. The first
// call for an index may block on the underlying accessor.
func (m *MultiPage[M]) Get(ctx context.Context, n int) (M, error) {
	m.mu.Lock()
	e, ok := m.entries[n]
	if !ok {
		e = &pageEntry[M]{}
		m.entries[n] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.model, nil
	}
	model, err := m.load(ctx, n)
	if err != nil {
		var zero M
		return zero, err
	}
	e.model, e.loaded = model, true
	return model, nil
}

// Cached returns the model for n if it was already loaded.
func (m *MultiPage[M]) Cached(n int) (M, bool) {
	m.mu.Lock()
	e, ok := m.entries[n]
	m.mu.Unlock()
	if !ok {
		var zero M
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model, e.loaded
}

// Loaded returns the indexes of loaded models in ascending order, Shared
// first.
func (m *MultiPage[M]) Loaded() []int {
	m.mu.Lock()
	keys := make([]int, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	sort.Ints(keys)

	out := keys[:0]
	for _, k := range keys {
		if _, ok := m.Cached(k); ok {
			out = append(out, k)
		}
	}
	return out
}
