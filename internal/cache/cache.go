// Package cache provides the read-through cache of the current season.
//
// A Store is a plain byte-valued key/value backend. Current wraps one fixed
// key of a Store with typed, JSON-encoded read-through semantics: Get loads
// on miss, Invalidate drops the key. Entries never expire on their own.
//
// Every Delete advances a per-key generation. A populate only lands when the
// generation is still the one observed before the load started, so a load
// that raced an invalidation is returned to its caller but never cached.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrMiss is returned by Store.Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Store is a byte-valued key/value backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key and advances its generation.
	Delete(ctx context.Context, key string) error
	// Generation returns the current generation of key, zero if it was
	// never deleted.
	Generation(ctx context.Context, key string) (uint64, error)
	// SetIfGeneration stores value only while key is still at gen.
	SetIfGeneration(ctx context.Context, key string, gen uint64, value []byte) (bool, error)
}

// Loader produces the value to cache on a miss.
type Loader[T any] func(ctx context.Context) (T, error)

// Current is a single-key read-through cache.
type Current[T any] struct {
	store Store
	key   string
}

func NewCurrent[T any](store Store, key string) *Current[T] {
	return &Current[T]{store: store, key: key}
}

// Key returns the fixed key this cache lives under.
func (c *Current[T]) Key() string {
	return c.key
}

// Get returns the cached value, calling load and caching its result on a
// miss. Loader errors are returned unchanged and nothing is cached.
//
// A backend read error is treated as a miss; a backend write error is
// returned after the value was loaded, together with the value. A value
// loaded across an Invalidate is returned but not cached.
func (c *Current[T]) Get(ctx context.Context, load Loader[T]) (T, error) {
	var zero T

	raw, err := c.store.Get(ctx, c.key)
	if err == nil {
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			return v, nil
		}
		// Undecodable entry, reload it.
	}

	gen, genErr := c.store.Generation(ctx, c.key)

	v, err := load(ctx)
	if err != nil {
		return zero, err
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("encode cache entry %q: %w", c.key, err)
	}
	if genErr != nil {
		return v, fmt.Errorf("read cache generation %q: %w", c.key, genErr)
	}
	if _, err := c.store.SetIfGeneration(ctx, c.key, gen, encoded); err != nil {
		return v, fmt.Errorf("write cache entry %q: %w", c.key, err)
	}
	return v, nil
}

// Invalidate removes the entry. Removing an absent entry is not an error.
func (c *Current[T]) Invalidate(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("invalidate cache entry %q: %w", c.key, err)
	}
	return nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
	gens    map[string]uint64
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte), gens: make(map[string]uint64)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	m.gens[key]++
	return nil
}

func (m *Memory) Generation(_ context.Context, key string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gens[key], nil
}

func (m *Memory) SetIfGeneration(_ context.Context, key string, gen uint64, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gens[key] != gen {
		return false, nil
	}
	m.entries[key] = append([]byte(nil), value...)
	return true, nil
}

// Len reports the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
