// Package cache implements the FetchCache port. The in-memory backend serves
// single-process deployments; the Redis backend is shared across replicas.
package cache

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.FetchCache = (*Memory)(nil)

// Memory stores fetch responses in an httpcache.MemoryCache. Each value is
// prefixed with its expiry in Unix nanoseconds; expired entries are deleted
// on read.
type Memory struct {
	store *httpcache.MemoryCache
	now   func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{store: httpcache.NewMemoryCache(), now: time.Now}
}

// Get returns the value stored under key, or driven.ErrCacheMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	raw, ok := m.store.Get(key)
	if !ok || len(raw) < 8 {
		return nil, driven.ErrCacheMiss
	}

	expires := int64(binary.BigEndian.Uint64(raw[:8]))
	if m.now().UnixNano() >= expires {
		m.store.Delete(key)
		return nil, driven.ErrCacheMiss
	}

	return append([]byte(nil), raw[8:]...), nil
}

// Set stores value under key for ttl. A non-positive ttl is a no-op.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	raw := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(raw[:8], uint64(m.now().Add(ttl).UnixNano()))
	copy(raw[8:], value)

	m.store.Set(key, raw)
	return nil
}
