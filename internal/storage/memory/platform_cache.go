package memory

import (
	"context"
	"sync"
	"time"

	"github.com/0xsequence/token-directory/internal/storage"
)

// PlatformCache is an in-memory implementation of storage.PlatformCache.
type PlatformCache struct {
	mu   sync.RWMutex
	now  func() time.Time
	data map[string]cacheEntry
}

type cacheEntry struct {
	m       map[string]string
	expires time.Time // zero means no expiry
}

// NewPlatformCache creates a new in-memory cache.
func NewPlatformCache() *PlatformCache {
	return &PlatformCache{
		now:  time.Now,
		data: make(map[string]cacheEntry),
	}
}

// Compile-time interface check.
var _ storage.PlatformCache = (*PlatformCache)(nil)

// Get returns the cached map and whether it was present and fresh.
func (c *PlatformCache) Get(_ context.Context, key string) (map[string]string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || (!e.expires.IsZero() && !c.now().Before(e.expires)) {
		return nil, false, nil
	}
	return copyMap(e.m), true, nil
}

// Set stores m for ttl.
func (c *PlatformCache) Set(_ context.Context, key string, m map[string]string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := cacheEntry{m: copyMap(m)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.data[key] = e
	return nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
