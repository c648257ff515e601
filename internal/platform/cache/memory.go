package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a size-bounded LRU. Entries expire after the smaller of the
// per-call TTL and the cache-wide MaxTTL.
type MemoryCache struct {
	lru    *expirable.LRU[string, memoryEntry]
	maxTTL time.Duration
	now    func() time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(maxSize int, maxTTL time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if maxTTL <= 0 {
		maxTTL = time.Minute
	}
	return &MemoryCache{
		lru:    expirable.NewLRU[string, memoryEntry](maxSize, nil, maxTTL),
		maxTTL: maxTTL,
		now:    time.Now,
	}
}

// Get retrieves a value from cache
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	if c.now().After(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, ErrNotFound
	}
	return entry.value, nil
}

// Set stores a value in cache with TTL
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	c.lru.Add(key, memoryEntry{value: buf, expiresAt: c.now().Add(ttl)})
	return nil
}

// Delete removes a key from cache
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Close purges the cache
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}

// Len returns the number of live entries
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}
