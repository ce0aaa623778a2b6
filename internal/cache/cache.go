// Package cache provides a capacity-bounded key-value cache with LRU
// eviction and lazy time-based expiry.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Cache bounds its size with least-recently-used eviction (by access
// recency) and treats any entry older than the TTL as absent on the next
// read. Expired entries are not purged proactively; they are dropped
// lazily when read or evicted by capacity pressure. All operations are
// safe for concurrent use.
type Cache[K comparable, V any] struct {
	entries *lru.Cache[K, entry[V]]
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache holding at most capacity entries, each readable for
// ttl after insertion.
func New[K comparable, V any](capacity int, ttl time.Duration) (*Cache[K, V], error) {
	return NewWithClock[K, V](capacity, ttl, time.Now)
}

// NewWithClock is New with an injectable clock for tests.
func NewWithClock[K comparable, V any](capacity int, ttl time.Duration, now func() time.Time) (*Cache[K, V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	inner, err := lru.New[K, entry[V]](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru of capacity %d: %w", capacity, err)
	}
	return &Cache[K, V]{entries: inner, ttl: ttl, now: now}, nil
}

// Get returns the value for key. An entry whose age meets or exceeds the
// TTL is removed and reported as absent. A hit refreshes the entry's LRU
// recency but not its TTL.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		c.entries.Remove(key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous entry and restarting
// its TTL. The whole value is replaced atomically from the caller's
// perspective.
func (c *Cache[K, V]) Set(key K, value V) {
	c.entries.Add(key, entry[V]{value: value, insertedAt: c.now()})
}

// Delete removes key. Deleting an absent key is a no-op.
func (c *Cache[K, V]) Delete(key K) {
	c.entries.Remove(key)
}

// Len reports the number of stored entries, including entries that have
// expired but not yet been read.
func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}
