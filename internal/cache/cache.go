// Package cache implements the market-data service's thread-safe LRU cache
// and request deduplicator.
//
// Grounded on the Python cache.py's LRUCache/MultiLevelCache (true LRU
// eviction via OrderedDict.move_to_end, per-(data-type) TTL, hit/miss/
// eviction stats) and deduplicator.py's RequestDeduplicator (double-check-
// then-wait join, grace-window cleanup). The teacher's own
// infrastructure/cache/cache.go only expires by TTL and never evicts by
// size, so it is not a fit for the spec's memory_max_size requirement;
// hashicorp/golang-lru/v2 (an unused indirect dependency in the teacher's
// go.mod) backs the eviction-order structure instead.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value     any
	createdAt time.Time
	ttl       time.Duration
	source    string
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Stats snapshots cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	MaxSize   int
}

// Cache is a thread-safe LRU cache with per-entry TTL. Lookups on expired
// entries count as misses and lazily remove the entry.
type Cache struct {
	mu      sync.Mutex
	backing *lru.Cache[string, *entry]
	maxSize int
	enabled bool

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a Cache with the given capacity. enabled=false makes every
// Get a miss and every Set a no-op, per spec §4.D's global-disable option.
func New(maxSize int, enabled bool) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	c := &Cache{maxSize: maxSize, enabled: enabled}
	backing, err := lru.New[string, *entry](maxSize)
	if err != nil {
		// Only non-positive sizes cause lru.New to fail, and we've already
		// normalized maxSize above.
		panic(err)
	}
	c.backing = backing
	return c
}

// Get returns the cached value for key, or (nil, false) on a miss or
// expired entry.
func (c *Cache) Get(key string) (any, bool) {
	if !c.enabled {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.backing.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if e.expired(time.Now()) {
		c.backing.Remove(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key with the given TTL, evicting the least
// recently used entry if the cache is at capacity.
func (c *Cache) Set(key string, value any, ttl time.Duration, source string) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if evicted := c.backing.Add(key, &entry{value: value, createdAt: time.Now(), ttl: ttl, source: source}); evicted {
		c.evictions.Add(1)
	}
}

// Delete removes key, reporting whether it existed.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backing.Remove(key)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backing.Purge()
}

// CleanupExpired removes all currently-expired entries and returns the
// count removed. Intended to be called periodically (e.g. from a cron
// schedule) rather than relying solely on lazy expiry-on-read.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range c.backing.Keys() {
		if e, ok := c.backing.Peek(key); ok && e.expired(now) {
			c.backing.Remove(key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	size := c.backing.Len()
	c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      size,
		MaxSize:   c.maxSize,
	}
}
