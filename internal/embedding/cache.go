package embedding

import (
	"sync"
	"time"
)

// CacheMetrics is the interface for recording cache metrics. It allows the
// cache to be decoupled from the metrics package.
type CacheMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
	UpdateCacheSize(cacheType string, size int)
}

type cacheEntry struct {
	vector    []float32
	expiresAt time.Time
}

// Cache caches embedding vectors by key with LRU capacity eviction and a
// per-entry TTL. Entries are immutable after insertion.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	maxSize int
	ttl     time.Duration
	order   []string // LRU order, oldest first
	metrics CacheMetrics
	now     func() time.Time
}

// NewCache creates a bounded embedding cache.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}

	return &Cache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		order:   make([]string, 0, maxSize),
		now:     time.Now,
	}
}

// SetMetrics sets the metrics recorder for this cache.
func (c *Cache) SetMetrics(metrics CacheMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = metrics
}

// Get retrieves a live vector from cache. Expired entries are treated as
// misses and removed.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		if c.metrics != nil {
			c.metrics.RecordCacheHit("embed")
		}

		c.mu.Lock()
		c.moveToEnd(key)
		c.mu.Unlock()

		// Return a copy to prevent external mutation
		vec := make([]float32, len(entry.vector))
		copy(vec, entry.vector)
		return vec, true
	}

	if ok {
		// Expired: drop it so capacity isn't wasted on dead entries.
		c.mu.Lock()
		c.remove(key)
		c.mu.Unlock()
	}

	if c.metrics != nil {
		c.metrics.RecordCacheMiss("embed")
	}

	return nil, false
}

// Set stores a vector in cache with the configured TTL.
func (c *Cache) Set(key string, vector []float32) {
	vec := make([]float32, len(vector))
	copy(vec, vector)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = cacheEntry{vector: vec, expiresAt: c.now().Add(c.ttl)}
		c.moveToEnd(key)
		return
	}

	// Evict oldest entries when at capacity
	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = cacheEntry{vector: vec, expiresAt: c.now().Add(c.ttl)}
	c.order = append(c.order, key)

	if c.metrics != nil {
		c.metrics.UpdateCacheSize("embed", len(c.entries))
	}
}

// moveToEnd moves a key to the end of the LRU order (must hold lock).
func (c *Cache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}

// remove deletes a key and its order entry (must hold lock).
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Size returns the current cache size.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.order = make([]string, 0, c.maxSize)

	if c.metrics != nil {
		c.metrics.UpdateCacheSize("embed", 0)
	}
}
