// Package resultcache caches complete search results keyed by normalized
// query text and filters.
package resultcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medicsearch/medic-search/internal/config"
	"github.com/medicsearch/medic-search/internal/domain"
)

// Cache stores ranked search results with per-entry TTL.
type Cache interface {
	// Get returns the cached result for key, or found=false on miss or
	// expired entry.
	Get(ctx context.Context, key string) (result *domain.RankedResult, found bool, err error)

	// Put stores a result under key for the given TTL.
	Put(ctx context.Context, key string, result *domain.RankedResult, ttl time.Duration) error

	// Close releases backend resources.
	Close() error
}

// New creates a cache backend based on configuration.
func New(cfg config.ResultCacheConfig) (Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(), nil
	case "redis":
		return NewRedisCache(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown result cache type: %s", cfg.Type)
	}
}

type memoryEntry struct {
	result    domain.RankedResult
	expiresAt time.Time
}

// MemoryCache is an in-process cache. Expired entries are dropped lazily on
// read and swept in bulk when the map grows past sweepThreshold.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// now is replaceable in tests.
	now func() time.Time
}

const sweepThreshold = 4096

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached result so callers cannot mutate the
// stored entry.
func (c *MemoryCache) Get(_ context.Context, key string) (*domain.RankedResult, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	result := entry.result
	result.Chunks = append([]domain.ScoredChunk(nil), entry.result.Chunks...)
	return &result, true, nil
}

// Put stores a result. A non-positive TTL is a no-op.
func (c *MemoryCache) Put(_ context.Context, key string, result *domain.RankedResult, ttl time.Duration) error {
	if result == nil || ttl <= 0 {
		return nil
	}

	stored := *result
	stored.Chunks = append([]domain.ScoredChunk(nil), result.Chunks...)

	c.mu.Lock()
	c.entries[key] = memoryEntry{
		result:    stored,
		expiresAt: c.now().Add(ttl),
	}
	if len(c.entries) > sweepThreshold {
		c.sweepLocked()
	}
	c.mu.Unlock()

	return nil
}

// sweepLocked removes all expired entries. Caller holds the write lock.
func (c *MemoryCache) sweepLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of stored entries, including not-yet-swept expired
// ones.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close is a no-op for the memory backend.
func (c *MemoryCache) Close() error {
	return nil
}
