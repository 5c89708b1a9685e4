package memstore

import (
	"fmt"
	"sync"
	"time"
)

type cacheEntry struct {
	results   []Result
	expiresAt time.Time
}

// resultCache is a TTL-bounded, size-bounded cache of semantic search
// results, keyed by a digest of the query vector and parameters.
type resultCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxSize  int
	entries  map[string]cacheEntry
}

func newResultCache(maxSize int, ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]cacheEntry),
	}
}

func (c *resultCache) get(key string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.results, true
}

func (c *resultCache) put(key string, results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		// Drop every expired entry; if the cache is still full, evict one
		// arbitrary entry. A full LRU isn't worth it for a 100-entry,
		// 60s-TTL cache.
		for k, e := range c.entries {
			if time.Now().After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.maxSize {
			for k := range c.entries {
				delete(c.entries, k)
				break
			}
		}
	}
	c.entries[key] = cacheEntry{results: results, expiresAt: time.Now().Add(c.ttl)}
}

// vectorCacheKey derives a cache key from the first 10 (rounded) embedding
// components plus the search parameters, as specified.
func vectorCacheKey(vec []float32, topK int, minScore float64, filters Filters) string {
	n := 10
	if len(vec) < n {
		n = len(vec)
	}
	key := fmt.Sprintf("k=%d;min=%.2f;age=%d;src=%v;vec=", topK, minScore, filters.MaxAgeDays, filters.Sources)
	for i := 0; i < n; i++ {
		key += fmt.Sprintf("%.3f,", vec[i])
	}
	return key
}
