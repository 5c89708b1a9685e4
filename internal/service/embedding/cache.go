package embedding

import (
	"container/list"
	"sync"
)

// queryCacheSize is the maximum number of distinct query strings whose
// embeddings are kept in memory.
const queryCacheSize = 100

type cacheEntry struct {
	key string
	vec []float32
}

// QueryCache is a small LRU over query-string -> embedding, so repeated
// memory searches for the same phrase (a common pattern in conversational
// follow-ups) skip the embedding call entirely. There is no TTL: stale
// entries are harmless since the underlying text->vector mapping for a
// given provider and model never changes.
type QueryCache struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	index map[string]*list.Element
}

// NewQueryCache creates an embedding query cache holding at most cap entries.
func NewQueryCache(cap int) *QueryCache {
	if cap <= 0 {
		cap = queryCacheSize
	}
	return &QueryCache{
		cap:   cap,
		ll:    list.New(),
		index: make(map[string]*list.Element, cap),
	}
}

// Get returns the cached vector for key, promoting it to most-recently-used.
func (c *QueryCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).vec, true
}

// Put inserts or updates the cached vector for key, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *QueryCache) Put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*cacheEntry).vec = vec
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, vec: vec})
	c.index[key] = el

	for c.ll.Len() > c.cap {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the current number of cached entries.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
