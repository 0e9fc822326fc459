package cache

import (
	"container/list"
	"sync"

	"github.com/memorykeep/docsync/pkg/types"
)

// MemoryCache is a thread-safe in-process types.Cache with optional LRU
// eviction. It is the default cache for tests and for hosts that do not need
// snapshots to survive a restart.
type MemoryCache struct {
	mu         sync.Mutex
	maxEntries int
	items      map[string]*list.Element
	evictList  *list.List
	stats      types.CacheStats
}

type memoryItem struct {
	key   string
	value []byte
}

// NewMemoryCache creates a cache holding at most maxEntries keys; zero means unbounded.
func NewMemoryCache(maxEntries int) *MemoryCache {
	return &MemoryCache{
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
	}
}

// Get returns a copy of the value stored at key
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}

	c.evictList.MoveToFront(elem)
	c.stats.Hits++
	c.updateHitRate()

	item := elem.Value.(*memoryItem)
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, true
}

// Set stores a copy of value at key
func (c *MemoryCache) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := make([]byte, len(value))
	copy(data, value)

	c.stats.Writes++
	if elem, ok := c.items[key]; ok {
		elem.Value.(*memoryItem).value = data
		c.evictList.MoveToFront(elem)
		return nil
	}

	c.items[key] = c.evictList.PushFront(&memoryItem{key: key, value: data})
	c.evictIfNeeded()
	return nil
}

// Has reports whether key is present without touching statistics
func (c *MemoryCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Delete removes key
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.evictList.Remove(elem)
		delete(c.items, key)
	}
	return nil
}

// Keys returns all keys, most recently used first
func (c *MemoryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*memoryItem).key)
	}
	return keys
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Entries = len(c.items)
	return stats
}

func (c *MemoryCache) evictIfNeeded() {
	if c.maxEntries <= 0 {
		return
	}
	for len(c.items) > c.maxEntries {
		oldest := c.evictList.Back()
		if oldest == nil {
			return
		}
		c.evictList.Remove(oldest)
		delete(c.items, oldest.Value.(*memoryItem).key)
	}
}

func (c *MemoryCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
