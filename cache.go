package fetchz

import (
	"sort"
	"sync"
)

// Cache maps resource keys to the last payload successfully retrieved for
// them. It belongs to a single Executor and is never shared. Entries have no
// TTL and are never evicted; they only leave the cache through Invalidate or
// Clear.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// NewCache creates an empty Cache.
func NewCache[T any]() *Cache[T] {
	return &Cache[T]{entries: make(map[string]T)}
}

// Get returns the cached payload for key.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put stores v under key, replacing any previous entry.
func (c *Cache[T]) Put(key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
}

// Invalidate removes the entry for key. It reports whether an entry existed.
func (c *Cache[T]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// Clear removes every entry.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of cached entries.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the cached keys in sorted order.
func (c *Cache[T]) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}
