package store

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type cacheItem[V any] struct {
	value   V
	expires time.Time
}

// Cache is a TTL map used for list and lookup responses. Keys are built with
// CacheKey so a leading segment can be invalidated as a prefix.
type Cache[V any] struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]cacheItem[V]
	now   func() time.Time
}

// NewCache returns an empty cache. A ttl <= 0 disables caching.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{ttl: ttl, items: make(map[string]cacheItem[V]), now: time.Now}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || c.now().After(item.expires) {
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[key] = cacheItem[V]{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// InvalidatePrefix drops every key whose first segment is prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	if prefix == "" {
		return
	}
	p := prefix + "|"
	c.mu.Lock()
	for k := range c.items {
		if strings.HasPrefix(k, p) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]cacheItem[V])
	c.mu.Unlock()
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// CacheKey joins parts with "|".
func CacheKey(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, "|")
}
