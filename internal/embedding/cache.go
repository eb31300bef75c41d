package embedding

import (
	"container/list"
	"context"
	"sync"
)

// Cache is an LRU cache for embeddings keyed by text.
type Cache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewCache creates a new cache with the given capacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present.
func (c *Cache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the oldest entry if at capacity.
func (c *Cache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	entry := &cacheEntry{key: key, value: value}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CachedProvider serves single-text embeddings from an LRU cache keyed by
// model and text. Batches bypass the cache.
type CachedProvider struct {
	Provider
	cache *Cache
}

// NewCachedProvider wraps p with a cache of the given capacity.
func NewCachedProvider(p Provider, capacity int) *CachedProvider {
	return &CachedProvider{Provider: p, cache: NewCache(capacity)}
}

// Embed implements Provider.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := p.Model() + "\x00" + text
	if vec, ok := p.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := p.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, vec)
	return vec, nil
}
