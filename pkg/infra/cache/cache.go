package cache

import (
	"sync"
	"time"
)

// Cache is a small in-process TTL cache used for lookups that are cheap
// to recompute but hit on every dispatch, such as server display names.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Clear()
	Size() int
}

type memCache struct {
	mu    sync.Mutex
	items map[string]cacheItem
	opts  *options
}

type cacheItem struct {
	value      any
	expiration time.Time
}

type options struct {
	ttl     time.Duration
	maxSize int
}

type Option func(*options)

// WithTTL sets how long entries stay valid. Zero means entries never
// expire.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithMaxSize caps the entry count. When full, the entry closest to
// expiry is evicted.
func WithMaxSize(maxSize int) Option {
	return func(o *options) {
		o.maxSize = maxSize
	}
}

func New(opts ...Option) Cache {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return &memCache{
		items: make(map[string]cacheItem),
		opts:  o,
	}
}

func (c *memCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return nil, false
	}
	if !item.expiration.IsZero() && time.Now().After(item.expiration) {
		delete(c.items, key)
		return nil, false
	}
	return item.value, true
}

func (c *memCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.maxSize > 0 && len(c.items) >= c.opts.maxSize {
		if _, exists := c.items[key]; !exists {
			c.evictOldest()
		}
	}

	var expiration time.Time
	if c.opts.ttl > 0 {
		expiration = time.Now().Add(c.opts.ttl)
	}
	c.items[key] = cacheItem{value: value, expiration: expiration}
}

func (c *memCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *memCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cacheItem)
}

func (c *memCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest drops the live entry closest to expiry. Entries without
// an expiration are only evicted when nothing else qualifies.
func (c *memCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, item := range c.items {
		if item.expiration.IsZero() {
			continue
		}
		if oldestTime.IsZero() || item.expiration.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.expiration
		}
	}
	if oldestKey == "" {
		for key := range c.items {
			oldestKey = key
			break
		}
	}
	delete(c.items, oldestKey)
}
