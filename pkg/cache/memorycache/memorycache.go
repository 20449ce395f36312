package memorycache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/asakaida/relgraph/pkg/cache"
)

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	size      int64
}

// Cache is an LRU cache with TTL and a byte budget.
type Cache[V any] struct {
	mu sync.Mutex

	items     map[string]*list.Element // key -> list element
	evictList *list.List               // front = most recent

	maxSize     int64
	ttl         time.Duration
	sizeOf      func(key string, value V) int64
	currentSize int64

	metrics *cache.Metrics
}

// Config holds configuration for the memory cache.
type Config[V any] struct {
	// MaxSizeBytes is the maximum total size of cached items in bytes.
	// When this limit is exceeded, least recently used items are evicted.
	MaxSizeBytes int64

	// DefaultTTL applies when Set is called with a non-positive ttl.
	DefaultTTL time.Duration

	// SizeOf estimates the memory held by an entry.
	// Defaults to 100 bytes plus the key length.
	SizeOf func(key string, value V) int64

	// EnableMetrics enables collection of cache metrics.
	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
func New[V any](config *Config[V]) *Cache[V] {
	c := &Cache[V]{
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		maxSize:   config.MaxSizeBytes,
		ttl:       config.DefaultTTL,
		sizeOf:    config.SizeOf,
	}
	if c.sizeOf == nil {
		c.sizeOf = func(key string, _ V) int64 { return int64(100 + len(key)) }
	}
	if config.EnableMetrics {
		c.metrics = &cache.Metrics{}
	}
	return c
}

var _ cache.Cache[struct{}] = (*Cache[struct{}])(nil)

// Get retrieves a value and marks it as most recently used.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, exists := c.items[key]
	if !exists {
		c.count(func(m *cache.Metrics) { m.Misses++ })
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if time.Now().After(ent.expiresAt) {
		c.removeElement(elem)
		c.count(func(m *cache.Metrics) { m.Misses++ })
		return zero, false
	}

	c.evictList.MoveToFront(elem)
	c.count(func(m *cache.Metrics) { m.Hits++ })
	return ent.value, true
}

// Set stores a value in cache with the specified TTL.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.ttl
	}
	size := c.sizeOf(key, value)

	if elem, exists := c.items[key]; exists {
		ent := elem.Value.(*entry[V])
		c.currentSize += size - ent.size
		ent.value = value
		ent.expiresAt = time.Now().Add(ttl)
		ent.size = size
		c.evictList.MoveToFront(elem)
		c.evict()
		return nil
	}

	elem := c.evictList.PushFront(&entry[V]{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
		size:      size,
	})
	c.items[key] = elem
	c.currentSize += size
	c.count(func(m *cache.Metrics) { m.KeysAdded++ })

	c.evict()
	return nil
}

// evict drops least recently used entries until the budget holds (lock held).
func (c *Cache[V]) evict() {
	for c.currentSize > c.maxSize && c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
		c.count(func(m *cache.Metrics) { m.KeysEvicted++ })
	}
}

// Delete removes a value from cache.
func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
	return nil
}

// Clear removes all entries from cache.
func (c *Cache[V]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.currentSize = 0
	return nil
}

// Metrics returns a snapshot of cache statistics.
func (c *Cache[V]) Metrics() *cache.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.metrics == nil {
		return &cache.Metrics{}
	}
	snapshot := *c.metrics
	return &snapshot
}

func (c *Cache[V]) count(update func(m *cache.Metrics)) {
	if c.metrics != nil {
		update(c.metrics)
	}
}

// removeElement removes an element from cache (must be called with lock held).
func (c *Cache[V]) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	ent := elem.Value.(*entry[V])
	delete(c.items, ent.key)
	c.currentSize -= ent.size
}

// Len returns the current number of items in cache.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Size returns the current total size in bytes.
func (c *Cache[V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}
