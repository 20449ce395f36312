// Package theinecache adapts theine-go to cache.Cache.
package theinecache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Yiling-J/theine-go"

	"github.com/asakaida/relgraph/pkg/cache"
)

// Config holds configuration for the theine cache.
type Config[V any] struct {
	// MaxCost bounds the summed cost of all entries.
	MaxCost int64

	// DefaultTTL applies when Set is called with a non-positive ttl.
	// Zero keeps entries until they are evicted.
	DefaultTTL time.Duration

	// Cost estimates the cost of an entry, in the unit of MaxCost.
	// Defaults to 100 plus the key length, matching memorycache.
	Cost func(key string, value V) int64
}

// Cache is a cache.Cache backed by a theine W-TinyLFU cache.
type Cache[V any] struct {
	cache      *theine.Cache[string, V]
	defaultTTL time.Duration
	cost       func(key string, value V) int64

	added   atomic.Uint64
	evicted atomic.Uint64
}

var _ cache.Cache[struct{}] = (*Cache[struct{}])(nil)

// New builds a theine cache with the given configuration.
func New[V any](config *Config[V]) (*Cache[V], error) {
	c := &Cache[V]{
		defaultTTL: config.DefaultTTL,
		cost:       config.Cost,
	}
	if c.cost == nil {
		c.cost = func(key string, _ V) int64 { return int64(100 + len(key)) }
	}

	builder := theine.NewBuilder[string, V](config.MaxCost)
	builder.RemovalListener(func(_ string, _ V, reason theine.RemoveReason) {
		if reason == theine.EVICTED {
			c.evicted.Add(1)
		}
	})
	built, err := builder.Build()
	if err != nil {
		return nil, err
	}
	c.cache = built
	return c, nil
}

func (c *Cache[V]) Get(_ context.Context, key string) (V, bool) {
	return c.cache.Get(key)
}

// Set stores a value. Entries costing more than MaxCost are silently dropped.
func (c *Cache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	cost := c.cost(key, value)
	var ok bool
	if ttl <= 0 {
		ok = c.cache.Set(key, value, cost)
	} else {
		ok = c.cache.SetWithTTL(key, value, cost, ttl)
	}
	if ok {
		c.added.Add(1)
	}
	return nil
}

func (c *Cache[V]) Delete(_ context.Context, key string) error {
	c.cache.Delete(key)
	return nil
}

func (c *Cache[V]) Clear(_ context.Context) error {
	var keys []string
	c.cache.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	for _, key := range keys {
		c.cache.Delete(key)
	}
	return nil
}

// Metrics returns a snapshot of cache statistics.
func (c *Cache[V]) Metrics() *cache.Metrics {
	stats := c.cache.Stats()
	return &cache.Metrics{
		Hits:        stats.Hits(),
		Misses:      stats.Misses(),
		KeysAdded:   c.added.Load(),
		KeysEvicted: c.evicted.Load(),
	}
}

// Len returns the current number of entries.
func (c *Cache[V]) Len() int {
	return c.cache.Len()
}

// Size returns the summed cost of the current entries.
func (c *Cache[V]) Size() int64 {
	var size int64
	c.cache.Range(func(key string, value V) bool {
		size += c.cost(key, value)
		return true
	})
	return size
}

// Close stops the cache's background maintenance.
func (c *Cache[V]) Close() {
	c.cache.Close()
}
