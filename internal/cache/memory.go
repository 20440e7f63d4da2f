package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is a process-local Cache on top of go-cache. Values are stored
// JSON-encoded so a cached value never aliases the caller's memory.
type MemoryCache struct {
	items   *gocache.Cache
	metrics *CacheMetrics
}

func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithCleanup(time.Minute)
}

// NewMemoryCacheWithCleanup drops expired entries every interval. A
// non-positive interval disables the janitor; expired entries then stay
// invisible to readers until DeleteExpired runs.
func NewMemoryCacheWithCleanup(interval time.Duration) *MemoryCache {
	return &MemoryCache{
		items:   gocache.New(gocache.NoExpiration, interval),
		metrics: NewCacheMetrics(),
	}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	c.items.Set(key, data, expiration(ttl))
	c.metrics.RecordSet()
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := c.items.Get(key)
	if !ok {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	if err := json.Unmarshal(raw.([]byte), dest); err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	c.metrics.RecordHit()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.items.Delete(key)
	c.metrics.RecordDelete()
	return nil
}

func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.items.Get(key)
	return ok, nil
}

// DeleteExpired drops every expired entry and reports how many were removed.
func (c *MemoryCache) DeleteExpired() int {
	before := c.items.ItemCount()
	c.items.DeleteExpired()
	if removed := before - c.items.ItemCount(); removed > 0 {
		return removed
	}
	return 0
}

// Len counts stored entries, including expired ones not yet cleaned up.
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}

func (c *MemoryCache) Stats() map[string]interface{} {
	m := c.metrics.GetStats()
	return map[string]interface{}{
		"type":     "memory",
		"items":    c.Len(),
		"hits":     m.Hits,
		"misses":   m.Misses,
		"errors":   m.Errors,
		"sets":     m.Sets,
		"deletes":  m.Deletes,
		"hit_rate": c.metrics.HitRate(),
	}
}

func (c *MemoryCache) Health(context.Context) error {
	return nil
}

// Close drops all entries. go-cache stops its janitor once the cache is
// garbage collected.
func (c *MemoryCache) Close() error {
	c.items.Flush()
	return nil
}
