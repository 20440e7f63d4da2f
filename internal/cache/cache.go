// Package cache provides the key-value stores behind the authentication cache
// and the revocation blacklist: an in-process memory cache, a redis cache
// guarded by a circuit breaker, and a two-level cache combining both.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

// Cache stores JSON-encodable values under string keys with a TTL.
// Get decodes into dest and returns ErrCacheMiss when the key is absent or expired.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Stats() map[string]interface{}
	Health(ctx context.Context) error
	Close() error
}
