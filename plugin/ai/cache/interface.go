// Package cache provides the byte cache shared by prediction caching.
package cache

import (
	"context"
	"time"
)

// CacheService defines the cache service interface.
// Implementations: Service (in-process LRU), RedisCache (shared across instances).
type CacheService interface {
	// Get retrieves a value from cache.
	// Returns: value, whether it exists
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value in cache.
	// ttl: expiration time
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate invalidates cache entries.
	// pattern: exact key, or a prefix followed by * (prediction:abc:*)
	Invalidate(ctx context.Context, pattern string) error
}

// Stats reports hit and miss counters of a cache.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}
