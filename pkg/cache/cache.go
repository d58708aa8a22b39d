// Package cache provides the caching layers used by vulnerability providers
// and registry lookups.
//
// Two kinds of cache live here:
//
//   - [Cache]: a byte-oriented key/value store with per-entry TTL. [FileCache]
//     persists responses across CLI runs, [RedisCache] shares them between
//     machines, [MemoryCache] keeps them for one process, and [NullCache]
//     disables caching.
//   - [LRU]: a generic, bounded, in-process cache with O(1) get/set/evict and
//     optional lazy TTL expiry. It backs [MemoryCache] and the per-run lookup
//     caches in the providers.
//
// Keys are built by a [Keyer] so that different data sources never collide.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte payloads under string keys.
//
// A hit returns (data, true, nil); a miss returns (nil, false, nil). Errors are
// reserved for backend failures; callers treat them as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
