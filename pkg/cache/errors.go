package cache

import "errors"

// ErrCacheMiss is returned by typed helpers when an item is not in the cache.
var ErrCacheMiss = errors.New("cache miss")
