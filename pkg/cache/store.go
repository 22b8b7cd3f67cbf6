package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found or has expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultTTL is the fallback TTL for cached resource lists.
const DefaultTTL = 10 * time.Minute

// Store is the cache contract shared by all backends.
type Store interface {
	// Get returns the resource list stored under key.
	// Returns ErrCacheMiss if the key is absent or its entry has expired.
	Get(ctx context.Context, key string) ([]map[string]any, error)

	// Set stores data under key with the given TTL, unconditionally
	// replacing any prior entry. A TTL <= 0 stores an already-expired
	// entry, so the next Get misses.
	Set(ctx context.Context, key string, data []map[string]any, ttl time.Duration) error

	// Sweep removes every expired entry.
	Sweep(ctx context.Context) error
}
