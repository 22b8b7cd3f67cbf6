package cache

import (
	"time"
)

// Entry represents one cached resource list. Entries are immutable once
// stored: Set replaces them wholesale, never updates them in place.
type Entry struct {
	// Key is the cache key the entry was stored under.
	Key string `json:"key"`

	// Data is the fetched resource list, in server order.
	Data []map[string]any `json:"data"`

	// CreatedAt is when the entry was stored.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the entry becomes stale.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the entry has expired at the given instant.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time until expiration relative to now.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
