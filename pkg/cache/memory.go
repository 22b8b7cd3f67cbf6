package cache

import (
	"context"
	"sync"
	"time"
)

// SweepInterval is how long MemoryStore waits between opportunistic full
// sweeps triggered from Get.
const SweepInterval = 60 * time.Second

// MemoryStore is the in-memory cache backend.
//
// Expired entries are evicted two ways: lazily when a Get touches them, and
// by a full sweep performed opportunistically inside Get once SweepInterval
// has elapsed since the last one. The sweep amortizes cleanup of keys that
// are never looked up again without a dedicated background timer.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	lastSweep time.Time

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]*Entry),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Get returns the resource list stored under key, or ErrCacheMiss if the key
// is absent or expired. An expired entry is deleted on touch.
func (s *MemoryStore) Get(_ context.Context, key string) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	// Opportunistic full sweep, independent of the lookup outcome.
	if now.Sub(s.lastSweep) > SweepInterval {
		s.sweepLocked(now)
		s.lastSweep = now
	}

	entry, ok := s.entries[key]
	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired(now) {
		delete(s.entries, key)
		CacheEvictions.Inc()
		CacheEntries.Set(float64(len(s.entries)))
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return entry.Data, nil
}

// Set stores data under key, replacing any prior entry.
func (s *MemoryStore) Set(_ context.Context, key string, data []map[string]any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[key] = &Entry{
		Key:       key,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	CacheEntries.Set(float64(len(s.entries)))
	return nil
}

// Sweep removes every expired entry.
func (s *MemoryStore) Sweep(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	s.lastSweep = now
	return nil
}

// Len returns the number of live entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweepLocked removes expired entries. Caller must hold s.mu.
func (s *MemoryStore) sweepLocked(now time.Time) {
	for key, entry := range s.entries {
		if entry.IsExpired(now) {
			delete(s.entries, key)
			CacheEvictions.Inc()
		}
	}
	CacheEntries.Set(float64(len(s.entries)))
}
