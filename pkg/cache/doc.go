// Package cache provides TTL caching for fetched FHIR resource lists.
//
// Two backends implement the same Store contract:
//
//   - MemoryStore: process-local map with lazy eviction on Get plus an
//     opportunistic full sweep when the sweep interval has elapsed. No
//     background timer is involved; cleanup is amortized over lookups.
//   - RedisStore: shared Redis backend where expiry is delegated to Redis
//     key TTLs.
//
// Keys are built by the caller as "{resourceType}:{effectiveLimit}" via Key.
// The cache knows nothing about subset relationships between limits: a
// request for 500 patients and one for 1000 are independent entries even
// though the larger result would satisfy the smaller request.
//
// Concurrent Get/Set on the same key is safe but not single-flight: two
// concurrent misses may both trigger upstream fetches, and the last writer
// wins. That race is accepted; the entries are interchangeable.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//
//	key := cache.Key("patients", 500)
//	data, err := store.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from the FHIR server, then:
//		store.Set(ctx, key, fetched, 10*time.Minute)
//	}
//
// # Metrics
//
// The package exports Prometheus metrics:
//
//   - fhir_cache_hits_total{backend} - cache hits
//   - fhir_cache_misses_total - cache misses
//   - fhir_cache_evictions_total - expired entries removed
//   - fhir_cache_entries - live entries in the in-memory backend
//   - fhir_cache_errors_total{operation} - backend operation errors
package cache
