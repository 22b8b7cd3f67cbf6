package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (memory, redis).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fhir_cache_hits_total",
			Help: "Total number of FHIR cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fhir_cache_misses_total",
			Help: "Total number of FHIR cache misses",
		},
	)

	// CacheEvictions tracks expired entries removed, lazily or by sweep.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fhir_cache_evictions_total",
			Help: "Total number of expired FHIR cache entries evicted",
		},
	)

	// CacheEntries tracks live entries in the in-memory backend.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fhir_cache_entries",
			Help: "Current number of entries in the in-memory FHIR cache",
		},
	)

	// CacheErrors tracks cache operation errors by operation.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fhir_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "sweep"
	)
)
