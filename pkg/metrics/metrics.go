// Package metrics provides the centralized Prometheus metrics registry for
// the cohort pipeline. All metrics are defined in their respective packages
// (fhir, cache) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/fhir):
//   - fhir_requests_total{resource_type, status} (Counter): Total FHIR requests by resource type and HTTP status
//   - fhir_request_duration_seconds{resource_type} (Histogram): Request duration by resource type
//   - fhir_resources_fetched_total{resource_type} (Counter): Resources accumulated across pages
//   - fhir_fetch_partial_total{resource_type} (Counter): Fetches that returned partial results
//
// Cache Metrics (pkg/cache):
//   - fhir_cache_hits_total{backend} (Counter): Cache hits by backend (memory, redis)
//   - fhir_cache_misses_total (Counter): Cache misses
//   - fhir_cache_evictions_total (Counter): Expired entries evicted
//   - fhir_cache_entries (Gauge): Current entries in the in-memory cache
//   - fhir_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(fhir_cache_hits_total[5m])) /
//   (sum(rate(fhir_cache_hits_total[5m])) + sum(rate(fhir_cache_misses_total[5m])))
//
//   # Partial Fetch Rate
//   rate(fhir_fetch_partial_total[5m]) / rate(fhir_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(fhir_request_duration_seconds_bucket[5m]))
