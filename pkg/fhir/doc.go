// Package fhir provides the core FHIR acquisition client with TTL caching,
// link-following pagination, and best-effort partial results.
//
// The client fetches Patient, Observation, and Condition resources from a
// FHIR R4 server. Each fetch clamps the requested limit to a per-type hard
// maximum, consults the cache under "{resourceType}:{effectiveLimit}", and on
// a miss walks the server's bundle pagination by following "next" relation
// links until the cap is reached, the links run out, a page comes back empty,
// or a request fails.
//
// Failure handling is deliberately best-effort: a failed page ends the walk
// and everything accumulated so far is returned. No error reaches the caller;
// partial results are surfaced through the warn log and the
// fhir_fetch_partial_total counter instead. Retry and backoff are the
// downstream consumer's concern, not this client's.
//
// Resources are kept as raw map[string]any records. Upstream data is too
// inconsistently populated for typed decoding; the extract package resolves
// nested fields through fallback chains instead.
package fhir
