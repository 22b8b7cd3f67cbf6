package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/clinsight/fhir-cohort/pkg/cache"
)

// GetPatients fetches patient resources, at most limit records. A limit <= 0
// selects the default. The cache is consulted first; a miss triggers a
// paginated fetch whose result is cached for the configured TTL.
func (c *Client) GetPatients(ctx context.Context, limit int) []map[string]any {
	effective := effectiveLimit(limit, c.config.Limits.DefaultPatients, c.config.Limits.MaxPatients)
	return c.getCached(ctx, cache.Key(keyPatients, effective), func(ctx context.Context) []map[string]any {
		return c.fetchPaginated(ctx, ResourcePatient, nil, effective)
	})
}

// GetObservations fetches observation resources, newest first, at most limit
// records.
func (c *Client) GetObservations(ctx context.Context, limit int) []map[string]any {
	effective := effectiveLimit(limit, c.config.Limits.DefaultObservations, c.config.Limits.MaxObservations)
	return c.getCached(ctx, cache.Key(keyObservations, effective), func(ctx context.Context) []map[string]any {
		return c.fetchPaginated(ctx, ResourceObservation, url.Values{"_sort": {"-date"}}, effective)
	})
}

// GetConditions fetches condition resources, at most limit records.
func (c *Client) GetConditions(ctx context.Context, limit int) []map[string]any {
	effective := effectiveLimit(limit, c.config.Limits.DefaultConditions, c.config.Limits.MaxConditions)
	return c.getCached(ctx, cache.Key(keyConditions, effective), func(ctx context.Context) []map[string]any {
		return c.fetchPaginated(ctx, ResourceCondition, nil, effective)
	})
}

// FetchLimits carries per-type record limits for FetchAll. Zero values
// select the configured defaults.
type FetchLimits struct {
	Patients     int
	Observations int
	Conditions   int
}

// FetchAll fetches all three resource types concurrently and returns them
// keyed "patients", "observations", "conditions". Pagination within one type
// is sequential (each page's continuation comes from the previous response),
// but the three types are independent.
func (c *Client) FetchAll(ctx context.Context, limits FetchLimits) map[string][]map[string]any {
	var (
		patients     []map[string]any
		observations []map[string]any
		conditions   []map[string]any
		wg           sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		patients = c.GetPatients(ctx, limits.Patients)
	}()
	go func() {
		defer wg.Done()
		observations = c.GetObservations(ctx, limits.Observations)
	}()
	go func() {
		defer wg.Done()
		conditions = c.GetConditions(ctx, limits.Conditions)
	}()
	wg.Wait()

	return map[string][]map[string]any{
		keyPatients:     patients,
		keyObservations: observations,
		keyConditions:   conditions,
	}
}

// Search performs a one-shot, non-paginated search against the server,
// bypassing the cache. Returns an empty slice on any failure.
func (c *Client) Search(ctx context.Context, resourceType string, params url.Values) []map[string]any {
	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	query.Set("_count", "50")

	searchCtx, cancel := context.WithTimeout(ctx, c.config.SearchTimeout)
	defer cancel()

	bundle, err := c.getBundle(searchCtx, resourceType, c.config.BaseURL+"/"+resourceType+"?"+query.Encode())
	if err != nil {
		c.logger.Warn().Err(err).
			Str("resource_type", resourceType).
			Msg("Search failed")
		return []map[string]any{}
	}
	return bundle.Resources()
}

// getCached returns the list under key, fetching and caching it on a miss.
// Cache backend errors degrade to a fetch; they never reach the caller.
func (c *Client) getCached(ctx context.Context, key string, fetch func(context.Context) []map[string]any) []map[string]any {
	data, err := c.cache.Get(ctx, key)
	if err == nil {
		c.logger.Debug().Str("key", key).Msg("Cache hit")
		return data
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
	}

	c.logger.Debug().Str("key", key).Msg("Cache miss - fetching from FHIR server")
	data = fetch(ctx)

	if err := c.cache.Set(ctx, key, data, c.config.CacheTTL); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache fetch result")
	}
	return data
}

// fetchPaginated walks the server's bundle pagination for one resource type.
//
// The first request goes to {base}/{resourceType} with the initial params
// plus _count. Every following request uses the bundle's "next" link
// verbatim: the link already encodes full continuation state, so resending
// params would be wrong. The walk ends when the next link is missing, the
// record cap is reached, a page comes back empty (defensive stop against
// endless empty-but-linked chains), or a request fails.
//
// Failures never propagate. Whatever was accumulated before the failure is
// returned, the partial outcome is logged at warn, and
// fhir_fetch_partial_total is incremented.
func (c *Client) fetchPaginated(ctx context.Context, resourceType string, initialParams url.Values, maxRecords int) []map[string]any {
	params := url.Values{}
	for key, values := range initialParams {
		params[key] = values
	}
	params.Set("_count", strconv.Itoa(c.config.PageSize))

	results := make([]map[string]any, 0, c.config.PageSize)
	nextURL := c.config.BaseURL + "/" + resourceType + "?" + params.Encode()
	pages := 0

	for nextURL != "" && len(results) < maxRecords {
		bundle, err := c.getBundle(ctx, resourceType, nextURL)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("resource_type", resourceType).
				Int("fetched", len(results)).
				Int("requested", maxRecords).
				Msg("Page fetch failed - returning partial results")
			fhirFetchPartialTotal.WithLabelValues(resourceType).Inc()
			break
		}

		resources := bundle.Resources()
		if len(resources) == 0 {
			break
		}

		results = append(results, resources...)
		pages++
		c.logger.Debug().
			Str("resource_type", resourceType).
			Int("page", pages).
			Int("fetched", len(results)).
			Msg("Fetched page")

		nextURL = bundle.NextURL()
	}

	if len(results) > maxRecords {
		results = results[:maxRecords]
	}

	fhirResourcesFetched.WithLabelValues(resourceType).Add(float64(len(results)))
	c.logger.Info().
		Str("resource_type", resourceType).
		Int("records", len(results)).
		Int("requested", maxRecords).
		Int("pages", pages).
		Msg("Fetch complete")
	return results
}

// getBundle issues one page request and decodes the bundle.
func (c *Client) getBundle(ctx context.Context, resourceType, rawURL string) (*Bundle, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		fhirRequestDuration.WithLabelValues(resourceType).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &RequestError{URL: rawURL, Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		fhirRequestsTotal.WithLabelValues(resourceType, "network_error").Inc()
		return nil, &RequestError{URL: rawURL, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	fhirRequestsTotal.WithLabelValues(resourceType, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{URL: rawURL, StatusCode: resp.StatusCode, Kind: KindStatus}
	}

	var bundle Bundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, &RequestError{URL: rawURL, Kind: KindDecode, Err: err}
	}
	return &bundle, nil
}

// effectiveLimit clamps a requested limit: min(requested or default, max).
func effectiveLimit(requested, def, max int) int {
	if requested <= 0 {
		requested = def
	}
	if requested > max {
		return max
	}
	return requested
}
