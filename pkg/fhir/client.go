package fhir

import (
	"fmt"
	"net/http"
	"time"

	"github.com/clinsight/fhir-cohort/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for FHIR client operations.
var (
	fhirRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fhir_requests_total",
		Help: "Total FHIR requests by resource type and status",
	}, []string{"resource_type", "status"})

	fhirRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fhir_request_duration_seconds",
		Help:    "FHIR page request duration in seconds by resource type",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15},
	}, []string{"resource_type"})

	fhirFetchPartialTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fhir_fetch_partial_total",
		Help: "Total fetches cut short by an upstream failure, by resource type",
	}, []string{"resource_type"})

	fhirResourcesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fhir_resources_fetched_total",
		Help: "Total resources returned to callers by resource type",
	}, []string{"resource_type"})
)

// FHIR resource type path segments.
const (
	ResourcePatient     = "Patient"
	ResourceObservation = "Observation"
	ResourceCondition   = "Condition"
)

// Cache key names per resource type.
const (
	keyPatients     = "patients"
	keyObservations = "observations"
	keyConditions   = "conditions"
)

// Limits holds the per-type default and hard-maximum record counts. The
// effective limit of every fetch is min(requested or default, max).
type Limits struct {
	DefaultPatients     int
	MaxPatients         int
	DefaultObservations int
	MaxObservations     int
	DefaultConditions   int
	MaxConditions       int
}

// DefaultLimits returns the standard fetch limits.
func DefaultLimits() Limits {
	return Limits{
		DefaultPatients:     500,
		MaxPatients:         1000,
		DefaultObservations: 1000,
		MaxObservations:     2000,
		DefaultConditions:   1000,
		MaxConditions:       2000,
	}
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the FHIR server, e.g. "https://hapi.fhir.org/baseR4".
	BaseURL string

	// Cache fronting the server. Required.
	Cache cache.Store

	// PageSize is the _count parameter sent with the first page request.
	PageSize int

	// RequestTimeout bounds each page request.
	RequestTimeout time.Duration

	// SearchTimeout bounds one-shot Search calls.
	SearchTimeout time.Duration

	// CacheTTL is how long fetched lists stay cached.
	CacheTTL time.Duration

	// Limits are the per-type fetch limits.
	Limits Limits

	// HTTPClient overrides the transport (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration against the given
// server and cache.
func DefaultConfig(baseURL string, store cache.Store) Config {
	return Config{
		BaseURL:        baseURL,
		Cache:          store,
		PageSize:       100,
		RequestTimeout: 15 * time.Second,
		SearchTimeout:  10 * time.Second,
		CacheTTL:       cache.DefaultTTL,
		Limits:         DefaultLimits(),
	}
}

// Client is the FHIR acquisition client.
type Client struct {
	httpClient *http.Client
	cache      cache.Store
	config     Config
	logger     zerolog.Logger
}

// New creates a new FHIR client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache store is required")
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Per-page deadlines come from request contexts, not a global
		// client timeout.
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		cache:      cfg.Cache,
		config:     cfg,
		logger:     log.With().Str("component", "fhir-client").Logger(),
	}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
