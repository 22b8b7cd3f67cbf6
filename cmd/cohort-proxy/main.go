package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinsight/fhir-cohort/pkg/aggregate"
	"github.com/clinsight/fhir-cohort/pkg/cache"
	"github.com/clinsight/fhir-cohort/pkg/dataset"
	"github.com/clinsight/fhir-cohort/pkg/fhir"
	"github.com/clinsight/fhir-cohort/pkg/logging"
)

func main() {
	// Configuration from environment
	baseURL := getEnv("FHIR_BASE_URL", "https://hapi.fhir.org/baseR4")
	port := getEnv("PORT", "8080")
	redisURL := getEnv("REDIS_URL", "")
	ttlMinutes := getEnvInt("CACHE_TTL_MINUTES", 10)

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	}).With().Str("component", "cohort-proxy").Logger()

	// Cache backend: Redis when configured, in-memory otherwise.
	var (
		store       cache.Store
		redisClient *redis.Client
	)
	if redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("failed to connect to Redis")
		}
		store = cache.NewRedisStore(redisClient)
		logger.Info().Str("redis_url", redisURL).Msg("using Redis cache")
	} else {
		memStore := cache.NewMemoryStore()
		store = memStore
		go sweepLoop(memStore, logger)
		logger.Info().Msg("using in-memory cache")
	}

	cfg := fhir.DefaultConfig(baseURL, store)
	cfg.CacheTTL = time.Duration(ttlMinutes) * time.Minute
	client, err := fhir.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create FHIR client")
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/ready", readyHandler(redisClient))
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/api/summary", summaryHandler(client))
	http.HandleFunc("/api/dataset", datasetHandler(client))

	addr := ":" + port
	logger.Info().Str("addr", addr).Str("fhir_base_url", baseURL).Msg("starting cohort proxy")

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

// sweepLoop evicts expired in-memory cache entries on a fixed interval.
func sweepLoop(store *cache.MemoryStore, logger zerolog.Logger) {
	ticker := time.NewTicker(cache.SweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		if err := store.Sweep(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("cache sweep failed")
		}
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// readyHandler reports readiness. With a Redis cache the backend must be
// reachable; the in-memory cache is always ready.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// summaryHandler fetches the cohort and returns its aggregate summary.
func summaryHandler(client *fhir.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := client.FetchAll(r.Context(), limitsFromQuery(r))
		writeJSON(w, aggregate.Aggregate(data))
	}
}

// datasetHandler fetches the cohort and returns the normalized dataset.
func datasetHandler(client *fhir.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := client.FetchAll(r.Context(), limitsFromQuery(r))
		writeJSON(w, dataset.Build(data))
	}
}

// limitsFromQuery reads per-type record limits from the query string.
// "limit" applies to patients; zero values select the configured defaults.
func limitsFromQuery(r *http.Request) fhir.FetchLimits {
	return fhir.FetchLimits{
		Patients:     queryInt(r, "limit"),
		Observations: queryInt(r, "observationLimit"),
		Conditions:   queryInt(r, "conditionLimit"),
	}
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
