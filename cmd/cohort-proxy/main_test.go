package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinsight/fhir-cohort/internal/testutil"
	"github.com/clinsight/fhir-cohort/pkg/aggregate"
	"github.com/clinsight/fhir-cohort/pkg/cache"
	"github.com/clinsight/fhir-cohort/pkg/dataset"
	"github.com/clinsight/fhir-cohort/pkg/fhir"
)

func newTestClient(t *testing.T, mock *testutil.MockFHIR) *fhir.Client {
	t.Helper()
	client, err := fhir.New(fhir.DefaultConfig(mock.URL(), cache.NewMemoryStore()))
	if err != nil {
		t.Fatalf("Failed to create FHIR client: %v", err)
	}
	return client
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("memory_cache_always_ready", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()

		readyHandler(nil)(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Result().StatusCode)
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		// Nothing listens on this port.
		redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
		defer redisClient.Close()

		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()

		readyHandler(redisClient)(w, req)

		if w.Result().StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Result().StatusCode)
		}
	})
}

func TestSummaryEndpoint(t *testing.T) {
	mock := testutil.NewMockFHIR()
	defer mock.Close()

	mock.SetBundlePages("Patient", [][]map[string]any{{
		testutil.Patient("p1", "female", "1990-04-01"),
		testutil.Patient("p2", "male", "1985-09-12"),
	}})
	mock.SetBundlePages("Observation", [][]map[string]any{{
		testutil.Observation("o1", "p1", "Vital Signs", "8867-4", "Heart rate", 72, "/min"),
	}})
	mock.SetBundlePages("Condition", [][]map[string]any{{
		testutil.Condition("c1", "p2", "44054006", "Diabetes mellitus type 2", "Moderate"),
	}})

	client := newTestClient(t, mock)

	req := httptest.NewRequest("GET", "/api/summary", nil)
	w := httptest.NewRecorder()
	summaryHandler(client)(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Expected JSON content type, got %q", got)
	}

	var summary aggregate.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}
	if summary.Patients == nil || summary.Patients.TotalCount != 2 {
		t.Error("Expected 2 patients in summary")
	}
	if summary.Observations == nil || summary.Observations.TotalCount != 1 {
		t.Error("Expected 1 observation in summary")
	}
	if summary.Conditions == nil || summary.Conditions.TotalCount != 1 {
		t.Error("Expected 1 condition in summary")
	}
}

func TestDatasetEndpoint(t *testing.T) {
	mock := testutil.NewMockFHIR()
	defer mock.Close()

	mock.SetBundlePages("Patient", [][]map[string]any{{
		testutil.Patient("p1", "female", "1990-04-01"),
	}})

	client := newTestClient(t, mock)

	req := httptest.NewRequest("GET", "/api/dataset", nil)
	w := httptest.NewRecorder()
	datasetHandler(client)(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var ds dataset.SourceDataset
	if err := json.NewDecoder(resp.Body).Decode(&ds); err != nil {
		t.Fatalf("Failed to decode dataset: %v", err)
	}
	if len(ds.Patients) != 1 || ds.Patients[0].ID != "p1" {
		t.Errorf("Expected patient p1 in dataset, got %+v", ds.Patients)
	}
	if ds.Metadata.DataSource != dataset.DefaultDataSource {
		t.Errorf("Expected default data source, got %q", ds.Metadata.DataSource)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockFHIR()
	defer mock.Close()

	// Creating a client and fetching once ensures the metrics are registered
	// and populated.
	client := newTestClient(t, mock)
	client.GetPatients(context.Background(), 10)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	if !strings.Contains(bodyStr, "fhir_cache_entries") {
		t.Error("Expected metrics output to contain fhir_cache_entries")
	}
	if !strings.Contains(bodyStr, "fhir_requests_total") {
		t.Error("Expected metrics output to contain fhir_requests_total")
	}
}

func TestLimitsFromQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  fhir.FetchLimits
	}{
		{"empty", "", fhir.FetchLimits{}},
		{"patients_only", "limit=25", fhir.FetchLimits{Patients: 25}},
		{
			"all_types",
			"limit=10&observationLimit=20&conditionLimit=30",
			fhir.FetchLimits{Patients: 10, Observations: 20, Conditions: 30},
		},
		{"negative_ignored", "limit=-5", fhir.FetchLimits{}},
		{"garbage_ignored", "limit=abc", fhir.FetchLimits{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/summary?"+tt.query, nil)
			if got := limitsFromQuery(req); got != tt.want {
				t.Errorf("limitsFromQuery() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
