// Package testutil provides testing utilities for the FHIR cohort client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
)

// MockFHIR is a configurable mock FHIR server for testing. It serves
// paginated bundles with "next" relation links the way a real server does.
type MockFHIR struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount int
	LastQuery    url.Values
}

// NewMockFHIR creates a new mock FHIR server.
func NewMockFHIR() *MockFHIR {
	mock := &MockFHIR{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = r.URL.Query()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		// Default: empty bundle.
		WriteBundle(w, nil, "")
	}))

	return mock
}

// URL returns the mock server's base URL.
func (m *MockFHIR) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockFHIR) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockFHIR) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
}

// Requests returns the number of requests received.
func (m *MockFHIR) Requests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// SetHandler sets a custom handler for a resource type path.
func (m *MockFHIR) SetHandler(resourceType string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers["/"+resourceType] = handler
}

// SetBundlePages serves the given pages for a resource type, linking each
// page to the next. The continuation link carries a "page" query parameter,
// which exercises the client's link-verbatim behavior.
func (m *MockFHIR) SetBundlePages(resourceType string, pages [][]map[string]any) {
	m.SetBundlePagesWithFailure(resourceType, pages, -1)
}

// SetBundlePagesWithFailure is SetBundlePages with the page at failAt
// (0-based) answering 500 instead of a bundle.
func (m *MockFHIR) SetBundlePagesWithFailure(resourceType string, pages [][]map[string]any, failAt int) {
	m.SetHandler(resourceType, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == failAt {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if page >= len(pages) {
			WriteBundle(w, nil, "")
			return
		}

		next := ""
		if page+1 < len(pages) {
			next = fmt.Sprintf("%s/%s?page=%d", m.URL(), resourceType, page+1)
		}
		WriteBundle(w, pages[page], next)
	})
}

// SetStatus makes a resource type path answer with a fixed status code.
func (m *MockFHIR) SetStatus(resourceType string, status int) {
	m.SetHandler(resourceType, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(status), status)
	})
}

// WriteBundle writes a searchset bundle holding the given resources, with an
// optional next link.
func WriteBundle(w http.ResponseWriter, resources []map[string]any, next string) {
	entries := make([]map[string]any, 0, len(resources))
	for _, res := range resources {
		entries = append(entries, map[string]any{"resource": res})
	}

	links := []map[string]any{}
	if next != "" {
		links = append(links, map[string]any{"relation": "next", "url": next})
	}

	bundle := map[string]any{
		"resourceType": "Bundle",
		"type":         "searchset",
		"total":        len(resources),
		"link":         links,
		"entry":        entries,
	}

	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(bundle)
}

// Patient builds a minimal patient resource.
func Patient(id, gender, birthDate string) map[string]any {
	res := map[string]any{
		"resourceType": "Patient",
		"id":           id,
	}
	if gender != "" {
		res["gender"] = gender
	}
	if birthDate != "" {
		res["birthDate"] = birthDate
	}
	return res
}

// Observation builds a minimal observation resource with a coded value.
func Observation(id, patientID, category, code, display string, value float64, unit string) map[string]any {
	return map[string]any{
		"resourceType": "Observation",
		"id":           id,
		"subject":      map[string]any{"reference": "Patient/" + patientID},
		"category": []any{
			map[string]any{
				"coding": []any{map[string]any{"display": category}},
			},
		},
		"code": map[string]any{
			"coding": []any{map[string]any{"code": code, "display": display}},
		},
		"valueQuantity":     map[string]any{"value": value, "unit": unit},
		"effectiveDateTime": "2024-01-15T10:30:00Z",
	}
}

// Condition builds a minimal condition resource.
func Condition(id, patientID, code, display, severity string) map[string]any {
	res := map[string]any{
		"resourceType":  "Condition",
		"id":            id,
		"subject":       map[string]any{"reference": "Patient/" + patientID},
		"onsetDateTime": "2023-11-02T00:00:00Z",
		"code": map[string]any{
			"coding": []any{map[string]any{"code": code, "display": display}},
		},
	}
	if severity != "" {
		res["severity"] = map[string]any{
			"coding": []any{map[string]any{"display": severity}},
		}
	}
	return res
}

// Patients builds n patient resources with ids "p0"..."p{n-1}".
func Patients(n int) []map[string]any {
	patients := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		patients = append(patients, Patient(fmt.Sprintf("p%d", i), "female", "1990-04-01"))
	}
	return patients
}
