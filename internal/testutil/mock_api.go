// Package testutil provides testing utilities for the quality export
// pipeline.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// MockQualityAPI is a configurable mock quality API server. List endpoints
// are scripted as ordered page bodies; any page past the script returns an
// empty entities list, which terminates pagination.
type MockQualityAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	pages    map[string][]string
	handlers map[string]http.HandlerFunc
	requests map[string]int

	// Tracking
	RequestCount   int
	LastAuthHeader string
}

// NewMockQualityAPI creates a new mock server.
func NewMockQualityAPI() *MockQualityAPI {
	mock := &MockQualityAPI{
		pages:    make(map[string][]string),
		handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.requests[r.URL.Path]++
		mock.LastAuthHeader = r.Header.Get("Authorization")
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, hasHandler := mock.handlers[r.URL.Path]
		bodies, hasPages := mock.pages[r.URL.Path]
		mock.mu.RUnlock()

		if hasHandler {
			handler(w, r)
			return
		}

		if hasPages {
			pageNumber, err := strconv.Atoi(r.URL.Query().Get("pageNumber"))
			if err != nil || pageNumber < 1 {
				http.Error(w, "bad pageNumber", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if pageNumber > len(bodies) {
				fmt.Fprint(w, `{"entities": []}`)
				return
			}
			fmt.Fprint(w, bodies[pageNumber-1])
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// SetPages scripts the ordered page bodies for a list endpoint.
func (m *MockQualityAPI) SetPages(path string, bodies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[path] = bodies
}

// Handle installs a custom handler for a path (detail endpoints, error
// injection).
func (m *MockQualityAPI) Handle(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// Requests returns how many requests hit a path.
func (m *MockQualityAPI) Requests(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// URL returns the mock server URL.
func (m *MockQualityAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockQualityAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockQualityAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.requests = make(map[string]int)
	m.LastAuthHeader = ""
}
