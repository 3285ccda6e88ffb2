// Package testutil provides a mock ESI server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Route paths served by the mock, relative to URL().
const (
	PricesPath       = "/markets/prices/"
	TypePathFmt      = "/universe/types/%d/"
	errorLimitRemain = "100"
)

// MockESIResponse defines the behavior for a mock ESI endpoint response.
type MockESIResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockESI is a configurable mock ESI server. Unknown type ids answer 404.
type MockESI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int
	order    []string
}

// NewMockESI creates and starts a mock ESI server.
func NewMockESI() *MockESI {
	mock := &MockESI{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.counts[r.URL.Path]++
		mock.order = append(mock.order, r.URL.Path)
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		w.Header().Set("X-ESI-Error-Limit-Remain", errorLimitRemain)
		w.Header().Set("X-ESI-Error-Limit-Reset", "60")

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Type not found!"}`))
	}))

	return mock
}

// URL returns the mock server URL, usable as a client base URL.
func (m *MockESI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockESI) Close() {
	m.server.Close()
}

// Reset clears request tracking.
func (m *MockESI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]int)
	m.order = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockESI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockESI) SetResponse(path string, resp MockESIResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPricesResponse configures the /markets/prices/ response.
func (m *MockESI) SetPricesResponse(resp MockESIResponse) {
	m.SetResponse(PricesPath, resp)
}

// SetPrices serves n price records with type ids start, start+1, ...
func (m *MockESI) SetPrices(start int64, n int) {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"type_id":        start + int64(i),
			"average_price":  float64(i) + 0.5,
			"adjusted_price": float64(i) + 0.25,
		}
	}
	body, _ := json.Marshal(records)
	m.SetPricesResponse(NewHealthyResponse(string(body)))
}

// SetTypeResponse configures the /universe/types/{id}/ response.
func (m *MockESI) SetTypeResponse(typeID int64, resp MockESIResponse) {
	m.SetResponse(TypePath(typeID), resp)
}

// SetTypeName serves a successful type lookup for typeID.
func (m *MockESI) SetTypeName(typeID int64, name string) {
	body, _ := json.Marshal(map[string]any{"type_id": typeID, "name": name, "published": true})
	m.SetTypeResponse(typeID, NewHealthyResponse(string(body)))
}

// TypePath returns the lookup path for typeID.
func TypePath(typeID int64) string {
	return fmt.Sprintf(TypePathFmt, typeID)
}

// GetRequestCount returns the total number of requests served.
func (m *MockESI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// PathCount returns how many requests hit path.
func (m *MockESI) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// TypeLookupCount returns how many lookups were made for typeID.
func (m *MockESI) TypeLookupCount(typeID int64) int {
	return m.PathCount(TypePath(typeID))
}

// RequestOrder returns the request paths in arrival order.
func (m *MockESI) RequestOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// NewHealthyResponse creates a standard 200 OK JSON response.
func NewHealthyResponse(data string) MockESIResponse {
	return MockESIResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Expires":      time.Now().Add(5 * time.Minute).Format(http.TimeFormat),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockESIResponse {
	return MockESIResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"error":"The datasource tranquility is temporarily unavailable"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 response for an unknown type.
func NewNotFoundResponse() MockESIResponse {
	return MockESIResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":"Type not found!"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
