// Package testutil provides a configurable mock of dataspace services
// (connector management API, discovery finder, DTR, identity provider) for
// package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request received by the mock server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// MockServer is a configurable mock HTTP server. Handlers are registered per
// "METHOD /path" or per "/path" for any method.
type MockServer struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewMockServer creates and starts a mock server.
func NewMockServer() *MockServer {
	mock := &MockServer{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		handler, exists := mock.handlers[r.Method+" "+r.URL.Path]
		if !exists {
			handler, exists = mock.handlers[r.URL.Path]
		}
		mock.mu.Unlock()

		r.Body = io.NopCloser(bytes.NewReader(body))
		if exists {
			handler(w, r)
			return
		}

		// Default handler
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "no mock registered for ` + r.Method + " " + r.URL.Path + `"}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetHandler sets a custom handler. route is "/path" or "METHOD /path".
func (m *MockServer) SetHandler(route string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[route] = handler
}

// SetResponse configures a fixed response for route.
func (m *MockServer) SetResponse(route string, resp MockResponse) {
	m.SetHandler(route, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
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

// SetJSON configures route to answer with status and v encoded as JSON.
func (m *MockServer) SetJSON(route string, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	m.SetResponse(route, NewJSONResponse(status, string(data)))
}

// SetIdentityProvider serves a Keycloak-like realm that issues token for
// the client credentials grant.
func (m *MockServer) SetIdentityProvider(realm, token string) {
	m.SetJSON("GET /auth/realms/"+realm+"/.well-known/openid-configuration", http.StatusOK, map[string]string{"issuer": realm})
	m.SetJSON("POST /auth/realms/"+realm+"/protocol/openid-connect/token", http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   300,
	})
}

// Requests returns a copy of all recorded requests.
func (m *MockServer) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestsTo returns the recorded requests for method and path.
func (m *MockServer) RequestsTo(method, path string) []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RecordedRequest
	for _, r := range m.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// NewJSONResponse creates a response with a JSON content type.
func NewJSONResponse(status int, body string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return NewJSONResponse(http.StatusTooManyRequests, `{"error": "Rate limit exceeded"}`)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewJSONResponse(http.StatusInternalServerError, `{"error": "Internal server error"}`)
}
