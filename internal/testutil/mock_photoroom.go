// Package testutil provides testing utilities for the PhotoRoom client.
package testutil

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// API paths served by MockPhotoRoom.
const (
	PathSegment = "/v1/segment"
	PathEdit    = "/v2/edit"
	PathAccount = "/v2/account"
)

// MockResponse defines the behavior for a mock PhotoRoom endpoint response.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Delay      time.Duration
}

// Request is what the mock recorded about one incoming request.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Query  map[string][]string

	// Fields holds multipart form values.
	Fields map[string]string

	// Files maps multipart file field names to their uploaded bytes.
	Files map[string][]byte
}

// MockPhotoRoom is a configurable mock PhotoRoom server for testing.
// Each path can be given a fixed response or a sequence of responses;
// unconfigured paths get a successful default.
type MockPhotoRoom struct {
	server    *httptest.Server
	mu        sync.RWMutex
	handlers  map[string]http.HandlerFunc
	sequences map[string][]MockResponse

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	requests          []Request
}

// NewMockPhotoRoom creates a new mock PhotoRoom server.
func NewMockPhotoRoom() *MockPhotoRoom {
	mock := &MockPhotoRoom{
		handlers:  make(map[string]http.HandlerFunc),
		sequences: make(map[string][]MockResponse),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorded := record(r)

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.requests = append(mock.requests, recorded)

		var next *MockResponse
		if seq := mock.sequences[r.URL.Path]; len(seq) > 0 {
			next = &seq[0]
			if len(seq) > 1 {
				mock.sequences[r.URL.Path] = seq[1:]
			}
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if next != nil {
			write(w, *next)
			return
		}
		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockPhotoRoom) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPhotoRoom) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPhotoRoom) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.requests = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockPhotoRoom) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockPhotoRoom) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		write(w, resp)
	})
}

// SetSequence makes path answer with responses in order.
// The last response repeats once the sequence is drained.
func (m *MockPhotoRoom) SetSequence(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[path] = append([]MockResponse(nil), responses...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPhotoRoom) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Requests returns a copy of all recorded requests.
func (m *MockPhotoRoom) Requests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Request(nil), m.requests...)
}

// LastRequest returns the most recent request, if any.
func (m *MockPhotoRoom) LastRequest() (Request, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return Request{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// defaultHandler answers like the real API: 403 without a key, a PNG for
// image endpoints and an account document for /v2/account.
func (m *MockPhotoRoom) defaultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Api-Key") == "" {
		write(w, NewErrorResponse(http.StatusForbidden, "Missing API key"))
		return
	}

	switch r.URL.Path {
	case PathSegment, PathEdit:
		write(w, NewImageResponse(PNG(4, 4), map[string]string{
			"pr-ai-background-seed": "42",
		}))
	case PathAccount:
		write(w, NewAccountResponse("Plus", 95, 100))
	default:
		write(w, NewDetailErrorResponse(http.StatusNotFound, "Not Found"))
	}
}

func write(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}

func record(r *http.Request) Request {
	req := Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Query:  r.URL.Query(),
		Fields: make(map[string]string),
		Files:  make(map[string][]byte),
	}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return req
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return req
	}
	for name, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			req.Fields[name] = values[0]
		}
	}
	for name, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			continue
		}
		data, _ := io.ReadAll(f)
		f.Close()
		req.Files[name] = data
	}
	return req
}

// PNG returns an encoded w×h PNG image.
func PNG(w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 200, G: 10, B: 10, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// NewImageResponse creates a 200 OK image response carrying extra headers.
func NewImageResponse(data []byte, headers map[string]string) MockResponse {
	h := map[string]string{"Content-Type": "image/png"}
	for k, v := range headers {
		h[k] = v
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    h,
	}
}

// NewAccountResponse creates a /v2/account response.
func NewAccountResponse(plan string, available, subscription int) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"plan": plan,
		"images": map[string]int{
			"available":    available,
			"subscription": subscription,
		},
	})
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewErrorResponse creates an error in the /v2 format: {"error": {"message": ...}}.
func NewErrorResponse(status int, message string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]string{"message": message},
	})
	return MockResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewDetailErrorResponse creates an error in the /v1 format: {"detail": ...}.
func NewDetailErrorResponse(status int, detail string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"detail":      detail,
		"status_code": status,
		"type":        http.StatusText(status),
	})
	return MockResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return NewErrorResponse(http.StatusInternalServerError, "Internal server error")
}

// NewUnavailableResponse creates a 503 Service Unavailable response.
func NewUnavailableResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       []byte("upstream unavailable"),
		Headers:    map[string]string{"Content-Type": "text/plain"},
	}
}
