// Package clienttest runs a fake hosted platform for repository tests.
package clienttest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/brewmap/brewmap/supabase/client"
)

// Request is a request received by the fake platform.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   string
}

// Platform records requests and answers them with a handler.
type Platform struct {
	Client *client.Client

	mu       sync.Mutex
	requests []Request
}

// New starts a fake platform answering with handler and returns a client
// pointed at it. The server is closed when the test ends.
func New(t testing.TB, handler http.HandlerFunc) *Platform {
	t.Helper()
	p := &Platform{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.requests = append(p.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		p.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	c, err := client.New(client.Config{URL: server.URL, AnonKey: "anon-key", ServiceKey: "service-key"})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	p.Client = c
	return p
}

// Requests returns a copy of the recorded requests.
func (p *Platform) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}

// Last returns the most recent request.
func (p *Platform) Last() Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return Request{}
	}
	return p.requests[len(p.requests)-1]
}

// JSON answers every request with status and body.
func JSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// Count answers HEAD count requests with total.
func Count(total string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "*/"+total)
		w.WriteHeader(http.StatusOK)
	}
}

// NoRows answers like PostgREST does for a single-object request that
// matched nothing.
func NoRows() http.HandlerFunc {
	return JSON(http.StatusNotAcceptable, `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`)
}
