package service

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/httputil"
)

// HealthResponse is the standard response for the /health endpoint.
type HealthResponse struct {
	Status    string         `json:"status"`
	Service   string         `json:"service"`
	Version   string         `json:"version"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// InfoResponse is the standard response for the /info endpoint.
type InfoResponse struct {
	Status     string         `json:"status"`
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	Timestamp  string         `json:"timestamp"`
	Statistics map[string]any `json:"statistics,omitempty"`
}

// HealthHandler answers 200 when the platform is reachable and 503
// otherwise.
func HealthHandler(s *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := s.HealthStatus(r.Context())
		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, HealthResponse{
			Status:    status,
			Service:   s.Name(),
			Version:   s.Version(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Details:   s.HealthDetails(),
		})
	}
}

// InfoHandler includes statistics from the registered stats function.
func InfoHandler(s *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := InfoResponse{
			Status:    "active",
			Service:   s.Name(),
			Version:   s.Version(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if s.statsFn != nil {
			resp.Statistics = s.statsFn()
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// RegisterStandardRoutes registers the /health and /info endpoints.
func (b *BaseService) RegisterStandardRoutes() {
	b.router.HandleFunc("/health", HealthHandler(b)).Methods(http.MethodGet)
	b.router.HandleFunc("/info", InfoHandler(b)).Methods(http.MethodGet)
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Guards are the access levels a route can require. Optional lets
// anonymous callers through, User requires a signed-in caller and Admin
// additionally requires the admin role.
type Guards struct {
	Optional Middleware
	User     Middleware
	Admin    Middleware
}

// RouteRegistrar is implemented by domain services exposing HTTP routes.
type RouteRegistrar interface {
	RegisterRoutes(r *mux.Router, g Guards)
}

// Mount registers each service under prefix on the root router and
// returns the subrouter.
func (b *BaseService) Mount(prefix string, g Guards, services ...RouteRegistrar) *mux.Router {
	api := b.router.PathPrefix(prefix).Subrouter()
	for _, s := range services {
		s.RegisterRoutes(api, g)
	}
	return api
}

// Handle builds a route handler wrapped in guard.
func Handle(guard Middleware, fn http.HandlerFunc) http.Handler {
	if guard == nil {
		return fn
	}
	return guard(fn)
}
