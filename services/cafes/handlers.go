package cafes

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/httputil"
	"github.com/brewmap/brewmap/services/common/service"
)

// RegisterRoutes mounts the cafe endpoints.
func (s *Service) RegisterRoutes(r *mux.Router, g service.Guards) {
	r.Handle("/cafes", service.Handle(g.Optional, s.handleList)).Methods(http.MethodGet)
	// Registered before /cafes/{id} so "search" is not taken for an id.
	r.Handle("/cafes/search", service.Handle(g.Optional, s.handleSearch)).Methods(http.MethodGet)
	r.Handle("/cafes/{id}", service.Handle(g.Optional, s.handleGet)).Methods(http.MethodGet)
	r.Handle("/cafes/{id}/upvote", service.Handle(g.User, s.handleUpvote)).Methods(http.MethodPost)
	r.Handle("/cafes/{id}/downvote", service.Handle(g.User, s.handleDownvote)).Methods(http.MethodPost)
	r.Handle("/cafes/{id}/vote", service.Handle(g.User, s.handleVoteStatus)).Methods(http.MethodGet)
	r.Handle("/users/{id}/cafes", service.Handle(g.Optional, s.handleBySubmitter)).Methods(http.MethodGet)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r, defaultListLimit, maxListLimit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	f := Filter{City: r.URL.Query().Get("city"), Limit: page.Limit, Offset: page.Offset}
	if f.Wifi, err = httputil.QueryBool(r, "wifi"); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if f.PowerOutlet, err = httputil.QueryBool(r, "power_outlet"); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	rows, err := s.ListCafes(r.Context(), f)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r, defaultListLimit, maxListLimit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	rows, err := s.SearchCafes(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")), page.Limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	cafe, err := s.GetCafe(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cafe)
}

func (s *Service) handleUpvote(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	status, err := s.Upvote(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (s *Service) handleDownvote(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	status, err := s.Downvote(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (s *Service) handleVoteStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	status, err := s.GetVoteStatus(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (s *Service) handleBySubmitter(w http.ResponseWriter, r *http.Request) {
	rows, err := s.GetCafesBySubmitter(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}
