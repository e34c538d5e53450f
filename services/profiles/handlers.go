package profiles

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/httputil"
	"github.com/brewmap/brewmap/services/common/service"
)

// RegisterRoutes mounts the profile endpoints.
func (s *Service) RegisterRoutes(r *mux.Router, g service.Guards) {
	r.Handle("/profiles", service.Handle(g.Optional, s.handleSearch)).Methods(http.MethodGet)
	r.Handle("/profiles/by-username/{username}", service.Handle(g.Optional, s.handleGetByUsername)).Methods(http.MethodGet)
	r.Handle("/profiles/{id}", service.Handle(g.Optional, s.handleGet)).Methods(http.MethodGet)
	r.Handle("/me/profile", service.Handle(g.User, s.handleGetMine)).Methods(http.MethodGet)
	r.Handle("/me/profile", service.Handle(g.User, s.handleUpdateMine)).Methods(http.MethodPatch)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.GetProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Service) handleGetByUsername(w http.ResponseWriter, r *http.Request) {
	p, err := s.GetByUsername(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, r, errors.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	rows, err := s.SearchProfiles(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (s *Service) handleGetMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	p, err := s.GetProfile(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Service) handleUpdateMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	p, err := s.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
