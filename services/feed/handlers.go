package feed

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/httputil"
	"github.com/brewmap/brewmap/services/common/service"
)

// RegisterRoutes mounts the feed endpoints.
func (s *Service) RegisterRoutes(r *mux.Router, g service.Guards) {
	r.Handle("/feed", service.Handle(g.User, s.handleFeed)).Methods(http.MethodGet)
	r.Handle("/users/{id}/activity", service.Handle(g.Optional, s.handleActivity)).Methods(http.MethodGet)
}

func (s *Service) handleFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	page, err := httputil.ParsePage(r, s.defaultLimit, s.maxLimit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	feed, err := s.GetFriendsFeed(r.Context(), userID, page.Limit, r.URL.Query().Get("cursor"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, feed)
}

func (s *Service) handleActivity(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r, s.defaultLimit, s.maxLimit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	feed, err := s.GetUserActivity(r.Context(), mux.Vars(r)["id"], page.Limit, r.URL.Query().Get("cursor"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, feed)
}
