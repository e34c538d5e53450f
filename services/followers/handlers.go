package followers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/httputil"
	"github.com/brewmap/brewmap/services/common/service"
)

type followState struct {
	UserID    string `json:"user_id"`
	Following bool   `json:"following"`
}

// RegisterRoutes mounts the follower endpoints.
func (s *Service) RegisterRoutes(r *mux.Router, g service.Guards) {
	r.Handle("/users/{id}/follow", service.Handle(g.User, s.handleFollow)).Methods(http.MethodPost)
	r.Handle("/users/{id}/follow", service.Handle(g.User, s.handleUnfollow)).Methods(http.MethodDelete)
	r.Handle("/users/{id}/follow", service.Handle(g.User, s.handleIsFollowing)).Methods(http.MethodGet)
	r.Handle("/users/{id}/followers", service.Handle(g.Optional, s.handleFollowers)).Methods(http.MethodGet)
	r.Handle("/users/{id}/following", service.Handle(g.Optional, s.handleFollowing)).Methods(http.MethodGet)
	r.Handle("/users/{id}/stats", service.Handle(g.Optional, s.handleStats)).Methods(http.MethodGet)
}

func (s *Service) handleFollow(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	target := mux.Vars(r)["id"]
	if err := s.FollowUser(r.Context(), userID, target); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, followState{UserID: target, Following: true})
}

func (s *Service) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	target := mux.Vars(r)["id"]
	if err := s.UnfollowUser(r.Context(), userID, target); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, followState{UserID: target, Following: false})
}

func (s *Service) handleIsFollowing(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	target := mux.Vars(r)["id"]
	following, err := s.IsFollowing(r.Context(), userID, target)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, followState{UserID: target, Following: following})
}

func (s *Service) handleFollowers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.GetFollowers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (s *Service) handleFollowing(w http.ResponseWriter, r *http.Request) {
	rows, err := s.GetFollowing(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.GetFollowerStats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
