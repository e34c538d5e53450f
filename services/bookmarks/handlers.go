package bookmarks

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/httputil"
	"github.com/brewmap/brewmap/services/common/service"
)

type bookmarkState struct {
	CafeID     string `json:"cafe_id"`
	Bookmarked bool   `json:"bookmarked"`
}

// RegisterRoutes mounts the bookmark endpoints.
func (s *Service) RegisterRoutes(r *mux.Router, g service.Guards) {
	r.Handle("/cafes/{id}/bookmark", service.Handle(g.User, s.handleAdd)).Methods(http.MethodPost)
	r.Handle("/cafes/{id}/bookmark", service.Handle(g.User, s.handleRemove)).Methods(http.MethodDelete)
	r.Handle("/cafes/{id}/bookmark", service.Handle(g.User, s.handleStatus)).Methods(http.MethodGet)
	r.Handle("/cafes/{id}/bookmark/toggle", service.Handle(g.User, s.handleToggle)).Methods(http.MethodPost)
	r.Handle("/me/bookmarks", service.Handle(g.User, s.handleList)).Methods(http.MethodGet)
}

func (s *Service) handleAdd(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	cafeID := mux.Vars(r)["id"]
	if err := s.AddBookmark(r.Context(), userID, cafeID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bookmarkState{CafeID: cafeID, Bookmarked: true})
}

func (s *Service) handleRemove(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	cafeID := mux.Vars(r)["id"]
	if err := s.RemoveBookmark(r.Context(), userID, cafeID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bookmarkState{CafeID: cafeID})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	cafeID := mux.Vars(r)["id"]
	on, err := s.IsBookmarked(r.Context(), userID, cafeID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bookmarkState{CafeID: cafeID, Bookmarked: on})
}

func (s *Service) handleToggle(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	cafeID := mux.Vars(r)["id"]
	on, err := s.ToggleBookmark(r.Context(), userID, cafeID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bookmarkState{CafeID: cafeID, Bookmarked: on})
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	rows, err := s.GetUserBookmarks(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}
