package reviews

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/httputil"
	"github.com/brewmap/brewmap/services/common/service"
)

type reviewRequest struct {
	Rating  *bool  `json:"rating"`
	Comment string `json:"comment"`
}

// RegisterRoutes mounts the review endpoints.
func (s *Service) RegisterRoutes(r *mux.Router, g service.Guards) {
	r.Handle("/cafes/{id}/reviews", service.Handle(g.Optional, s.handleCafeReviews)).Methods(http.MethodGet)
	r.Handle("/cafes/{id}/reviews", service.Handle(g.User, s.handleAddReview)).Methods(http.MethodPost)
	r.Handle("/cafes/{id}/reviews/summary", service.Handle(g.Optional, s.handleSummary)).Methods(http.MethodGet)
	r.Handle("/cafes/{id}/reviews/mine", service.Handle(g.User, s.handleMine)).Methods(http.MethodGet)
	r.Handle("/reviews/{id}", service.Handle(g.User, s.handleDelete)).Methods(http.MethodDelete)
	r.Handle("/users/{id}/reviews", service.Handle(g.Optional, s.handleUserReviews)).Methods(http.MethodGet)
}

func (s *Service) handleCafeReviews(w http.ResponseWriter, r *http.Request) {
	rows, err := s.GetCafeReviews(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (s *Service) handleAddReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var in reviewRequest
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	if in.Rating == nil {
		httputil.WriteError(w, r, errors.Validation("rating is required"))
		return
	}
	rev, created, err := s.AddReview(r.Context(), userID, mux.Vars(r)["id"], *in.Rating, in.Comment)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, rev)
}

func (s *Service) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.Summary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

func (s *Service) handleMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	rev, err := s.GetUserReviewForCafe(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if rev == nil {
		httputil.WriteError(w, r, errors.NotFound("review", ""))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rev)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if err := s.DeleteReview(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleUserReviews(w http.ResponseWriter, r *http.Request) {
	rows, err := s.GetUserReviews(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}
