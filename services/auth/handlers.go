package auth

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/httputil"
	"github.com/brewmap/brewmap/services/common/service"
	"github.com/brewmap/brewmap/supabase/client"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RegisterRoutes mounts the auth endpoints.
func (s *Service) RegisterRoutes(r *mux.Router, g service.Guards) {
	r.HandleFunc("/auth/signup", s.handleSignUp).Methods(http.MethodPost)
	r.HandleFunc("/auth/signin", s.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.Handle("/auth/signout", service.Handle(g.User, s.handleSignOut)).Methods(http.MethodPost)
	r.Handle("/auth/me", service.Handle(g.User, s.handleMe)).Methods(http.MethodGet)
}

func (s *Service) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var in SignUpInput
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	sess, err := s.SignUp(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sess)
}

func (s *Service) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var in signInRequest
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	sess, err := s.SignIn(r.Context(), in.Email, in.Password)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	sess, err := s.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}

func (s *Service) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.SignOut(r.Context(), client.AccessToken(r.Context())); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleMe(w http.ResponseWriter, r *http.Request) {
	me, err := s.CurrentUser(r.Context(), client.AccessToken(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, me)
}
