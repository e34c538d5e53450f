package submissions

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/httputil"
	"github.com/brewmap/brewmap/services/common/service"
)

const (
	// Form overhead on top of the largest accepted set of images.
	maxFormOverhead = 1 << 20
	maxMemory       = 8 << 20
)

type approveRequest struct {
	Notes string `json:"notes"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RegisterRoutes mounts the submission endpoints.
func (s *Service) RegisterRoutes(r *mux.Router, g service.Guards) {
	r.Handle("/submissions", service.Handle(g.User, s.handleSubmit)).Methods(http.MethodPost)
	r.Handle("/submissions/{id}", service.Handle(g.User, s.handleWithdraw)).Methods(http.MethodDelete)
	r.Handle("/me/submissions", service.Handle(g.User, s.handleMine)).Methods(http.MethodGet)

	r.Handle("/admin/submissions", service.Handle(g.Admin, s.handleList)).Methods(http.MethodGet)
	r.Handle("/admin/submissions/stats", service.Handle(g.Admin, s.handleStats)).Methods(http.MethodGet)
	r.Handle("/admin/submissions/{id}", service.Handle(g.Admin, s.handleGet)).Methods(http.MethodGet)
	r.Handle("/admin/submissions/{id}/approve", service.Handle(g.Admin, s.handleApprove)).Methods(http.MethodPost)
	r.Handle("/admin/submissions/{id}/reject", service.Handle(g.Admin, s.handleReject)).Methods(http.MethodPost)
}

func formFloat(r *http.Request, key string) (float64, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Validation(key + " must be a number")
	}
	return v, nil
}

func formBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Validation(key + " must be a boolean")
	}
	return v, nil
}

// parseInput reads a multipart submission form.
func parseInput(w http.ResponseWriter, r *http.Request) (*Input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImages*MaxImageBytes+maxFormOverhead)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.PayloadTooLarge("submission too large")
		}
		return nil, errors.BadRequest("expected a multipart form")
	}

	in := &Input{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Address:     r.FormValue("address"),
		City:        r.FormValue("city"),
		Country:     r.FormValue("country"),
	}
	var err error
	if in.Lat, err = formFloat(r, "lat"); err != nil {
		return nil, err
	}
	if in.Lng, err = formFloat(r, "lng"); err != nil {
		return nil, err
	}
	if in.Wifi, err = formBool(r, "wifi"); err != nil {
		return nil, err
	}
	if in.PowerOutletAvailable, err = formBool(r, "power_outlet"); err != nil {
		return nil, err
	}

	for _, fh := range r.MultipartForm.File["images"] {
		f, err := fh.Open()
		if err != nil {
			return nil, errors.BadRequest("unreadable image")
		}
		// One byte over the limit is enough for validation to reject it.
		data, _, err := httputil.ReadAllWithLimit(f, MaxImageBytes+1)
		f.Close()
		if err != nil {
			return nil, errors.BadRequest("unreadable image")
		}
		in.Images = append(in.Images, Image{Filename: fh.Filename, Data: data})
	}
	return in, nil
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	in, err := parseInput(w, r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	sub, err := s.SubmitCafe(r.Context(), userID, in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sub)
}

func (s *Service) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if err := s.WithdrawSubmission(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	rows, err := s.GetUserSubmissions(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	status := domain.SubmissionStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	rows, err := s.ListSubmissions(r.Context(), status)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	sub, err := s.GetSubmission(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

func (s *Service) handleApprove(w http.ResponseWriter, r *http.Request) {
	adminID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var in approveRequest
	if r.ContentLength != 0 && !httputil.DecodeJSON(w, r, &in) {
		return
	}
	res, err := s.ApproveSubmission(r.Context(), adminID, mux.Vars(r)["id"], in.Notes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (s *Service) handleReject(w http.ResponseWriter, r *http.Request) {
	adminID, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var in rejectRequest
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	sub, err := s.RejectSubmission(r.Context(), adminID, mux.Vars(r)["id"], in.Reason)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}
