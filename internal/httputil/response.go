// Package httputil provides request and response helpers shared by the
// brewmap HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	svcerrors "github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
)

const maxJSONBodyBytes = 1 << 20

var errorLog atomic.Pointer[logging.Logger]

func init() { errorLog.Store(logging.NewDefault("http")) }

// SetLogger sets the logger WriteError reports server-side failures to.
func SetLogger(l *logging.Logger) {
	if l != nil {
		errorLog.Store(l)
	}
}

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes an error body with an explicit code.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	body := ErrorBody{Code: code, Message: message, Details: details}
	if r != nil {
		body.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, ErrorResponse{Error: body})
}

// WriteError maps err to a response. ServiceErrors keep their status and
// code; anything else is reported as an internal error without leaking
// the underlying message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := svcerrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = svcerrors.Internal("internal error", err)
	}
	if serviceErr.HTTPStatus >= http.StatusInternalServerError {
		logFailure(r, serviceErr.HTTPStatus, err)
	}
	WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}

func logFailure(r *http.Request, status int, err error) {
	fields := logrus.Fields{"status": status}
	ctx := context.Background()
	if r != nil {
		ctx = r.Context()
		fields["method"], fields["path"] = r.Method, r.URL.Path
	}
	errorLog.Load().WithContext(ctx).WithError(err).WithFields(fields).Error("request failed")
}

// BadRequest writes a 400.
func BadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusBadRequest, string(svcerrors.CodeBadRequest), message, nil)
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	WriteErrorResponse(w, nil, http.StatusUnauthorized, string(svcerrors.CodeUnauthorized), message, nil)
}

// Forbidden writes a 403.
func Forbidden(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusForbidden, string(svcerrors.CodeForbidden), message, nil)
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusNotFound, string(svcerrors.CodeNotFound), message, nil)
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, nil, http.StatusInternalServerError, string(svcerrors.CodeInternal), message, nil)
}

// DecodeJSON decodes the request body into v, writing a 400 on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		BadRequest(w, "request body required")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorResponse(w, r, http.StatusRequestEntityTooLarge, string(svcerrors.CodePayloadTooBig), "request body too large", nil)
			return false
		}
		BadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// RequireUserID returns the authenticated user, writing a 401 when the
// request carries none.
func RequireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := logging.GetUserID(r.Context())
	if userID == "" {
		Unauthorized(w, "")
		return "", false
	}
	return userID, true
}

// RequireAdminRole writes a 403 unless the caller resolved to an admin.
func RequireAdminRole(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := RequireUserID(w, r); !ok {
		return false
	}
	switch logging.GetRole(r.Context()) {
	case "admin", "super_admin":
		return true
	}
	Forbidden(w, "admin role required")
	return false
}

// ReadAllWithLimit reads at most limit bytes and reports whether the
// reader had more.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads r and fails when it holds more than limit bytes.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}

// Page is a limit/offset pair parsed from the query string.
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset. limit defaults to def and is capped at
// max; malformed values are reported as errors.
func ParsePage(r *http.Request, def, max int) (Page, error) {
	p := Page{Limit: def}
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return p, svcerrors.Validation("limit must be a positive integer")
		}
		p.Limit = n
	}
	if max > 0 && p.Limit > max {
		p.Limit = max
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, svcerrors.Validation("offset must be a non-negative integer")
		}
		p.Offset = n
	}
	return p, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, svcerrors.Validation(key + " must be a boolean")
	}
	return &v, nil
}
