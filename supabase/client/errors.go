package client

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// APIError is a failed PostgREST, GoTrue or Storage call.
type APIError struct {
	StatusCode int
	// Code is the Postgres SQLSTATE (PostgREST) or GoTrue error code.
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase error %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("supabase error %d: %s", e.StatusCode, msg)
}

// HTTPStatusCode returns the HTTP status of the failed call.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// ErrorCode returns the platform error code, if any.
func (e *APIError) ErrorCode() string { return e.Code }

// newAPIError pulls the message out of whichever error shape the platform
// component used: PostgREST {message,code,details,hint}, GoTrue
// {msg,error_code} or {error,error_description}, Storage {error,message}.
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	if !gjson.ValidBytes(body) {
		e.Message = strings.TrimSpace(truncate(string(body), 512))
		return e
	}

	parsed := gjson.ParseBytes(body)
	for _, path := range []string{"message", "msg", "error_description", "error"} {
		if v := parsed.Get(path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			e.Message = v.String()
			break
		}
	}
	for _, path := range []string{"code", "error_code"} {
		if v := parsed.Get(path); v.Exists() && v.String() != "" {
			e.Code = v.String()
			break
		}
	}
	e.Details = parsed.Get("details").String()
	e.Hint = parsed.Get("hint").String()
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
