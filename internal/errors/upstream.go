package errors

import (
	"context"
	stderrors "errors"
	"net/http"
)

// upstreamError is implemented by platform client errors that carry the
// HTTP status and the Postgres/GoTrue error code of a failed call.
type upstreamError interface {
	error
	HTTPStatusCode() int
	ErrorCode() string
}

// postgres error codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// FromUpstream converts a hosted platform failure into a ServiceError so
// callers can tell a missing row from a permission problem from an outage.
// Errors that already are ServiceErrors pass through untouched.
func FromUpstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if se := GetServiceError(err); se != nil {
		return se
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return Unavailable(op+": request cancelled", err)
	}

	var ue upstreamError
	if !stderrors.As(err, &ue) {
		return Upstream(op+" failed", err)
	}
	if ue.ErrorCode() == pgUniqueViolation {
		return &ServiceError{Code: CodeConflict, Message: op + ": already exists", HTTPStatus: http.StatusConflict, Err: err}
	}
	if ue.ErrorCode() == pgForeignKeyViolation {
		return &ServiceError{Code: CodeValidation, Message: op + ": referenced record does not exist", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	switch ue.HTTPStatusCode() {
	case http.StatusNotFound, http.StatusNotAcceptable:
		return &ServiceError{Code: CodeNotFound, Message: op + ": not found", HTTPStatus: http.StatusNotFound, Err: err}
	case http.StatusUnauthorized:
		return &ServiceError{Code: CodeUnauthorized, Message: op + ": not authenticated", HTTPStatus: http.StatusUnauthorized, Err: err}
	case http.StatusForbidden:
		return &ServiceError{Code: CodeForbidden, Message: op + ": permission denied", HTTPStatus: http.StatusForbidden, Err: err}
	case http.StatusConflict:
		return &ServiceError{Code: CodeConflict, Message: op + ": conflict", HTTPStatus: http.StatusConflict, Err: err}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ServiceError{Code: CodeValidation, Message: op + ": rejected by platform", HTTPStatus: http.StatusBadRequest, Err: err}
	case http.StatusTooManyRequests:
		return &ServiceError{Code: CodeRateLimited, Message: op + ": platform rate limit", HTTPStatus: http.StatusTooManyRequests, Err: err}
	}
	return Upstream(op+" failed", err)
}
