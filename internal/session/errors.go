package session

import "errors"

var (
	// ErrNotSignedIn is returned when no session is stored.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrSessionExpired is returned when the session could not be refreshed.
	ErrSessionExpired = errors.New("session expired, sign in again")
)
