// Package servicetest holds helpers for exercising service handlers.
package servicetest

import (
	"net/http"
	"strings"

	"github.com/brewmap/brewmap/internal/httputil"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/services/common/service"
	"github.com/brewmap/brewmap/supabase/client"
)

// Headers read by Guards in place of a bearer token.
const (
	UserHeader = "X-Test-User"
	RoleHeader = "X-Test-Role"
)

func identify(r *http.Request) *http.Request {
	ctx := r.Context()
	if id := r.Header.Get(UserHeader); id != "" {
		ctx = logging.WithUserID(ctx, id)
	}
	if role := r.Header.Get(RoleHeader); role != "" {
		ctx = logging.WithRole(ctx, role)
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		ctx = client.WithAccessToken(ctx, token)
	}
	return r.WithContext(ctx)
}

// Guards authenticates callers from test headers.
func Guards() service.Guards {
	return service.Guards{
		Optional: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, identify(r))
			})
		},
		User: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r = identify(r)
				if _, ok := httputil.RequireUserID(w, r); !ok {
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		Admin: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r = identify(r)
				if !httputil.RequireAdminRole(w, r) {
					return
				}
				next.ServeHTTP(w, r)
			})
		},
	}
}

// Request returns r acting as userID, or anonymously when userID is empty.
func Request(r *http.Request, userID string) *http.Request {
	if userID != "" {
		r.Header.Set(UserHeader, userID)
	}
	return r
}

// AdminRequest returns r acting as an admin.
func AdminRequest(r *http.Request, userID string) *http.Request {
	r.Header.Set(UserHeader, userID)
	r.Header.Set(RoleHeader, "admin")
	return r
}
