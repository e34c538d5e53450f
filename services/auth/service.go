// Package auth signs users up and in against the hosted auth server and
// keeps each account's profile row in step with it.
package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/middleware"
	"github.com/brewmap/brewmap/supabase/client"
)

const (
	minPasswordLength = 6
	adminRole         = "admin"
)

// Provider is the hosted auth API. *client.AuthClient satisfies it.
type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*client.AuthResponse, error)
	SignIn(ctx context.Context, email, password string) (*client.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*client.AuthResponse, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*client.User, error)
}

// Profiles is the part of the profile service auth relies on.
type Profiles interface {
	UsernameAvailable(ctx context.Context, username, ownerID string) (string, bool, error)
	CreateProfile(ctx context.Context, userID, username string) (*domain.Profile, error)
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
}

var _ Provider = (*client.AuthClient)(nil)

// Config configures the auth service.
type Config struct {
	Provider Provider
	Profiles Profiles
	// AdminUserIDs are always treated as admins.
	AdminUserIDs map[string]struct{}
	// ServiceRole enables creating profiles for accounts that still await
	// email confirmation.
	ServiceRole bool
	Logger      *logging.Logger
}

// Service implements sign-up, sign-in and session lookups.
type Service struct {
	provider    Provider
	profiles    Profiles
	admins      map[string]struct{}
	serviceRole bool
	log         *logging.Logger
	now         func() time.Time
}

// New creates an auth service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("auth")
	}
	admins := cfg.AdminUserIDs
	if admins == nil {
		admins = map[string]struct{}{}
	}
	return &Service{
		provider:    cfg.Provider,
		profiles:    cfg.Profiles,
		admins:      admins,
		serviceRole: cfg.ServiceRole,
		log:         log,
		now:         time.Now,
	}
}

// SignUpInput holds the fields of a new account.
type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// CurrentUser describes the owner of an access token.
type CurrentUser struct {
	User    domain.SessionUser `json:"user"`
	Profile *domain.Profile    `json:"profile,omitempty"`
	IsAdmin bool               `json:"is_admin"`
}

func validateCredentials(email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.Validation("email is not a valid address")
	}
	if len(password) < minPasswordLength {
		return "", errors.Validation("password must be at least 6 characters")
	}
	return strings.ToLower(email), nil
}

// SignUp creates an account and its profile. When the project requires
// email confirmation the returned session carries no tokens.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*domain.Session, error) {
	email, err := validateCredentials(in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	username, free, err := s.profiles.UsernameAvailable(ctx, in.Username, "")
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, errors.Conflict("username already taken").WithDetails("username", username)
	}

	resp, err := s.provider.SignUp(ctx, email, in.Password, map[string]any{"username": username})
	if err != nil {
		return nil, mapSignUpError(err)
	}
	if resp.User == nil || resp.User.ID == "" {
		return nil, errors.Upstream("sign up returned no user", nil)
	}

	sess := s.session(resp)
	profileCtx := ctx
	switch {
	case resp.AccessToken != "":
		profileCtx = client.WithAccessToken(ctx, resp.AccessToken)
	case s.serviceRole:
		profileCtx = client.WithServiceRole(ctx)
	default:
		// Created on first sign-in from the stored metadata.
		s.log.WithContext(ctx).WithField("user_id", resp.User.ID).Info("sign up awaiting confirmation; profile deferred")
		return sess, nil
	}

	profile, err := s.profiles.CreateProfile(profileCtx, resp.User.ID, username)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("user_id", resp.User.ID).Error("create profile after sign up failed")
		return nil, err
	}
	sess.Profile = profile

	s.log.LogSecurityEvent(ctx, "user_signed_up", map[string]interface{}{"user_id": resp.User.ID})
	return sess, nil
}

// SignIn exchanges email and password for a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return nil, err
	}
	resp, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.log.LogSecurityEvent(ctx, "sign_in_failed", map[string]interface{}{"email": email})
		return nil, mapCredentialError(err)
	}
	if resp.AccessToken == "" || resp.User == nil {
		return nil, errors.Upstream("sign in returned no session", nil)
	}

	sess := s.session(resp)
	profile, err := s.ensureProfile(client.WithAccessToken(ctx, resp.AccessToken), resp.User)
	if err != nil {
		return nil, err
	}
	sess.Profile = profile
	return sess, nil
}

// Refresh exchanges a refresh token for a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.Validation("refresh_token is required")
	}
	resp, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, mapCredentialError(err)
	}
	if resp.AccessToken == "" {
		return nil, errors.Upstream("refresh returned no session", nil)
	}
	return s.session(resp), nil
}

// SignOut revokes the session owning accessToken.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return errors.Unauthorized("")
	}
	if err := s.provider.SignOut(ctx, accessToken); err != nil {
		return errors.FromUpstream("sign out", err)
	}
	return nil
}

// CurrentUser resolves the user and profile owning accessToken.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*CurrentUser, error) {
	if accessToken == "" {
		return nil, errors.Unauthorized("")
	}
	user, err := s.provider.GetUser(ctx, accessToken)
	if err != nil {
		return nil, mapCredentialError(err)
	}
	out := &CurrentUser{
		User:    domain.SessionUser{ID: user.ID, Email: user.Email},
		IsAdmin: s.IsAdmin(user.ID, user.AppMetadata),
	}
	profile, err := s.profiles.GetProfile(client.WithAccessToken(ctx, accessToken), user.ID)
	switch {
	case err == nil:
		out.Profile = profile
	case !errors.IsNotFound(err):
		return nil, err
	}
	return out, nil
}

// IsAdmin reports whether userID is on the admin allowlist or carries the
// admin role in its app metadata.
func (s *Service) IsAdmin(userID string, appMetadata map[string]any) bool {
	if _, ok := s.admins[userID]; ok {
		return true
	}
	role, _ := appMetadata["role"].(string)
	return role == adminRole
}

// ResolveRole adapts IsAdmin to the auth middleware.
func (s *Service) ResolveRole(userID string, claims *middleware.Claims) string {
	var meta map[string]any
	if claims != nil {
		meta = claims.AppMetadata
	}
	if s.IsAdmin(userID, meta) {
		return adminRole
	}
	return ""
}

func (s *Service) session(resp *client.AuthResponse) *domain.Session {
	sess := &domain.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.AccessToken != "" {
		sess.ExpiresAt = resp.Expiry(s.now()).UTC()
	}
	if resp.User != nil {
		sess.User = domain.SessionUser{ID: resp.User.ID, Email: resp.User.Email}
		sess.IsAdmin = s.IsAdmin(resp.User.ID, resp.User.AppMetadata)
	}
	return sess
}

// ensureProfile loads the profile of user, creating it from the sign-up
// metadata when the account was confirmed after signing up.
func (s *Service) ensureProfile(ctx context.Context, user *client.User) (*domain.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, user.ID)
	if err == nil {
		return profile, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}
	username, _ := user.UserMetadata["username"].(string)
	if username == "" {
		return nil, nil
	}
	username, free, err := s.profiles.UsernameAvailable(ctx, username, user.ID)
	if err != nil {
		return nil, err
	}
	if !free {
		s.log.WithContext(ctx).WithField("username", username).Warn("deferred profile username was taken meanwhile")
		return nil, nil
	}
	return s.profiles.CreateProfile(ctx, user.ID, username)
}

func apiError(err error) *client.APIError {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

func mapCredentialError(err error) error {
	if apiErr := apiError(err); apiErr != nil {
		switch apiErr.StatusCode {
		case 400, 401, 403, 422:
			return errors.Unauthorized("invalid credentials")
		}
	}
	return errors.FromUpstream("authenticate", err)
}

func mapSignUpError(err error) error {
	if apiErr := apiError(err); apiErr != nil {
		msg := strings.ToLower(apiErr.Message)
		if apiErr.Code == "user_already_exists" || strings.Contains(msg, "already registered") {
			return errors.Conflict("an account with this email already exists")
		}
		if apiErr.StatusCode == 400 || apiErr.StatusCode == 422 {
			return errors.Validation(apiErr.Message)
		}
	}
	return errors.FromUpstream("sign up", err)
}
