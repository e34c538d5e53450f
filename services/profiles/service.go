// Package profiles manages user profiles.
package profiles

import (
	"context"
	"strings"
	"time"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	profilessupabase "github.com/brewmap/brewmap/services/profiles/supabase"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
	maxAvatarURLLength = 2048
)

// Service implements profile lookups and updates.
type Service struct {
	repo profilessupabase.RepositoryInterface
	log  *logging.Logger
	now  func() time.Time
}

// Config configures the profile service.
type Config struct {
	Repo   profilessupabase.RepositoryInterface
	Logger *logging.Logger
}

// New creates a profile service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("profiles")
	}
	return &Service{repo: cfg.Repo, log: log, now: time.Now}
}

// UpdateInput is a partial profile update.
type UpdateInput struct {
	Username  *string `json:"username,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// GetProfile returns the profile with id.
func (s *Service) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.Validation("profile id is required")
	}
	return s.repo.GetByID(ctx, id)
}

// GetByUsername looks a profile up by username in any letter case.
func (s *Service) GetByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	canonical, err := CanonicalUsername(username)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByUsername(ctx, canonical)
}

// UsernameAvailable canonicalizes username and reports whether a
// profile other than ownerID already holds it.
func (s *Service) UsernameAvailable(ctx context.Context, username, ownerID string) (string, bool, error) {
	canonical, err := CanonicalUsername(username)
	if err != nil {
		return "", false, err
	}
	existing, err := s.repo.GetByUsername(ctx, canonical)
	switch {
	case errors.IsNotFound(err):
		return canonical, true, nil
	case err != nil:
		return "", false, err
	}
	return canonical, existing.ID == ownerID, nil
}

// CreateProfile inserts the profile of a new account.
func (s *Service) CreateProfile(ctx context.Context, userID, username string) (*domain.Profile, error) {
	p := &domain.Profile{ID: userID, Username: username}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProfile changes the caller's username and/or avatar.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateInput) (*domain.Profile, error) {
	if in.Username == nil && in.AvatarURL == nil {
		return nil, errors.Validation("nothing to update")
	}

	update := profilessupabase.ProfileUpdate{UpdatedAt: s.now().UTC()}
	if in.Username != nil {
		canonical, free, err := s.UsernameAvailable(ctx, *in.Username, userID)
		if err != nil {
			return nil, err
		}
		if !free {
			return nil, errors.Conflict("username already taken").WithDetails("username", canonical)
		}
		update.Username = &canonical
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		if len(avatar) > maxAvatarURLLength {
			return nil, errors.Validation("avatar_url is too long")
		}
		if avatar != "" && !strings.HasPrefix(avatar, "https://") && !strings.HasPrefix(avatar, "http://") {
			return nil, errors.Validation("avatar_url must be an http(s) URL")
		}
		update.AvatarURL = &avatar
	}

	p, err := s.repo.Update(ctx, userID, update)
	if err != nil {
		return nil, err
	}
	s.log.WithContext(ctx).WithField("username", p.Username).Info("profile updated")
	return p, nil
}

// SearchProfiles finds profiles whose username contains query.
func (s *Service) SearchProfiles(ctx context.Context, query string, limit int) ([]domain.Profile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Profile{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	rows, err := s.repo.Search(ctx, strings.ToLower(query), limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Profile{}
	}
	return rows, nil
}

// GetProfiles fetches the profiles for ids in one round trip, keyed by id.
func (s *Service) GetProfiles(ctx context.Context, ids []string) (map[string]*domain.Profile, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	out := make(map[string]*domain.Profile, len(unique))
	if len(unique) == 0 {
		return out, nil
	}
	rows, err := s.repo.GetByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}
