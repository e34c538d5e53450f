// Package supabase provides profile table access.
package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/supabase/client"
)

const (
	tableProfiles = "profiles"
	// Columns also used by other tables when embedding an author.
	Columns = "id,username,avatar_url,is_merchant,created_at,updated_at"
)

// RepositoryInterface defines profile data access.
type RepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	GetByUsername(ctx context.Context, username string) (*domain.Profile, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Profile, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
	Update(ctx context.Context, id string, update ProfileUpdate) (*domain.Profile, error)
}

var _ RepositoryInterface = (*Repository)(nil)

// ProfileUpdate is a partial profile update. Nil fields are left alone.
type ProfileUpdate struct {
	Username  *string   `json:"username,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type newProfile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Repository reads and writes profiles.
type Repository struct {
	client *client.Client
}

// NewRepository creates a profile repository.
func NewRepository(c *client.Client) *Repository {
	return &Repository{client: c}
}

// GetByID fetches one profile.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	var p domain.Profile
	err := r.client.From(tableProfiles).Select(Columns).Eq("id", id).Single().ExecuteInto(ctx, &p)
	if err != nil {
		if err = errors.FromUpstream("get profile", err); errors.IsNotFound(err) {
			return nil, errors.NotFound("profile", id)
		}
		return nil, err
	}
	return &p, nil
}

// GetByUsername fetches the profile owning a canonical username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	var p domain.Profile
	err := r.client.From(tableProfiles).Select(Columns).Eq("username", username).Single().ExecuteInto(ctx, &p)
	if err != nil {
		if err = errors.FromUpstream("get profile by username", err); errors.IsNotFound(err) {
			return nil, errors.NotFound("profile", username)
		}
		return nil, err
	}
	return &p, nil
}

// GetByIDs fetches many profiles in one request. Missing ids are skipped.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]domain.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []domain.Profile
	if err := r.client.From(tableProfiles).Select(Columns).In("id", ids).ExecuteInto(ctx, &rows); err != nil {
		return nil, errors.FromUpstream("get profiles", err)
	}
	return rows, nil
}

// Search matches usernames containing query, case-insensitively.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]domain.Profile, error) {
	var rows []domain.Profile
	err := r.client.From(tableProfiles).
		Select(Columns).
		ILike("username", client.ContainsPattern(query)).
		Order("username", true).
		Limit(limit).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, errors.FromUpstream("search profiles", err)
	}
	return rows, nil
}

// Create inserts a profile row. The id must be the auth user id.
func (r *Repository) Create(ctx context.Context, p *domain.Profile) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("profile id cannot be empty")
	}
	resp, err := r.client.From(tableProfiles).ExecuteInsert(ctx, newProfile{ID: p.ID, Username: p.Username, AvatarURL: p.AvatarURL})
	if err != nil {
		return errors.FromUpstream("create profile", err)
	}
	var rows []domain.Profile
	if err := resp.JSON(&rows); err == nil && len(rows) > 0 {
		*p = rows[0]
	}
	return nil
}

// Update applies a partial update and returns the stored row.
func (r *Repository) Update(ctx context.Context, id string, update ProfileUpdate) (*domain.Profile, error) {
	resp, err := r.client.From(tableProfiles).Eq("id", id).ExecuteUpdate(ctx, update)
	if err != nil {
		return nil, errors.FromUpstream("update profile", err)
	}
	var rows []domain.Profile
	if err := resp.JSON(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NotFound("profile", id)
	}
	return &rows[0], nil
}
