// Package supabase provides follower graph table access.
package supabase

import (
	"context"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/supabase/client"
)

const tableFollowers = "followers"

// RepositoryInterface defines follower graph data access.
type RepositoryInterface interface {
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) (bool, error)
	Exists(ctx context.Context, followerID, followingID string) (bool, error)
	ListFollowers(ctx context.Context, userID string) ([]domain.FollowerRelationship, error)
	ListFollowing(ctx context.Context, userID string) ([]domain.FollowerRelationship, error)
	CountFollowers(ctx context.Context, userID string) (int, error)
	CountFollowing(ctx context.Context, userID string) (int, error)
}

var _ RepositoryInterface = (*Repository)(nil)

type edge struct {
	FollowerID  string `json:"follower_id"`
	FollowingID string `json:"following_id"`
}

// Repository reads and writes the followers table.
type Repository struct {
	client *client.Client
}

// NewRepository creates a follower repository.
func NewRepository(c *client.Client) *Repository {
	return &Repository{client: c}
}

// Follow stores the edge. Following twice leaves a single row.
func (r *Repository) Follow(ctx context.Context, followerID, followingID string) error {
	_, err := r.client.From(tableFollowers).ExecuteUpsert(ctx, edge{FollowerID: followerID, FollowingID: followingID}, "follower_id,following_id")
	if err != nil {
		return errors.FromUpstream("follow user", err)
	}
	return nil
}

// Unfollow deletes the edge and reports whether it existed.
func (r *Repository) Unfollow(ctx context.Context, followerID, followingID string) (bool, error) {
	resp, err := r.client.From(tableFollowers).
		Eq("follower_id", followerID).
		Eq("following_id", followingID).
		ExecuteDelete(ctx)
	if err != nil {
		return false, errors.FromUpstream("unfollow user", err)
	}
	var rows []domain.FollowerRelationship
	if err := resp.JSON(&rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Exists reports whether followerID follows followingID.
func (r *Repository) Exists(ctx context.Context, followerID, followingID string) (bool, error) {
	var rows []domain.FollowerRelationship
	err := r.client.From(tableFollowers).
		Select("id").
		Eq("follower_id", followerID).
		Eq("following_id", followingID).
		Limit(1).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return false, errors.FromUpstream("check follow", err)
	}
	return len(rows) > 0, nil
}

// ListFollowers returns the edges pointing at userID, newest first.
func (r *Repository) ListFollowers(ctx context.Context, userID string) ([]domain.FollowerRelationship, error) {
	return r.list(ctx, "following_id", userID)
}

// ListFollowing returns the edges leaving userID, newest first.
func (r *Repository) ListFollowing(ctx context.Context, userID string) ([]domain.FollowerRelationship, error) {
	return r.list(ctx, "follower_id", userID)
}

func (r *Repository) list(ctx context.Context, column, userID string) ([]domain.FollowerRelationship, error) {
	var rows []domain.FollowerRelationship
	err := r.client.From(tableFollowers).
		Select("*").
		Eq(column, userID).
		Order("created_at", false).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, errors.FromUpstream("list follows", err)
	}
	return rows, nil
}

// CountFollowers counts the users following userID.
func (r *Repository) CountFollowers(ctx context.Context, userID string) (int, error) {
	n, err := r.client.From(tableFollowers).Eq("following_id", userID).ExecuteCount(ctx)
	if err != nil {
		return 0, errors.FromUpstream("count followers", err)
	}
	return n, nil
}

// CountFollowing counts the users userID follows.
func (r *Repository) CountFollowing(ctx context.Context, userID string) (int, error) {
	n, err := r.client.From(tableFollowers).Eq("follower_id", userID).ExecuteCount(ctx)
	if err != nil {
		return 0, errors.FromUpstream("count following", err)
	}
	return n, nil
}
