// Package supabase provides bookmark table access.
package supabase

import (
	"context"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/supabase/client"
)

const (
	tableBookmarks = "bookmarks"

	columns     = "id,user_id,cafe_id,created_at"
	withCafe    = columns + ",cafe:cafes(*)"
	conflictKey = "user_id,cafe_id"
)

// RepositoryInterface defines bookmark data access.
type RepositoryInterface interface {
	Add(ctx context.Context, userID, cafeID string) error
	Remove(ctx context.Context, userID, cafeID string) (bool, error)
	Exists(ctx context.Context, userID, cafeID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Bookmark, error)
}

var _ RepositoryInterface = (*Repository)(nil)

type bookmarkRow struct {
	UserID string `json:"user_id"`
	CafeID string `json:"cafe_id"`
}

// Repository reads and writes bookmarks.
type Repository struct {
	client *client.Client
}

// NewRepository creates a bookmark repository.
func NewRepository(c *client.Client) *Repository {
	return &Repository{client: c}
}

// Add stores the bookmark. Adding it twice leaves one row.
func (r *Repository) Add(ctx context.Context, userID, cafeID string) error {
	_, err := r.client.From(tableBookmarks).ExecuteUpsert(ctx, bookmarkRow{UserID: userID, CafeID: cafeID}, conflictKey)
	if err != nil {
		return errors.FromUpstream("add bookmark", err)
	}
	return nil
}

// Remove deletes the bookmark and reports whether it existed.
func (r *Repository) Remove(ctx context.Context, userID, cafeID string) (bool, error) {
	resp, err := r.client.From(tableBookmarks).
		Eq("user_id", userID).
		Eq("cafe_id", cafeID).
		ExecuteDelete(ctx)
	if err != nil {
		return false, errors.FromUpstream("remove bookmark", err)
	}
	var rows []domain.Bookmark
	if err := resp.JSON(&rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Exists reports whether the user bookmarked the cafe.
func (r *Repository) Exists(ctx context.Context, userID, cafeID string) (bool, error) {
	var rows []domain.Bookmark
	err := r.client.From(tableBookmarks).
		Select("id").
		Eq("user_id", userID).
		Eq("cafe_id", cafeID).
		Limit(1).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return false, errors.FromUpstream("check bookmark", err)
	}
	return len(rows) > 0, nil
}

// ListByUser returns the user's bookmarks with their cafes, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Bookmark, error) {
	var rows []domain.Bookmark
	err := r.client.From(tableBookmarks).
		Select(withCafe).
		Eq("user_id", userID).
		Order("created_at", false).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, errors.FromUpstream("list bookmarks", err)
	}
	return rows, nil
}
