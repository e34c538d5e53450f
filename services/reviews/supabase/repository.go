// Package supabase provides review table access.
package supabase

import (
	"context"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/supabase/client"
)

const (
	tableReviews = "reviews"
	conflictKey  = "user_id,cafe_id"

	baseColumns = "id,user_id,cafe_id,rating,comment,created_at"
	// Reviews of a cafe embed their author, reviews of a user their cafe.
	withAuthor = baseColumns + ",author:profiles(id,username,avatar_url)"
	withCafe   = baseColumns + ",cafe:cafes(id,name,city:location->>city)"
)

// RepositoryInterface defines review data access.
type RepositoryInterface interface {
	Get(ctx context.Context, id string) (*domain.Review, error)
	GetByUserAndCafe(ctx context.Context, userID, cafeID string) (*domain.Review, error)
	Upsert(ctx context.Context, userID, cafeID string, rating bool, comment string) (*domain.Review, error)
	Delete(ctx context.Context, id string) error
	ListByCafe(ctx context.Context, cafeID string) ([]domain.Review, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Review, error)
	Count(ctx context.Context, cafeID string, positiveOnly bool) (int, error)
}

var _ RepositoryInterface = (*Repository)(nil)

type reviewRow struct {
	UserID  string `json:"user_id"`
	CafeID  string `json:"cafe_id"`
	Rating  bool   `json:"rating"`
	Comment string `json:"comment"`
}

// Repository reads and writes reviews.
type Repository struct {
	client *client.Client
}

// NewRepository creates a review repository.
func NewRepository(c *client.Client) *Repository {
	return &Repository{client: c}
}

// Get fetches one review.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Review, error) {
	var rev domain.Review
	if err := r.client.From(tableReviews).Select(baseColumns).Eq("id", id).Single().ExecuteInto(ctx, &rev); err != nil {
		if err = errors.FromUpstream("get review", err); errors.IsNotFound(err) {
			return nil, errors.NotFound("review", id)
		}
		return nil, err
	}
	return &rev, nil
}

// GetByUserAndCafe returns the user's review of a cafe, or nil.
func (r *Repository) GetByUserAndCafe(ctx context.Context, userID, cafeID string) (*domain.Review, error) {
	var rows []domain.Review
	err := r.client.From(tableReviews).
		Select(baseColumns).
		Eq("user_id", userID).
		Eq("cafe_id", cafeID).
		Limit(1).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, errors.FromUpstream("get user review", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Upsert stores the user's review of a cafe, replacing the rating and
// comment of an existing one.
func (r *Repository) Upsert(ctx context.Context, userID, cafeID string, rating bool, comment string) (*domain.Review, error) {
	resp, err := r.client.From(tableReviews).ExecuteUpsert(ctx, reviewRow{UserID: userID, CafeID: cafeID, Rating: rating, Comment: comment}, conflictKey)
	if err != nil {
		return nil, errors.FromUpstream("save review", err)
	}
	return firstRow(resp, "review")
}

// Delete removes a review.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := r.client.From(tableReviews).Eq("id", id).ExecuteDelete(ctx); err != nil {
		return errors.FromUpstream("delete review", err)
	}
	return nil
}

// ListByCafe returns a cafe's reviews with their authors, newest first.
func (r *Repository) ListByCafe(ctx context.Context, cafeID string) ([]domain.Review, error) {
	var rows []domain.Review
	err := r.client.From(tableReviews).Select(withAuthor).Eq("cafe_id", cafeID).Order("created_at", false).ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, errors.FromUpstream("list cafe reviews", err)
	}
	return rows, nil
}

// ListByUser returns a user's reviews with their cafes, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	var rows []domain.Review
	err := r.client.From(tableReviews).Select(withCafe).Eq("user_id", userID).Order("created_at", false).ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, errors.FromUpstream("list user reviews", err)
	}
	return rows, nil
}

// Count counts a cafe's reviews, optionally only the positive ones.
func (r *Repository) Count(ctx context.Context, cafeID string, positiveOnly bool) (int, error) {
	q := r.client.From(tableReviews).Eq("cafe_id", cafeID)
	if positiveOnly {
		q = q.Is("rating", true)
	}
	n, err := q.ExecuteCount(ctx)
	if err != nil {
		return 0, errors.FromUpstream("count reviews", err)
	}
	return n, nil
}

func firstRow(resp *client.Response, id string) (*domain.Review, error) {
	var rows []domain.Review
	if err := resp.JSON(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.NotFound("review", id)
	}
	return &rows[0], nil
}
