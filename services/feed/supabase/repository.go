// Package supabase reads the activity tables behind the feed.
package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/supabase/client"
)

// Tables names the vote tables; bookmarks and reviews are fixed.
type Tables struct {
	Upvotes   string
	Downvotes string
}

// Cursor is the keyset position of the last item of a page. Rows tied on
// created_at are ordered by id, which may be a UUID or an integer key;
// the id.lt filter is cast to the column type server side.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

// RepositoryInterface defines activity reads.
type RepositoryInterface interface {
	// List returns up to limit activities of kind by any of userIDs that
	// sort after cursor, newest first.
	List(ctx context.Context, kind domain.ActivityKind, userIDs []string, after *Cursor, limit int) ([]domain.FeedActivity, error)
}

var _ RepositoryInterface = (*Repository)(nil)

type activityRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CafeID    string    `json:"cafe_id"`
	Rating    *bool     `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository reads activity rows.
type Repository struct {
	client *client.Client
	tables Tables
}

// NewRepository creates an activity repository over the given vote tables.
func NewRepository(c *client.Client, tables Tables) *Repository {
	return &Repository{client: c, tables: tables}
}

func (r *Repository) source(kind domain.ActivityKind) (table, columns string, err error) {
	const base = "id,user_id,cafe_id,created_at"
	switch kind {
	case domain.ActivityBookmark:
		return "bookmarks", base, nil
	case domain.ActivityReview:
		return "reviews", base + ",rating,comment", nil
	case domain.ActivityUpvote:
		return r.tables.Upvotes, base, nil
	case domain.ActivityDownvote:
		return r.tables.Downvotes, base, nil
	}
	return "", "", errors.Validation("unknown activity kind").WithDetails("kind", string(kind))
}

// List implements RepositoryInterface.
func (r *Repository) List(ctx context.Context, kind domain.ActivityKind, userIDs []string, after *Cursor, limit int) ([]domain.FeedActivity, error) {
	table, columns, err := r.source(kind)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	q := r.client.From(table).Select(columns).In("user_id", userIDs)
	if after != nil {
		ts := after.CreatedAt.UTC().Format(time.RFC3339Nano)
		q = q.Or(fmt.Sprintf(`created_at.lt."%s",and(created_at.eq."%s",id.lt."%s")`, ts, ts, after.ID))
	}
	var rows []activityRow
	err = q.Order("created_at", false).
		Order("id", false).
		Limit(limit).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, errors.FromUpstream("list "+string(kind)+" activity", err)
	}

	out := make([]domain.FeedActivity, len(rows))
	for i, row := range rows {
		out[i] = domain.FeedActivity{
			ID:        row.ID,
			Kind:      kind,
			ActorID:   row.UserID,
			CafeID:    row.CafeID,
			Rating:    row.Rating,
			Comment:   row.Comment,
			CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}
