// Package supabase provides cafe and vote table access.
package supabase

import (
	"context"
	"fmt"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/supabase/client"
)

const (
	tableCafes = "cafes"

	// Columns is the full cafe projection.
	Columns = "id,name,description,location,wifi,powerOutletAvailable,amenities,imageUrls,upvotes,downvotes,submitted_by,created_at"
)

// Filter narrows cafe listings.
type Filter struct {
	City        string
	Wifi        *bool
	PowerOutlet *bool
	Limit       int
	Offset      int
}

// Tables names the two vote tables.
type Tables struct {
	Upvotes   string
	Downvotes string
}

// RepositoryInterface defines cafe and vote data access.
type RepositoryInterface interface {
	List(ctx context.Context, f Filter) ([]domain.Cafe, error)
	Get(ctx context.Context, id string) (*domain.Cafe, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Cafe, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Cafe, error)
	ListBySubmitter(ctx context.Context, userID string) ([]domain.Cafe, error)
	Create(ctx context.Context, cafe *domain.Cafe) (*domain.Cafe, error)
	SetCounters(ctx context.Context, id string, upvotes, downvotes int) error

	HasVote(ctx context.Context, kind domain.VoteKind, userID, cafeID string) (bool, error)
	AddVote(ctx context.Context, kind domain.VoteKind, userID, cafeID string) error
	RemoveVote(ctx context.Context, kind domain.VoteKind, userID, cafeID string) (bool, error)
}

var _ RepositoryInterface = (*Repository)(nil)

type newCafe struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description,omitempty"`
	Location             domain.Location `json:"location"`
	Wifi                 bool            `json:"wifi"`
	PowerOutletAvailable bool            `json:"powerOutletAvailable"`
	Amenities            []string        `json:"amenities,omitempty"`
	ImageURLs            []string        `json:"imageUrls"`
	SubmittedBy          string          `json:"submitted_by,omitempty"`
}

type counters struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

type voteRow struct {
	UserID string `json:"user_id"`
	CafeID string `json:"cafe_id"`
}

// Repository reads and writes cafes and votes.
type Repository struct {
	client *client.Client
	tables Tables
}

// NewRepository creates a cafe repository over the given vote tables.
func NewRepository(c *client.Client, tables Tables) *Repository {
	return &Repository{client: c, tables: tables}
}

// List returns cafes matching f, most upvoted first.
func (r *Repository) List(ctx context.Context, f Filter) ([]domain.Cafe, error) {
	q := r.client.From(tableCafes).Select(Columns)
	if f.City != "" {
		q = q.ILike("location->>city", f.City)
	}
	if f.Wifi != nil {
		q = q.Eq("wifi", *f.Wifi)
	}
	if f.PowerOutlet != nil {
		q = q.Eq("powerOutletAvailable", *f.PowerOutlet)
	}
	q = q.Order("upvotes", false).Order("name", true)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var rows []domain.Cafe
	if err := q.ExecuteInto(ctx, &rows); err != nil {
		return nil, errors.FromUpstream("list cafes", err)
	}
	return rows, nil
}

// Get fetches one cafe.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Cafe, error) {
	var cafe domain.Cafe
	if err := r.client.From(tableCafes).Select(Columns).Eq("id", id).Single().ExecuteInto(ctx, &cafe); err != nil {
		if err = errors.FromUpstream("get cafe", err); errors.IsNotFound(err) {
			return nil, errors.NotFound("cafe", id)
		}
		return nil, err
	}
	return &cafe, nil
}

// GetByIDs fetches many cafes in one request.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]domain.Cafe, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []domain.Cafe
	if err := r.client.From(tableCafes).Select(Columns).In("id", ids).ExecuteInto(ctx, &rows); err != nil {
		return nil, errors.FromUpstream("get cafes", err)
	}
	return rows, nil
}

// Search matches query against name, description and city.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]domain.Cafe, error) {
	p := client.ContainsPattern(query)
	var rows []domain.Cafe
	err := r.client.From(tableCafes).
		Select(Columns).
		Or(fmt.Sprintf("name.ilike.%s,description.ilike.%s,location->>city.ilike.%s", p, p, p)).
		Order("upvotes", false).
		Limit(limit).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, errors.FromUpstream("search cafes", err)
	}
	return rows, nil
}

// ListBySubmitter returns the cafes that came from userID's submissions.
func (r *Repository) ListBySubmitter(ctx context.Context, userID string) ([]domain.Cafe, error) {
	var rows []domain.Cafe
	err := r.client.From(tableCafes).
		Select(Columns).
		Eq("submitted_by", userID).
		Order("created_at", false).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, errors.FromUpstream("list submitted cafes", err)
	}
	return rows, nil
}

// Create inserts a cafe with zeroed counters.
func (r *Repository) Create(ctx context.Context, cafe *domain.Cafe) (*domain.Cafe, error) {
	row := newCafe{
		Name:                 cafe.Name,
		Description:          cafe.Description,
		Location:             cafe.Location,
		Wifi:                 cafe.Wifi,
		PowerOutletAvailable: cafe.PowerOutletAvailable,
		Amenities:            cafe.Amenities,
		ImageURLs:            cafe.ImageURLs,
		SubmittedBy:          cafe.SubmittedBy,
	}
	if row.ImageURLs == nil {
		row.ImageURLs = []string{}
	}
	resp, err := r.client.From(tableCafes).ExecuteInsert(ctx, row)
	if err != nil {
		return nil, errors.FromUpstream("create cafe", err)
	}
	var rows []domain.Cafe
	if err := resp.JSON(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Upstream("create cafe returned no row", nil)
	}
	return &rows[0], nil
}

// SetCounters overwrites the vote counters of a cafe.
func (r *Repository) SetCounters(ctx context.Context, id string, upvotes, downvotes int) error {
	_, err := r.client.From(tableCafes).Eq("id", id).ExecuteUpdate(ctx, counters{Upvotes: upvotes, Downvotes: downvotes})
	if err != nil {
		return errors.FromUpstream("update cafe counters", err)
	}
	return nil
}

func (r *Repository) voteTable(kind domain.VoteKind) (string, error) {
	switch kind {
	case domain.VoteUp:
		return r.tables.Upvotes, nil
	case domain.VoteDown:
		return r.tables.Downvotes, nil
	}
	return "", errors.Validation("unknown vote kind").WithDetails("kind", string(kind))
}

// HasVote reports whether userID cast a kind vote on cafeID.
func (r *Repository) HasVote(ctx context.Context, kind domain.VoteKind, userID, cafeID string) (bool, error) {
	table, err := r.voteTable(kind)
	if err != nil {
		return false, err
	}
	var rows []domain.Vote
	err = r.client.From(table).
		Select("id").
		Eq("user_id", userID).
		Eq("cafe_id", cafeID).
		Limit(1).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return false, errors.FromUpstream("check vote", err)
	}
	return len(rows) > 0, nil
}

// AddVote records a vote. Voting twice leaves one row.
func (r *Repository) AddVote(ctx context.Context, kind domain.VoteKind, userID, cafeID string) error {
	table, err := r.voteTable(kind)
	if err != nil {
		return err
	}
	if _, err := r.client.From(table).ExecuteUpsert(ctx, voteRow{UserID: userID, CafeID: cafeID}, "user_id,cafe_id"); err != nil {
		return errors.FromUpstream("add vote", err)
	}
	return nil
}

// RemoveVote deletes a vote and reports whether it existed.
func (r *Repository) RemoveVote(ctx context.Context, kind domain.VoteKind, userID, cafeID string) (bool, error) {
	table, err := r.voteTable(kind)
	if err != nil {
		return false, err
	}
	resp, err := r.client.From(table).
		Eq("user_id", userID).
		Eq("cafe_id", cafeID).
		ExecuteDelete(ctx)
	if err != nil {
		return false, errors.FromUpstream("remove vote", err)
	}
	var rows []domain.Vote
	if err := resp.JSON(&rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}
