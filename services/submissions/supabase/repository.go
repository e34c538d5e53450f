// Package supabase provides cafe submission table and image bucket access.
package supabase

import (
	"context"
	"time"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/supabase/client"
)

const tableSubmissions = "cafe_submissions"

// NewSubmission is the row inserted for a new submission.
type NewSubmission struct {
	SubmittedBy          string                  `json:"submitted_by"`
	Name                 string                  `json:"name"`
	Description          string                  `json:"description,omitempty"`
	Location             domain.Location         `json:"location"`
	Wifi                 bool                    `json:"wifi"`
	PowerOutletAvailable bool                    `json:"powerOutletAvailable"`
	ImageURLs            []string                `json:"image_urls"`
	Status               domain.SubmissionStatus `json:"status"`
}

// Review is the patch applied when a submission changes status. Nil
// pointers clear the column.
type Review struct {
	Status          domain.SubmissionStatus `json:"status"`
	ReviewedBy      *string                 `json:"reviewed_by"`
	ReviewedAt      *time.Time              `json:"reviewed_at"`
	AdminNotes      *string                 `json:"admin_notes"`
	RejectionReason *string                 `json:"rejection_reason"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// RepositoryInterface defines submission data access.
type RepositoryInterface interface {
	Insert(ctx context.Context, row NewSubmission) (*domain.CafeSubmission, error)
	Get(ctx context.Context, id string) (*domain.CafeSubmission, error)
	ListByUser(ctx context.Context, userID string) ([]domain.CafeSubmission, error)
	List(ctx context.Context, status domain.SubmissionStatus) ([]domain.CafeSubmission, error)
	Count(ctx context.Context, status domain.SubmissionStatus) (int, error)
	DeletePending(ctx context.Context, id, userID string) (*domain.CafeSubmission, error)
	Transition(ctx context.Context, id string, from domain.SubmissionStatus, patch Review) (*domain.CafeSubmission, error)
}

var _ RepositoryInterface = (*Repository)(nil)

// Repository reads and writes cafe_submissions.
type Repository struct {
	client *client.Client
}

// NewRepository creates a submission repository.
func NewRepository(c *client.Client) *Repository {
	return &Repository{client: c}
}

func firstRow(resp *client.Response) (*domain.CafeSubmission, error) {
	var rows []domain.CafeSubmission
	if err := resp.JSON(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Insert stores a new submission.
func (r *Repository) Insert(ctx context.Context, row NewSubmission) (*domain.CafeSubmission, error) {
	resp, err := r.client.From(tableSubmissions).ExecuteInsert(ctx, row)
	if err != nil {
		return nil, errors.FromUpstream("insert submission", err)
	}
	sub, err := firstRow(resp)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errors.Upstream("insert submission returned no row", nil)
	}
	return sub, nil
}

// Get fetches one submission.
func (r *Repository) Get(ctx context.Context, id string) (*domain.CafeSubmission, error) {
	var sub domain.CafeSubmission
	if err := r.client.From(tableSubmissions).Select("*").Eq("id", id).Single().ExecuteInto(ctx, &sub); err != nil {
		if err = errors.FromUpstream("get submission", err); errors.IsNotFound(err) {
			return nil, errors.NotFound("submission", id)
		}
		return nil, err
	}
	return &sub, nil
}

// ListByUser returns a user's submissions, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.CafeSubmission, error) {
	var rows []domain.CafeSubmission
	err := r.client.From(tableSubmissions).
		Select("*").
		Eq("submitted_by", userID).
		Order("created_at", false).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, errors.FromUpstream("list user submissions", err)
	}
	return rows, nil
}

// List returns submissions with status, or all of them when status is
// empty. Oldest first, the order they are reviewed in.
func (r *Repository) List(ctx context.Context, status domain.SubmissionStatus) ([]domain.CafeSubmission, error) {
	q := r.client.From(tableSubmissions).Select("*")
	if status != "" {
		q = q.Eq("status", string(status))
	}
	var rows []domain.CafeSubmission
	if err := q.Order("created_at", true).ExecuteInto(ctx, &rows); err != nil {
		return nil, errors.FromUpstream("list submissions", err)
	}
	return rows, nil
}

// Count counts submissions with status.
func (r *Repository) Count(ctx context.Context, status domain.SubmissionStatus) (int, error) {
	n, err := r.client.From(tableSubmissions).Eq("status", string(status)).ExecuteCount(ctx)
	if err != nil {
		return 0, errors.FromUpstream("count submissions", err)
	}
	return n, nil
}

// DeletePending deletes a pending submission owned by userID. It returns
// nil when no row matched.
func (r *Repository) DeletePending(ctx context.Context, id, userID string) (*domain.CafeSubmission, error) {
	resp, err := r.client.From(tableSubmissions).
		Eq("id", id).
		Eq("submitted_by", userID).
		Eq("status", string(domain.SubmissionPending)).
		ExecuteDelete(ctx)
	if err != nil {
		return nil, errors.FromUpstream("withdraw submission", err)
	}
	return firstRow(resp)
}

// Transition applies patch to the submission only while it is in status
// from. It returns nil when the row was not in that status.
func (r *Repository) Transition(ctx context.Context, id string, from domain.SubmissionStatus, patch Review) (*domain.CafeSubmission, error) {
	resp, err := r.client.From(tableSubmissions).
		Eq("id", id).
		Eq("status", string(from)).
		ExecuteUpdate(ctx, patch)
	if err != nil {
		return nil, errors.FromUpstream("update submission", err)
	}
	return firstRow(resp)
}
