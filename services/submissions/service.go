// Package submissions runs the cafe submission and approval workflow.
package submissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
	submissionssupabase "github.com/brewmap/brewmap/services/submissions/supabase"
	"github.com/brewmap/brewmap/supabase/client"
)

// ImageStore keeps submission photos.
type ImageStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, paths []string) error
	PathFromURL(publicURL string) (string, bool)
}

// Cafes creates the cafe for an approved submission.
type Cafes interface {
	CreateCafe(ctx context.Context, cafe *domain.Cafe) (*domain.Cafe, error)
}

// Config configures the submission service.
type Config struct {
	Repo    submissionssupabase.RepositoryInterface
	Images  ImageStore
	Cafes   Cafes
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// Service implements submission, withdrawal and review.
type Service struct {
	repo    submissionssupabase.RepositoryInterface
	images  ImageStore
	cafes   Cafes
	metrics *metrics.Metrics
	log     *logging.Logger

	newID func() string
	now   func() time.Time
}

// New creates a submission service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("submissions")
	}
	return &Service{
		repo:    cfg.Repo,
		images:  cfg.Images,
		cafes:   cfg.Cafes,
		metrics: cfg.Metrics,
		log:     log,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Approval is the outcome of approving a submission.
type Approval struct {
	Submission *domain.CafeSubmission `json:"submission"`
	Cafe       *domain.Cafe           `json:"cafe"`
}

// SubmitCafe validates in, uploads its images under the user's folder and
// records a pending submission. Uploaded images are removed again when
// any later step fails.
func (s *Service) SubmitCafe(ctx context.Context, userID string, in *Input) (*domain.CafeSubmission, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.Unauthorized("")
	}
	types, err := Validate(in)
	if err != nil {
		return nil, err
	}

	var (
		paths = make([]string, 0, len(in.Images))
		urls  = make([]string, 0, len(in.Images))
	)
	for i, img := range in.Images {
		path := fmt.Sprintf("%s/%s%s", userID, s.newID(), imageTypes[types[i]])
		url, err := s.images.Upload(ctx, path, img.Data, types[i])
		if err != nil {
			s.cleanup(ctx, paths)
			return nil, err
		}
		paths = append(paths, path)
		urls = append(urls, url)
	}

	sub, err := s.repo.Insert(ctx, submissionssupabase.NewSubmission{
		SubmittedBy: userID,
		Name:        in.Name,
		Description: in.Description,
		Location: domain.Location{
			Address: in.Address,
			City:    in.City,
			Country: in.Country,
			Lat:     in.Lat,
			Lng:     in.Lng,
		},
		Wifi:                 in.Wifi,
		PowerOutletAvailable: in.PowerOutletAvailable,
		ImageURLs:            urls,
		Status:               domain.SubmissionPending,
	})
	if err != nil {
		s.cleanup(ctx, paths)
		return nil, err
	}

	s.metrics.RecordSubmission("submitted")
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"submission_id": sub.ID,
		"images":        len(urls),
	}).Info("cafe submitted")
	return sub, nil
}

func (s *Service) cleanup(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	// The request may already be cancelled; removal still has to run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.images.Remove(ctx, paths); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("paths", paths).Warn("orphaned submission images")
	}
}

func (s *Service) imagePaths(urls []string) []string {
	paths := make([]string, 0, len(urls))
	for _, u := range urls {
		if p, ok := s.images.PathFromURL(u); ok {
			paths = append(paths, p)
		}
	}
	return paths
}

// GetUserSubmissions lists a user's submissions, newest first.
func (s *Service) GetUserSubmissions(ctx context.Context, userID string) ([]domain.CafeSubmission, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return nonNil(rows), nil
}

// WithdrawSubmission deletes a pending submission owned by userID along
// with its images.
func (s *Service) WithdrawSubmission(ctx context.Context, userID, id string) error {
	sub, err := s.repo.DeletePending(ctx, id, userID)
	if err != nil {
		return err
	}
	if sub == nil {
		existing, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if existing.SubmittedBy != userID {
			return errors.Forbidden("only the submitter can withdraw a submission")
		}
		return errors.Conflict("only pending submissions can be withdrawn").
			WithDetails("status", string(existing.Status))
	}
	s.cleanup(ctx, s.imagePaths(sub.ImageURLs))
	s.metrics.RecordSubmission("withdrawn")
	return nil
}

// ListSubmissions lists submissions for review. An empty status lists
// every submission.
func (s *Service) ListSubmissions(ctx context.Context, status domain.SubmissionStatus) ([]domain.CafeSubmission, error) {
	if status != "" && !status.Valid() {
		return nil, errors.Validation("unknown submission status").WithDetails("status", string(status))
	}
	rows, err := s.repo.List(client.WithServiceRole(ctx), status)
	if err != nil {
		return nil, err
	}
	return nonNil(rows), nil
}

// GetSubmission returns one submission for review.
func (s *Service) GetSubmission(ctx context.Context, id string) (*domain.CafeSubmission, error) {
	return s.repo.Get(client.WithServiceRole(ctx), id)
}

// Stats counts submissions by status.
func (s *Service) Stats(ctx context.Context) (*domain.SubmissionStats, error) {
	ctx = client.WithServiceRole(ctx)
	var stats domain.SubmissionStats
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range []struct {
		status domain.SubmissionStatus
		dst    *int
	}{
		{domain.SubmissionPending, &stats.Pending},
		{domain.SubmissionApproved, &stats.Approved},
		{domain.SubmissionRejected, &stats.Rejected},
	} {
		g.Go(func() error {
			n, err := s.repo.Count(gctx, st.status)
			*st.dst = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.Total = stats.Pending + stats.Approved + stats.Rejected
	return &stats, nil
}

// reviewed explains why a pending-only transition matched no row.
func (s *Service) reviewed(ctx context.Context, id string) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return errors.Conflict("submission already reviewed").WithDetails("status", string(existing.Status))
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// ApproveSubmission marks a pending submission approved and creates its
// cafe. A submission can be approved once; later attempts fail with a
// conflict and create nothing. If the cafe cannot be created the
// submission goes back to pending.
func (s *Service) ApproveSubmission(ctx context.Context, adminID, id, notes string) (*Approval, error) {
	ctx = client.WithServiceRole(ctx)
	now := s.now().UTC()
	sub, err := s.repo.Transition(ctx, id, domain.SubmissionPending, submissionssupabase.Review{
		Status:     domain.SubmissionApproved,
		ReviewedBy: optional(adminID),
		ReviewedAt: &now,
		AdminNotes: optional(strings.TrimSpace(notes)),
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		s.metrics.RecordSubmission("approve_conflict")
		return nil, s.reviewed(ctx, id)
	}

	cafe, err := s.cafes.CreateCafe(ctx, sub.ToCafe())
	if err != nil {
		s.revert(ctx, id)
		return nil, err
	}

	s.metrics.RecordSubmission("approved")
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"submission_id": id,
		"cafe_id":       cafe.ID,
	}).Info("submission approved")
	return &Approval{Submission: sub, Cafe: cafe}, nil
}

func (s *Service) revert(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	_, err := s.repo.Transition(ctx, id, domain.SubmissionApproved, submissionssupabase.Review{
		Status:    domain.SubmissionPending,
		UpdatedAt: s.now().UTC(),
	})
	log := s.log.WithContext(ctx).WithField("submission_id", id)
	if err != nil {
		log.WithError(err).Error("approved submission has no cafe and could not be reverted")
		return
	}
	s.metrics.RecordSubmission("compensated")
	log.Warn("cafe creation failed, submission returned to pending")
}

// RejectSubmission marks a pending submission rejected. A reason is
// required.
func (s *Service) RejectSubmission(ctx context.Context, adminID, id, reason string) (*domain.CafeSubmission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.Validation("a rejection reason is required")
	}
	ctx = client.WithServiceRole(ctx)
	now := s.now().UTC()
	sub, err := s.repo.Transition(ctx, id, domain.SubmissionPending, submissionssupabase.Review{
		Status:          domain.SubmissionRejected,
		ReviewedBy:      optional(adminID),
		ReviewedAt:      &now,
		RejectionReason: &reason,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, s.reviewed(ctx, id)
	}
	s.metrics.RecordSubmission("rejected")
	s.log.WithContext(ctx).WithField("submission_id", id).Info("submission rejected")
	return sub, nil
}

func nonNil(rows []domain.CafeSubmission) []domain.CafeSubmission {
	if rows == nil {
		return []domain.CafeSubmission{}
	}
	return rows
}
