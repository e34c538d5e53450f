// Package reviews manages cafe reviews.
package reviews

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
	reviewssupabase "github.com/brewmap/brewmap/services/reviews/supabase"
)

// MaxCommentLength is the longest accepted comment, in characters.
const MaxCommentLength = 1000

// Config configures the review service.
type Config struct {
	Repo    reviewssupabase.RepositoryInterface
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// Service implements review writes and reads.
type Service struct {
	repo    reviewssupabase.RepositoryInterface
	metrics *metrics.Metrics
	log     *logging.Logger
}

// New creates a review service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("reviews")
	}
	return &Service{repo: cfg.Repo, metrics: cfg.Metrics, log: log}
}

// AddReview records userID's review of cafeID. A user has at most one
// review per cafe; reviewing again replaces the earlier one. The boolean
// result reports whether a new review was created.
func (s *Service) AddReview(ctx context.Context, userID, cafeID string, rating bool, comment string) (*domain.Review, bool, error) {
	if userID == "" || strings.TrimSpace(cafeID) == "" {
		return nil, false, errors.Validation("user and cafe are required")
	}
	comment = strings.TrimSpace(comment)
	if n := utf8.RuneCountInString(comment); n > MaxCommentLength {
		return nil, false, errors.Validation("comment must be at most 1000 characters").WithDetails("length", n)
	}

	existing, err := s.repo.GetByUserAndCafe(ctx, userID, cafeID)
	if err != nil {
		return nil, false, err
	}
	rev, err := s.repo.Upsert(ctx, userID, cafeID, rating, comment)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		s.metrics.RecordReview("updated")
		return rev, false, nil
	}
	s.metrics.RecordReview("created")
	s.log.WithContext(ctx).WithField("cafe_id", cafeID).Info("review created")
	return rev, true, nil
}

// GetCafeReviews lists a cafe's reviews with their authors.
func (s *Service) GetCafeReviews(ctx context.Context, cafeID string) ([]domain.Review, error) {
	rows, err := s.repo.ListByCafe(ctx, cafeID)
	return nonNil(rows), err
}

// GetUserReviews lists a user's reviews with their cafes.
func (s *Service) GetUserReviews(ctx context.Context, userID string) ([]domain.Review, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	return nonNil(rows), err
}

// GetUserReviewForCafe returns the user's review of a cafe, or nil.
func (s *Service) GetUserReviewForCafe(ctx context.Context, userID, cafeID string) (*domain.Review, error) {
	return s.repo.GetByUserAndCafe(ctx, userID, cafeID)
}

// DeleteReview deletes a review owned by userID.
func (s *Service) DeleteReview(ctx context.Context, userID, reviewID string) error {
	rev, err := s.repo.Get(ctx, reviewID)
	if err != nil {
		return err
	}
	if rev.UserID != userID {
		return errors.Forbidden("only the author can delete a review")
	}
	if err := s.repo.Delete(ctx, reviewID); err != nil {
		return err
	}
	s.metrics.RecordReview("deleted")
	return nil
}

// Summary aggregates a cafe's reviews.
func (s *Service) Summary(ctx context.Context, cafeID string) (*domain.ReviewSummary, error) {
	sum := &domain.ReviewSummary{CafeID: cafeID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.Count(gctx, cafeID, false)
		sum.Total = n
		return err
	})
	g.Go(func() error {
		n, err := s.repo.Count(gctx, cafeID, true)
		sum.Positive = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if sum.Total > 0 {
		sum.PercentPositive = math.Round(float64(sum.Positive)*1000/float64(sum.Total)) / 10
	}
	return sum, nil
}

func nonNil(rows []domain.Review) []domain.Review {
	if rows == nil {
		return []domain.Review{}
	}
	return rows
}
