// Package followers maintains the follow graph between users.
package followers

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
	followerssupabase "github.com/brewmap/brewmap/services/followers/supabase"
)

// Profiles resolves the profiles on the other side of follow edges.
type Profiles interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	GetProfiles(ctx context.Context, ids []string) (map[string]*domain.Profile, error)
}

// Config configures the follower service.
type Config struct {
	Repo     followerssupabase.RepositoryInterface
	Profiles Profiles
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

// Service implements follow, unfollow and graph reads.
type Service struct {
	repo     followerssupabase.RepositoryInterface
	profiles Profiles
	metrics  *metrics.Metrics
	log      *logging.Logger
}

// New creates a follower service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("followers")
	}
	return &Service{repo: cfg.Repo, profiles: cfg.Profiles, metrics: cfg.Metrics, log: log}
}

func validatePair(followerID, followingID string) error {
	if strings.TrimSpace(followerID) == "" || strings.TrimSpace(followingID) == "" {
		return errors.Validation("both user ids are required")
	}
	if followerID == followingID {
		return errors.Validation("users cannot follow themselves")
	}
	return nil
}

// FollowUser makes followerID follow followingID. Following a user twice
// is not an error.
func (s *Service) FollowUser(ctx context.Context, followerID, followingID string) error {
	if err := validatePair(followerID, followingID); err != nil {
		return err
	}
	if _, err := s.profiles.GetProfile(ctx, followingID); err != nil {
		return err
	}
	if err := s.repo.Follow(ctx, followerID, followingID); err != nil {
		return err
	}
	s.metrics.RecordFollow("follow")
	s.log.WithContext(ctx).WithField("following_id", followingID).Info("user followed")
	return nil
}

// UnfollowUser removes the edge. Unfollowing a user not followed is not
// an error.
func (s *Service) UnfollowUser(ctx context.Context, followerID, followingID string) error {
	if err := validatePair(followerID, followingID); err != nil {
		return err
	}
	removed, err := s.repo.Unfollow(ctx, followerID, followingID)
	if err != nil {
		return err
	}
	if removed {
		s.metrics.RecordFollow("unfollow")
	}
	return nil
}

// IsFollowing reports whether followerID follows followingID.
func (s *Service) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	if followerID == "" || followingID == "" || followerID == followingID {
		return false, nil
	}
	return s.repo.Exists(ctx, followerID, followingID)
}

// GetFollowers returns the profiles following userID, most recent first.
func (s *Service) GetFollowers(ctx context.Context, userID string) ([]domain.FollowProfile, error) {
	if userID == "" {
		return nil, errors.Validation("user id is required")
	}
	edges, err := s.repo.ListFollowers(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, edges, func(e domain.FollowerRelationship) string { return e.FollowerID })
}

// GetFollowing returns the profiles userID follows, most recent first.
func (s *Service) GetFollowing(ctx context.Context, userID string) ([]domain.FollowProfile, error) {
	if userID == "" {
		return nil, errors.Validation("user id is required")
	}
	edges, err := s.repo.ListFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, edges, func(e domain.FollowerRelationship) string { return e.FollowingID })
}

// GetFollowingIDs returns the ids userID follows.
func (s *Service) GetFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	edges, err := s.repo.ListFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.FollowingID)
	}
	return ids, nil
}

// GetFollowerStats counts both sides of userID's graph.
func (s *Service) GetFollowerStats(ctx context.Context, userID string) (*domain.FollowerStats, error) {
	if userID == "" {
		return nil, errors.Validation("user id is required")
	}
	stats := &domain.FollowerStats{UserID: userID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.CountFollowers(gctx, userID)
		stats.FollowersCount = n
		return err
	})
	g.Go(func() error {
		n, err := s.repo.CountFollowing(gctx, userID)
		stats.FollowingCount = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// resolve pairs each edge with the profile on its far side in one batch
// lookup. Edges whose profile is gone are dropped.
func (s *Service) resolve(ctx context.Context, edges []domain.FollowerRelationship, other func(domain.FollowerRelationship) string) ([]domain.FollowProfile, error) {
	out := make([]domain.FollowProfile, 0, len(edges))
	if len(edges) == 0 {
		return out, nil
	}
	ids := make([]string, len(edges))
	for i, e := range edges {
		ids[i] = other(e)
	}
	profiles, err := s.profiles.GetProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		p, ok := profiles[other(e)]
		if !ok {
			continue
		}
		out = append(out, domain.FollowProfile{Profile: *p, FollowedAt: e.CreatedAt})
	}
	return out, nil
}
