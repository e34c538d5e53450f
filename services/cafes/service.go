// Package cafes serves cafe listings, search and voting.
package cafes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brewmap/brewmap/internal/cache"
	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
	cafessupabase "github.com/brewmap/brewmap/services/cafes/supabase"
	"github.com/brewmap/brewmap/supabase/client"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	defaultCacheTTL  = time.Minute

	cafeKeyPrefix = "cafe:"
	listKeyPrefix = "cafes:list:"
)

// Filter narrows cafe listings.
type Filter = cafessupabase.Filter

// Config configures the cafe service.
type Config struct {
	Repo     cafessupabase.RepositoryInterface
	Cache    cache.Cache
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

// Service implements cafe reads, creation and votes.
type Service struct {
	repo    cafessupabase.RepositoryInterface
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *logging.Logger
}

// New creates a cafe service. Without a cache every read goes to the
// platform.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("cafes")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{repo: cfg.Repo, cache: cfg.Cache, ttl: ttl, metrics: cfg.Metrics, log: log}
}

func boolKey(b *bool) string {
	if b == nil {
		return "-"
	}
	if *b {
		return "1"
	}
	return "0"
}

func listKey(f Filter) string {
	return fmt.Sprintf("%s%s:%s:%s:%d:%d", listKeyPrefix, strings.ToLower(f.City), boolKey(f.Wifi), boolKey(f.PowerOutlet), f.Limit, f.Offset)
}

// cached loads key into dst, falling back to load and storing its result.
// Cache failures only cost a platform read.
func cached[T any](ctx context.Context, s *Service, key string, load func() (T, error)) (T, error) {
	if s.cache != nil {
		var v T
		hit, err := cache.GetJSON(ctx, s.cache, key, &v)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("cache read failed")
		}
		s.metrics.RecordCacheLookup(hit)
		if hit {
			return v, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, v, s.ttl); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("cache write failed")
		}
	}
	return v, nil
}

func (s *Service) invalidate(ctx context.Context, cafeID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cafeKeyPrefix+cafeID); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("cache delete failed")
	}
	if err := s.cache.DeletePrefix(ctx, listKeyPrefix); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("cache delete failed")
	}
}

// ListCafes lists cafes matching f, most upvoted first.
func (s *Service) ListCafes(ctx context.Context, f Filter) ([]domain.Cafe, error) {
	f.City = strings.TrimSpace(f.City)
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		return nil, errors.Validation("offset must not be negative")
	}
	rows, err := cached(ctx, s, listKey(f), func() ([]domain.Cafe, error) {
		return s.repo.List(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return nonNil(rows), nil
}

// GetCafe returns one cafe.
func (s *Service) GetCafe(ctx context.Context, id string) (*domain.Cafe, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.Validation("cafe id is required")
	}
	return cached(ctx, s, cafeKeyPrefix+id, func() (*domain.Cafe, error) {
		return s.repo.Get(ctx, id)
	})
}

// GetCafes returns the cafes with the given ids keyed by id, in one
// platform call.
func (s *Service) GetCafes(ctx context.Context, ids []string) (map[string]*domain.Cafe, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	out := make(map[string]*domain.Cafe, len(unique))
	if len(unique) == 0 {
		return out, nil
	}
	rows, err := s.repo.GetByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// SearchCafes matches query against name, description and city. An
// empty query lists cafes.
func (s *Service) SearchCafes(ctx context.Context, query string, limit int) ([]domain.Cafe, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListCafes(ctx, Filter{Limit: limit})
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.repo.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return nonNil(rows), nil
}

// GetCafesBySubmitter lists the cafes approved from userID's submissions.
func (s *Service) GetCafesBySubmitter(ctx context.Context, userID string) ([]domain.Cafe, error) {
	rows, err := s.repo.ListBySubmitter(ctx, userID)
	if err != nil {
		return nil, err
	}
	return nonNil(rows), nil
}

// CreateCafe inserts a cafe with the service role. Only submission
// approval creates cafes.
func (s *Service) CreateCafe(ctx context.Context, cafe *domain.Cafe) (*domain.Cafe, error) {
	if cafe == nil || strings.TrimSpace(cafe.Name) == "" {
		return nil, errors.Validation("cafe name is required")
	}
	created, err := s.repo.Create(client.WithServiceRole(ctx), cafe)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.DeletePrefix(ctx, listKeyPrefix); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("cache delete failed")
		}
	}
	s.log.WithContext(ctx).WithField("cafe_id", created.ID).Info("cafe created")
	return created, nil
}

// Upvote toggles userID's upvote on cafeID. An existing downvote is
// replaced.
func (s *Service) Upvote(ctx context.Context, userID, cafeID string) (*domain.VoteStatus, error) {
	return s.toggleVote(ctx, domain.VoteUp, userID, cafeID)
}

// Downvote toggles userID's downvote on cafeID. An existing upvote is
// replaced.
func (s *Service) Downvote(ctx context.Context, userID, cafeID string) (*domain.VoteStatus, error) {
	return s.toggleVote(ctx, domain.VoteDown, userID, cafeID)
}

func (s *Service) toggleVote(ctx context.Context, kind domain.VoteKind, userID, cafeID string) (*domain.VoteStatus, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(cafeID) == "" {
		return nil, errors.Validation("user and cafe are required")
	}
	cafe, err := s.repo.Get(ctx, cafeID)
	if err != nil {
		return nil, err
	}
	up, down := cafe.Upvotes, cafe.Downvotes
	delta := func(k domain.VoteKind, d int) {
		if k == domain.VoteUp {
			up += d
		} else {
			down += d
		}
	}

	status := &domain.VoteStatus{CafeID: cafeID}
	removed, err := s.repo.RemoveVote(ctx, kind, userID, cafeID)
	if err != nil {
		return nil, err
	}
	result := "removed"
	if removed {
		delta(kind, -1)
	} else {
		if err := s.repo.AddVote(ctx, kind, userID, cafeID); err != nil {
			return nil, err
		}
		delta(kind, 1)
		status.Vote = kind
		result = "cast"

		opposite := kind.Opposite()
		had, err := s.repo.RemoveVote(ctx, opposite, userID, cafeID)
		if err != nil {
			return nil, err
		}
		if had {
			delta(opposite, -1)
			result = "switched"
		}
	}

	status.Upvotes, status.Downvotes = max(up, 0), max(down, 0)
	// Counters are last-write-wins; the tally job corrects drift.
	if err := s.repo.SetCounters(ctx, cafeID, status.Upvotes, status.Downvotes); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("cafe_id", cafeID).Warn("vote counters not updated")
	}
	s.invalidate(ctx, cafeID)
	s.metrics.RecordVote(string(kind), result)
	return status, nil
}

// GetVoteStatus returns userID's vote on cafeID with the cafe counters.
func (s *Service) GetVoteStatus(ctx context.Context, userID, cafeID string) (*domain.VoteStatus, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(cafeID) == "" {
		return nil, errors.Validation("user and cafe are required")
	}
	var (
		cafe     *domain.Cafe
		up, down bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cafe, err = s.repo.Get(gctx, cafeID)
		return err
	})
	g.Go(func() (err error) {
		up, err = s.repo.HasVote(gctx, domain.VoteUp, userID, cafeID)
		return err
	})
	g.Go(func() (err error) {
		down, err = s.repo.HasVote(gctx, domain.VoteDown, userID, cafeID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	status := &domain.VoteStatus{CafeID: cafeID, Upvotes: cafe.Upvotes, Downvotes: cafe.Downvotes}
	switch {
	case up:
		status.Vote = domain.VoteUp
	case down:
		status.Vote = domain.VoteDown
	}
	return status, nil
}

func nonNil(rows []domain.Cafe) []domain.Cafe {
	if rows == nil {
		return []domain.Cafe{}
	}
	return rows
}
