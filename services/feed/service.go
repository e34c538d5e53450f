// Package feed builds activity feeds from bookmarks, reviews and votes.
package feed

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brewmap/brewmap/internal/domain"
	"github.com/brewmap/brewmap/internal/errors"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
	"github.com/brewmap/brewmap/internal/present"
	feedsupabase "github.com/brewmap/brewmap/services/feed/supabase"
)

// Page size bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// Following lists the users a user follows.
type Following interface {
	GetFollowingIDs(ctx context.Context, userID string) ([]string, error)
}

// Profiles resolves actors.
type Profiles interface {
	GetProfiles(ctx context.Context, ids []string) (map[string]*domain.Profile, error)
}

// Cafes resolves the cafes activity refers to.
type Cafes interface {
	GetCafes(ctx context.Context, ids []string) (map[string]*domain.Cafe, error)
}

// Config configures the feed service.
type Config struct {
	Repo         feedsupabase.RepositoryInterface
	Following    Following
	Profiles     Profiles
	Cafes        Cafes
	DefaultLimit int
	MaxLimit     int
	Metrics      *metrics.Metrics
	Logger       *logging.Logger
}

// Service assembles feed pages.
type Service struct {
	repo         feedsupabase.RepositoryInterface
	following    Following
	profiles     Profiles
	cafes        Cafes
	defaultLimit int
	maxLimit     int
	metrics      *metrics.Metrics
	log          *logging.Logger
	now          func() time.Time
}

// New creates a feed service.
func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("feed")
	}
	s := &Service{
		repo:         cfg.Repo,
		following:    cfg.Following,
		profiles:     cfg.Profiles,
		cafes:        cfg.Cafes,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		metrics:      cfg.Metrics,
		log:          log,
		now:          time.Now,
	}
	if s.maxLimit <= 0 {
		s.maxLimit = MaxLimit
	}
	if s.defaultLimit <= 0 || s.defaultLimit > s.maxLimit {
		s.defaultLimit = min(DefaultLimit, s.maxLimit)
	}
	return s
}

func (s *Service) clamp(limit int) int {
	switch {
	case limit <= 0:
		return s.defaultLimit
	case limit > s.maxLimit:
		return s.maxLimit
	}
	return limit
}

// GetFriendsFeed returns activity of the users userID follows.
func (s *Service) GetFriendsFeed(ctx context.Context, userID string, limit int, cursor string) (*domain.Feed, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.Unauthorized("")
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	ids, err := s.following.GetFollowingIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, ids, s.clamp(limit), after)
}

// GetUserActivity returns the activity of one user.
func (s *Service) GetUserActivity(ctx context.Context, userID string, limit int, cursor string) (*domain.Feed, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.Validation("user id is required")
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, []string{userID}, s.clamp(limit), after)
}

func (s *Service) page(ctx context.Context, userIDs []string, limit int, after *feedsupabase.Cursor) (*domain.Feed, error) {
	feed := &domain.Feed{Items: []domain.FeedActivity{}}
	if len(userIDs) == 0 {
		return feed, nil
	}

	var (
		mu       sync.Mutex
		merged   []domain.FeedActivity
		failures = map[domain.ActivityKind]error{}
		g        errgroup.Group
	)
	for _, kind := range domain.ActivityKinds {
		g.Go(func() error {
			// One extra row per source tells whether another page exists.
			rows, err := s.repo.List(ctx, kind, userIDs, after, limit+1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[kind] = err
				return nil
			}
			merged = append(merged, rows...)
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == len(domain.ActivityKinds) {
		return nil, failures[domain.ActivityKinds[0]]
	}
	for _, kind := range domain.ActivityKinds {
		if err, ok := failures[kind]; ok {
			feed.Degraded = append(feed.Degraded, kind)
			s.metrics.RecordFeedDegraded(string(kind))
			s.log.WithContext(ctx).WithError(err).WithField("source", string(kind)).Warn("feed source failed")
		}
	}

	items := dedupe(merged, after)
	sort.Slice(items, func(i, j int) bool { return newer(items[i], items[j]) })
	if len(items) > limit {
		items = items[:limit]
		feed.NextCursor = EncodeCursor(items[limit-1])
	}

	s.enrich(ctx, items)
	feed.Items = items
	return feed, nil
}

type itemKey struct {
	kind domain.ActivityKind
	id   string
}

func dedupe(items []domain.FeedActivity, c *feedsupabase.Cursor) []domain.FeedActivity {
	seen := make(map[itemKey]struct{}, len(items))
	out := make([]domain.FeedActivity, 0, len(items))
	for _, it := range items {
		k := itemKey{it.Kind, it.ID}
		if _, dup := seen[k]; dup || !after(it, c) {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// enrich attaches actors, cafes and display text. Lookup failures leave
// the items bare.
func (s *Service) enrich(ctx context.Context, items []domain.FeedActivity) {
	if len(items) == 0 {
		return
	}
	actorIDs := make([]string, 0, len(items))
	cafeIDs := make([]string, 0, len(items))
	for _, it := range items {
		actorIDs = append(actorIDs, it.ActorID)
		cafeIDs = append(cafeIDs, it.CafeID)
	}

	var (
		profiles map[string]*domain.Profile
		cafes    map[string]*domain.Cafe
		g        errgroup.Group
	)
	g.Go(func() error {
		var err error
		if profiles, err = s.profiles.GetProfiles(ctx, actorIDs); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("feed actor lookup failed")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if cafes, err = s.cafes.GetCafes(ctx, cafeIDs); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("feed cafe lookup failed")
		}
		return nil
	})
	_ = g.Wait()

	now := s.now()
	for i := range items {
		it := &items[i]
		it.Actor = profiles[it.ActorID]
		cafeName := ""
		if c, ok := cafes[it.CafeID]; ok {
			it.Cafe = c.Summary()
			cafeName = c.Name
		}
		it.RelativeTime = present.RelativeTime(it.CreatedAt, now)
		it.Summary = present.ActivitySummary(it.Kind, cafeName)
	}
}
