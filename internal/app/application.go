// Package app composes the brewmap services over one platform client. The
// API server and the command line tool both build their service graph here.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/brewmap/brewmap/internal/cache"
	"github.com/brewmap/brewmap/internal/config"
	"github.com/brewmap/brewmap/internal/jobs"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
	"github.com/brewmap/brewmap/services/auth"
	"github.com/brewmap/brewmap/services/bookmarks"
	bookmarkssupabase "github.com/brewmap/brewmap/services/bookmarks/supabase"
	"github.com/brewmap/brewmap/services/cafes"
	cafessupabase "github.com/brewmap/brewmap/services/cafes/supabase"
	"github.com/brewmap/brewmap/services/common/service"
	"github.com/brewmap/brewmap/services/feed"
	feedsupabase "github.com/brewmap/brewmap/services/feed/supabase"
	"github.com/brewmap/brewmap/services/followers"
	followerssupabase "github.com/brewmap/brewmap/services/followers/supabase"
	"github.com/brewmap/brewmap/services/profiles"
	profilessupabase "github.com/brewmap/brewmap/services/profiles/supabase"
	"github.com/brewmap/brewmap/services/reviews"
	reviewssupabase "github.com/brewmap/brewmap/services/reviews/supabase"
	"github.com/brewmap/brewmap/services/submissions"
	submissionssupabase "github.com/brewmap/brewmap/services/submissions/supabase"
	"github.com/brewmap/brewmap/supabase/client"
)

// Options carries infrastructure shared with the caller. Nil fields get
// defaults.
type Options struct {
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
}

// Application ties the domain services together and owns their shared
// infrastructure.
type Application struct {
	Config  *config.Config
	Client  *client.Client
	Cache   cache.Cache
	Metrics *metrics.Metrics

	Auth        *auth.Service
	Profiles    *profiles.Service
	Followers   *followers.Service
	Cafes       *cafes.Service
	Reviews     *reviews.Service
	Bookmarks   *bookmarks.Service
	Submissions *submissions.Service
	Feed        *feed.Service

	log     *logging.Logger
	closers []func() error
}

// NewClient builds the platform client described by cfg.
func NewClient(cfg *config.Config, httpClient *http.Client) (*client.Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Supabase.Timeout}
	}
	clientCfg := client.Config{
		URL:        cfg.SupabaseURL,
		AnonKey:    cfg.SupabaseAnonKey,
		ServiceKey: cfg.SupabaseServiceKey,
		HTTPClient: httpClient,
	}
	if r := cfg.Supabase.Retry; r.Enabled {
		res := client.DefaultResilienceConfig()
		if r.MaxRetries > 0 {
			res.Retry.MaxRetries = r.MaxRetries
		}
		if r.InitialBackoff > 0 {
			res.Retry.InitialBackoff = r.InitialBackoff
		}
		if r.MaxBackoff > 0 {
			res.Retry.MaxBackoff = r.MaxBackoff
		}
		if r.FailureThreshold > 0 {
			res.CircuitBreaker.FailureThreshold = r.FailureThreshold
		}
		if r.OpenTimeout > 0 {
			res.CircuitBreaker.Timeout = r.OpenTimeout
		}
		clientCfg.Resilience = res
	}
	return client.New(clientCfg)
}

// New wires every service. A configured REDIS_URL backs the read cache;
// otherwise it lives in process memory.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Application, error) {
	log := opts.Logger
	if log == nil {
		log = logging.NewDefault("brewmap")
	}

	c, err := NewClient(cfg, opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("create platform client: %w", err)
	}

	a := &Application{
		Config:  cfg,
		Client:  c,
		Metrics: opts.Metrics,
		log:     log,
	}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "brewmap:")
		if err != nil {
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.Cache = rc
		a.closers = append(a.closers, rc.Close)
	} else {
		mem := cache.NewMemory()
		stop := make(chan struct{})
		mem.StartCleanup(cfg.Cache.TTL, stop)
		a.Cache = mem
		a.closers = append(a.closers, func() error {
			close(stop)
			return nil
		})
	}

	a.Profiles = profiles.New(profiles.Config{
		Repo:   profilessupabase.NewRepository(c),
		Logger: log,
	})
	a.Auth = auth.New(auth.Config{
		Provider:     c.Auth(),
		Profiles:     a.Profiles,
		AdminUserIDs: cfg.AdminUserIDs(),
		ServiceRole:  c.HasServiceKey(),
		Logger:       log,
	})
	a.Followers = followers.New(followers.Config{
		Repo:     followerssupabase.NewRepository(c),
		Profiles: a.Profiles,
		Metrics:  a.Metrics,
		Logger:   log,
	})
	a.Cafes = cafes.New(cafes.Config{
		Repo: cafessupabase.NewRepository(c, cafessupabase.Tables{
			Upvotes:   cfg.Tables.Upvotes,
			Downvotes: cfg.Tables.Downvotes,
		}),
		Cache:    a.Cache,
		CacheTTL: cfg.Cache.TTL,
		Metrics:  a.Metrics,
		Logger:   log,
	})
	a.Reviews = reviews.New(reviews.Config{
		Repo:    reviewssupabase.NewRepository(c),
		Metrics: a.Metrics,
		Logger:  log,
	})
	a.Bookmarks = bookmarks.New(bookmarks.Config{
		Repo:   bookmarkssupabase.NewRepository(c),
		Logger: log,
	})
	a.Submissions = submissions.New(submissions.Config{
		Repo:    submissionssupabase.NewRepository(c),
		Images:  submissionssupabase.NewImages(c, cfg.Storage.Bucket),
		Cafes:   a.Cafes,
		Metrics: a.Metrics,
		Logger:  log,
	})
	a.Feed = feed.New(feed.Config{
		Repo: feedsupabase.NewRepository(c, feedsupabase.Tables{
			Upvotes:   cfg.Tables.Upvotes,
			Downvotes: cfg.Tables.Downvotes,
		}),
		Following:    a.Followers,
		Profiles:     a.Profiles,
		Cafes:        a.Cafes,
		DefaultLimit: cfg.Feed.DefaultLimit,
		MaxLimit:     cfg.Feed.MaxLimit,
		Metrics:      a.Metrics,
		Logger:       log,
	})
	return a, nil
}

// Routes lists the services that expose HTTP endpoints.
func (a *Application) Routes() []service.RouteRegistrar {
	return []service.RouteRegistrar{
		a.Auth,
		a.Profiles,
		a.Followers,
		a.Cafes,
		a.Reviews,
		a.Bookmarks,
		a.Submissions,
		a.Feed,
	}
}

// Reconciler opens DATABASE_URL and returns the vote tally reconciler. It
// returns nil without error when no database is configured.
func (a *Application) Reconciler(ctx context.Context) (*jobs.TallyReconciler, error) {
	if a.Config.DatabaseURL == "" {
		return nil, nil
	}
	db, err := jobs.Open(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	r, err := jobs.NewTallyReconciler(db, jobs.Tables{
		Cafes:     "cafes",
		Upvotes:   a.Config.Tables.Upvotes,
		Downvotes: a.Config.Tables.Downvotes,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases connections opened by New and Reconciler.
func (a *Application) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
