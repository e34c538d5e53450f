// Package service provides the shared HTTP service scaffold: the router,
// standard /health and /info endpoints, background workers and route
// guards.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/brewmap/brewmap/internal/logging"
)

const healthCheckTimeout = 5 * time.Second

// HealthProbe checks a critical dependency.
type HealthProbe func(ctx context.Context) error

// Worker is a background component started and stopped with the service.
type Worker interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// BaseConfig contains shared configuration for the service.
type BaseConfig struct {
	Name    string
	Version string
	Logger  *logging.Logger
	// Probe checks the hosted platform. Nil means always healthy.
	Probe HealthProbe
}

// BaseService owns the router and the lifecycle of background workers.
type BaseService struct {
	name    string
	version string
	router  *mux.Router
	log     *logging.Logger
	probe   HealthProbe

	statsFn func() map[string]any
	workers []Worker

	mu       sync.Mutex
	started  []Worker
	stopOnce sync.Once

	healthMu        sync.RWMutex
	platformHealthy bool
	lastHealthErr   string
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService with an empty router.
func NewBase(cfg BaseConfig) *BaseService {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault(cfg.Name)
	}
	return &BaseService{
		name:            cfg.Name,
		version:         cfg.Version,
		router:          mux.NewRouter(),
		log:             log,
		probe:           cfg.Probe,
		platformHealthy: true,
	}
}

func (b *BaseService) Name() string { return b.name }

func (b *BaseService) Version() string { return b.version }

// Router returns the root router.
func (b *BaseService) Router() *mux.Router { return b.router }

// Logger returns the service logger.
func (b *BaseService) Logger() *logging.Logger { return b.log }

// WithStats sets a statistics provider for the /info endpoint.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddWorker registers a background worker started by Start.
func (b *BaseService) AddWorker(w Worker) *BaseService {
	b.workers = append(b.workers, w)
	return b
}

// WorkerCount returns the number of registered workers.
func (b *BaseService) WorkerCount() int {
	return len(b.workers)
}

// Start launches workers in registration order. If one fails, the ones
// already started are stopped again.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.workers {
		if err := w.Start(ctx); err != nil {
			b.stopStartedLocked(ctx)
			return fmt.Errorf("start %s: %w", w.Name(), err)
		}
		b.started = append(b.started, w)
	}
	return nil
}

// Stop stops workers in reverse order. It is safe to call more than once.
func (b *BaseService) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		err = b.stopStartedLocked(ctx)
	})
	return err
}

func (b *BaseService) stopStartedLocked(ctx context.Context) error {
	var firstErr error
	for i := len(b.started) - 1; i >= 0; i-- {
		w := b.started[i]
		if err := w.Stop(ctx); err != nil {
			b.log.WithError(err).WithField("worker", w.Name()).Warn("worker stop failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	b.started = nil
	return firstErr
}

// CheckHealth refreshes the cached health state by probing the platform.
func (b *BaseService) CheckHealth(ctx context.Context) {
	healthy, lastErr := true, ""
	if b.probe != nil {
		ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		if err := b.probe(ctx); err != nil {
			healthy, lastErr = false, err.Error()
		}
	}

	b.healthMu.Lock()
	b.platformHealthy = healthy
	b.lastHealthErr = lastErr
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus probes and returns "healthy" or "unhealthy".
func (b *BaseService) HealthStatus(ctx context.Context) string {
	b.CheckHealth(ctx)
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	if !b.platformHealthy {
		return "unhealthy"
	}
	return "healthy"
}

// HealthDetails describes the most recent health state.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	details := map[string]any{
		"platform_reachable": b.platformHealthy,
		"workers":            len(b.workers),
	}
	if b.lastHealthErr != "" {
		details["platform_error"] = b.lastHealthErr
	}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.Truncate(time.Second).String()
	return details
}
