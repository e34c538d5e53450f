package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
)

// Reconciler is the job the scheduler runs.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Scheduler runs tally reconciliation on a cron schedule.
type Scheduler struct {
	reconciler Reconciler
	schedule   string
	timeout    time.Duration
	log        *logging.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler. A nil reconciler yields a scheduler
// whose Start is a no-op, which is how the job is disabled when no
// database is configured.
func NewScheduler(reconciler Reconciler, schedule string, log *logging.Logger, m *metrics.Metrics) *Scheduler {
	if log == nil {
		log = logging.NewDefault("brewmap-jobs")
	}
	return &Scheduler{
		reconciler: reconciler,
		schedule:   schedule,
		timeout:    2 * time.Minute,
		log:        log,
		metrics:    m,
	}
}

func (s *Scheduler) Name() string { return "tally-reconciler" }

// Enabled reports whether Start will schedule anything.
func (s *Scheduler) Enabled() bool { return s.reconciler != nil }

// Start validates the schedule and begins running the job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.reconciler == nil {
		s.log.Info("tally reconciliation disabled: no database configured")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.run); err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	s.running = true
	c.Start()

	s.log.WithFields(map[string]interface{}{"schedule": s.schedule}).Info("tally reconciliation scheduled")
	return nil
}

// Stop cancels a running job and waits for it, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.cron = nil
	s.mu.Unlock()

	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("tally reconciliation stopped")
	return nil
}

// RunOnce reconciles immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.reconciler.Reconcile(ctx)
	s.metrics.RecordReconcile(n, err)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("tally reconciliation failed")
		return 0, err
	}
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"corrected":   n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("tally reconciliation finished")
	return n, nil
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	_, _ = s.RunOnce(ctx)
}
