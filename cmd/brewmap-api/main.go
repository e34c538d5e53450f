// Command brewmap-api serves the brewmap HTTP API in front of the hosted
// platform.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brewmap/brewmap/internal/app"
	"github.com/brewmap/brewmap/internal/config"
	"github.com/brewmap/brewmap/internal/httputil"
	"github.com/brewmap/brewmap/internal/jobs"
	"github.com/brewmap/brewmap/internal/logging"
	"github.com/brewmap/brewmap/internal/metrics"
	"github.com/brewmap/brewmap/internal/middleware"
	"github.com/brewmap/brewmap/services/common/service"
)

const (
	serviceName = "brewmap-api"
	version     = "1.0.0"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before the environment")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)
	httputil.SetLogger(logger)
	m := metrics.New()

	application, err := app.New(ctx, cfg, app.Options{Logger: logger, Metrics: m})
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer application.Close()

	auth := middleware.NewAuthMiddleware([]byte(cfg.SupabaseJWTSecret), logger, nil).
		WithRoleResolver(application.Auth.ResolveRole)
	guards := service.Guards{
		Optional: auth.Optional,
		User:     auth.Handler,
		Admin: func(next http.Handler) http.Handler {
			return auth.Handler(middleware.RequireAdmin(next))
		},
	}

	base := service.NewBase(service.BaseConfig{
		Name:    serviceName,
		Version: version,
		Logger:  logger,
		Probe:   application.Client.Auth().Health,
	})
	base.WithStats(func() map[string]any {
		stats := map[string]any{
			"cache_ttl":    cfg.Cache.TTL.String(),
			"redis":        cfg.RedisURL != "",
			"service_role": application.Client.HasServiceKey(),
		}
		if transport, ok := application.Client.TransportStats(); ok {
			stats["platform"] = transport
		}
		return stats
	})

	reconciler, err := application.Reconciler(ctx)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if reconciler != nil {
		base.AddWorker(jobs.NewScheduler(reconciler, cfg.Jobs.TallySchedule, logger, m))
	} else {
		logger.WithContext(ctx).Info("DATABASE_URL not set; tally reconciliation disabled")
	}

	router := base.Router()
	tracing := middleware.NewTracingMiddleware(logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	router.Use(
		tracing.Handler,
		tracing.Recover,
		middleware.NewCORSMiddleware(cfg.CORSOrigins()).Handler,
		middleware.MetricsMiddleware(serviceName, m),
		limiter.Handler,
	)
	base.RegisterStandardRoutes()
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	base.Mount("/api/v1", guards, application.Routes()...)

	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	limiter.StartCleanup(5*time.Minute, stopCleanup)

	if err := base.Start(ctx); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.WithContext(ctx).WithFields(map[string]interface{}{
			"addr": server.Addr,
			"env":  cfg.Env,
		}).Info("brewmap-api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.WithContext(ctx).Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("http shutdown")
	}
	if err := base.Stop(shutdownCtx); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("worker shutdown")
	}
	cancel()
}
