// Package main is the entrypoint for the PhotoForge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arvindpillai/photoforge/internal/api"
	"github.com/arvindpillai/photoforge/internal/api/handler"
	"github.com/arvindpillai/photoforge/internal/api/response"
	"github.com/arvindpillai/photoforge/internal/cache"
	"github.com/arvindpillai/photoforge/internal/config"
	"github.com/arvindpillai/photoforge/internal/metrics"
	"github.com/arvindpillai/photoforge/internal/pipeline"
	"github.com/arvindpillai/photoforge/internal/pool"
	"github.com/arvindpillai/photoforge/internal/queue"
	"github.com/arvindpillai/photoforge/internal/store"
	"github.com/arvindpillai/photoforge/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "store", cfg.Store.Driver, "pipeline_backend", cfg.Pipeline.Backend, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job store
	var jobStore store.JobStore
	switch cfg.Store.Driver {
	case "postgres":
		dbPool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer dbPool.Close()

		if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database connected, migrations applied")
		jobStore = store.NewPostgresStore(dbPool)
	case "memory":
		slog.Warn("using in-memory job store; jobs will not survive a restart")
		jobStore = store.NewMemoryStore()
	}

	// Optional Redis status cache
	var statusCache cache.Cache
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		statusCache = redisCache
	}

	// Styling backend and session pool
	stages, err := pipeline.NewStages(cfg.Pipeline)
	if err != nil {
		return fmt.Errorf("create pipeline backend: %w", err)
	}

	sessions, err := pool.New[models.StyleSession](pipeline.SessionFactory{Stages: stages}, pool.Config{
		MaxSize:             cfg.Sessions.MaxSize,
		MinSize:             cfg.Sessions.MinSize,
		AcquireTimeout:      cfg.Sessions.AcquireTimeout,
		IdleTimeout:         cfg.Sessions.IdleTimeout,
		MaxLifetime:         cfg.Sessions.MaxLifetime,
		HealthCheckInterval: cfg.Sessions.HealthCheckInterval,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("create session pool: %w", err)
	}
	defer sessions.Shutdown()
	metrics.RegisterPoolStats("style_sessions", sessions.Stats)

	buffers := pool.NewBufferPool()
	processor := pipeline.NewStyleProcessor(stages, sessions, buffers, slog.Default())

	// Queue
	queueOpts := []queue.Option{}
	if statusCache != nil {
		queueOpts = append(queueOpts, queue.WithCache(statusCache))
	}
	jobQueue, err := queue.New(jobStore, processor, queue.Config{
		MaxRetries: cfg.Queue.MaxRetries,
		BaseDelay:  cfg.Queue.BaseDelay,
		MaxDelay:   cfg.Queue.MaxDelay,
	}, slog.Default(), queueOpts...)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer jobQueue.Shutdown()

	// Background maintenance
	reaper := queue.NewReaper(jobStore, cfg.Reaper.Threshold, cfg.Reaper.Interval, slog.Default())
	go reaper.Run(ctx)

	janitor := queue.NewRetentionJanitor(jobStore, cfg.Retention.Window, cfg.Retention.Schedule, slog.Default())
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("start retention janitor: %w", err)
	}
	defer janitor.Stop()

	// Router
	deps := api.Dependencies{
		HealthHandler:     healthHandler(jobStore, statusCache),
		SubmitJobHandler:  handler.NewSubmitJobHandler(jobQueue),
		PollJobHandler:    handler.NewPollJobHandler(jobQueue, statusCache),
		QueueStatsHandler: handler.NewQueueStatsHandler(jobQueue),
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks store and cache connectivity.
func healthHandler(s store.JobStore, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"store": "ok",
			"cache": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["store"] = "degraded"
		}
		if c != nil {
			if err := c.Ping(r.Context()); err != nil {
				checks["cache"] = "degraded"
			}
		} else {
			checks["cache"] = "disabled"
		}

		if checks["store"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
