// Package main is the entrypoint for the analysis API server.
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

	"github.com/kiranshivaraju/aianalysis/internal/api"
	"github.com/kiranshivaraju/aianalysis/internal/api/handler"
	mw "github.com/kiranshivaraju/aianalysis/internal/api/middleware"
	"github.com/kiranshivaraju/aianalysis/internal/api/response"
	"github.com/kiranshivaraju/aianalysis/internal/app"
	"github.com/kiranshivaraju/aianalysis/internal/config"
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
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel,
	})))
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"env", cfg.Server.Env,
		"use_queue", cfg.Jobs.UseQueue,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Build the pipeline: database, cache, provider, orchestrator
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	// Workers outlive the signal context so queued jobs can drain.
	a.StartPool(context.WithoutCancel(ctx))

	// 3. Build router with dependencies
	var cacheCheck pinger
	if a.Cache != nil {
		cacheCheck = a.Cache
	}
	deps := api.Dependencies{
		Auth:      mw.NewAuth(cfg.Auth.APIKeyHash),
		RateLimit: mw.NewRateLimit(a.Cache, cfg.Server.HTTPRatePerMinute),

		HealthHandler:  healthHandler(a.Store, cacheCheck),
		MetricsHandler: a.MetricsHandler(),
		QueueHandler:   handler.NewQueueHandler(a.Orchestrator),
		SyncHandler:    handler.NewSyncHandler(a.Orchestrator),
		GetJobHandler:  handler.NewGetJobHandler(a.Orchestrator),
	}
	if !deps.Auth.Enabled() {
		slog.Warn("SERVICE_API_KEY_HASH not set, analysis endpoints are unauthenticated")
	}

	router := api.NewRouter(deps)

	// 4. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AI.InferenceTimeout*2 + 30*time.Second,
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

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown: stop accepting requests, then drain the pool.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		slog.Error("pipeline shutdown", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity. The cache is optional:
// losing it degrades the service but does not fail the check.
func healthHandler(db pinger, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		switch {
		case c == nil:
			checks["cache"] = "disabled"
		case c.Ping(r.Context()) != nil:
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		status := "ok"
		if checks["cache"] == "degraded" {
			status = "degraded"
		}
		response.JSON(w, map[string]any{
			"status":   status,
			"services": checks,
		})
	}
}
