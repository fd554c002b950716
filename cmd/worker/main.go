// Package main runs the queue worker: it consumes analysis jobs from the
// durable Redis queue that the API server fills when AI_USE_QUEUE is set.
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

	"github.com/kiranshivaraju/aianalysis/internal/app"
	"github.com/kiranshivaraju/aianalysis/internal/config"
)

const metricsShutdownTimeout = 5 * time.Second

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Jobs.UseQueue {
		return errors.New("worker requires AI_USE_QUEUE=true")
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Metrics only; the worker serves no API.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "error", err)
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	slog.Info("worker consuming",
		"queue", cfg.Jobs.QueueName,
		"consumers", cfg.Jobs.MaxConcurrency,
		"job_timeout", cfg.Jobs.JobTimeout,
	)
	err = a.Queue.Consume(ctx, a.Orchestrator.Process, cfg.Jobs.MaxConcurrency, cfg.Jobs.JobTimeout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume queue: %w", err)
	}

	slog.Info("worker stopped")
	return nil
}
