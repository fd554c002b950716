// Package app builds the analysis pipeline from configuration. The server and
// the worker share it so both processes agree on the store, cache, limiter,
// lock and dispatch setup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/aianalysis/internal/ai"
	"github.com/kiranshivaraju/aianalysis/internal/ai/mock"
	"github.com/kiranshivaraju/aianalysis/internal/cache"
	"github.com/kiranshivaraju/aianalysis/internal/config"
	"github.com/kiranshivaraju/aianalysis/internal/dispatch"
	"github.com/kiranshivaraju/aianalysis/internal/jobs"
	"github.com/kiranshivaraju/aianalysis/internal/lock"
	"github.com/kiranshivaraju/aianalysis/internal/metrics"
	"github.com/kiranshivaraju/aianalysis/internal/ratelimit"
	"github.com/kiranshivaraju/aianalysis/internal/records"
	"github.com/kiranshivaraju/aianalysis/internal/store"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App owns the long-lived resources of one process.
type App struct {
	Config       *config.Config
	DB           *pgxpool.Pool
	Store        *store.PostgresStore
	Cache        cache.Cache // nil when REDIS_URL is unset
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Generator    models.Generator
	Orchestrator *jobs.Orchestrator

	// Exactly one of Pool and Queue is set.
	Pool  *dispatch.Pool
	Queue *dispatch.RedisQueue

	redis *cache.RedisCache
}

// New connects to Postgres (applying migrations) and, when configured, Redis,
// then assembles the orchestrator. The in-process pool is created but not
// started; call StartPool.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.DB = pool
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		a.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")
	a.Store = store.NewPostgresStore(pool)

	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		a.redis = rc
		a.Cache = rc
		if err := rc.Ping(ctx); err != nil {
			// The cache is optional; every user of it falls back in process.
			slog.Warn("redis unreachable at startup, continuing with fallbacks", "error", err)
		} else {
			slog.Info("redis connected")
		}
	} else {
		slog.Info("redis not configured, using in-process lock and rate limiter")
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	gen, err := NewGenerator(cfg.AI)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	a.Generator = gen
	slog.Info("AI provider initialized", "provider", gen.Name(), "mock", cfg.AI.MockMode)

	var dispatcher dispatch.Dispatcher
	if cfg.Jobs.UseQueue {
		a.Queue = dispatch.NewRedisQueue(a.redis.Client(), cfg.Jobs.QueueName)
		dispatcher = a.Queue
	} else {
		a.Pool = dispatch.NewPool(cfg.Jobs.MaxConcurrency, cfg.Jobs.QueueSize)
		dispatcher = a.Pool
	}

	a.Orchestrator = jobs.New(jobs.Deps{
		Store:      a.Store,
		Records:    a.recordReader(),
		Generator:  gen,
		Cache:      a.Cache,
		Limiter:    ratelimit.New(a.Cache, ratelimit.DefaultBucket, cfg.Jobs.RateLimitRPS, a.Metrics),
		Locks:      lock.NewDedup(a.Cache, cfg.Jobs.DedupLockTTL, a.Metrics),
		Dispatcher: dispatcher,
		Metrics:    a.Metrics,
	}, jobs.Options{
		RetryMaxAttempts: cfg.Jobs.RetryMaxAttempts,
		RetryBackoff:     cfg.Jobs.RetryBackoff,
		CacheTTL:         cfg.Jobs.CacheTTL,
		SyncPathLock:     cfg.Jobs.SyncPathLock,
		DefaultParams: models.GenerationParams{
			Temperature: cfg.AI.DefaultTemperature,
			MaxTokens:   cfg.AI.DefaultMaxTokens,
		},
	})

	return a, nil
}

// NewGenerator returns the configured provider, or the canned mock provider
// when mock mode is on, bounded by the inference timeout and guarded by the
// circuit breaker.
func NewGenerator(cfg config.AIConfig) (models.Generator, error) {
	var gen models.Generator
	if cfg.MockMode {
		gen = ai.WithTimeout(mock.NewMockProvider(), cfg.InferenceTimeout)
	} else {
		p, err := ai.NewProvider(cfg)
		if err != nil {
			return nil, err
		}
		gen = p
	}
	return ai.WithBreaker(gen, cfg.BreakerFailures, cfg.BreakerCooldown), nil
}

func (a *App) recordReader() records.Reader {
	if a.Config.Records.BaseURL == "" {
		return a.Store
	}
	slog.Info("reading learning records over HTTP", "base_url", a.Config.Records.BaseURL)
	return records.NewHTTPClient(a.Config.Records.BaseURL, a.Config.Records.Token, a.Config.Records.Timeout)
}

// StartPool launches the in-process workers. It is a no-op in queue mode.
func (a *App) StartPool(ctx context.Context) {
	if a.Pool != nil {
		a.Pool.Start(ctx, a.Orchestrator.Process)
	}
}

// MetricsHandler serves the process registry.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry})
}

// Shutdown drains the in-process pool within ctx and releases connections.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.Pool != nil {
		err = a.Pool.Stop(ctx)
	}
	a.Close()
	return err
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
