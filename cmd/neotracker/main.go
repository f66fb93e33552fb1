package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/neotracker/neotracker/internal/app"
	"github.com/neotracker/neotracker/internal/catalog"
	"github.com/neotracker/neotracker/internal/dashboard"
	jobmetrics "github.com/neotracker/neotracker/internal/jobs"
	"github.com/neotracker/neotracker/internal/observability"
	"github.com/neotracker/neotracker/internal/platform/cache"
	"github.com/neotracker/neotracker/internal/platform/db"
	"github.com/neotracker/neotracker/internal/refresh"
	"github.com/neotracker/neotracker/jobs"
)

// refreshRecorder feeds refresh outcomes to the job metrics and keeps the
// catalog size gauge in line with the served snapshot.
type refreshRecorder struct {
	jobs    *jobmetrics.Metrics
	metrics *observability.Metrics
	store   *catalog.Store
}

func (r refreshRecorder) ObserveRefresh(outcome string, d time.Duration) {
	r.jobs.ObserveRefresh(outcome, d)
	r.metrics.SetCatalogSize(r.store.Snapshot().Len())
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(asynqOpts, cfg.JobRetention)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynqOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	catalogCache := catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	fetcher := catalog.NewCachedFetcher(catalog.NewRepository(dbpool, logger), catalogCache, logger)

	// The wait gets three quarters of the run budget so the reload after it
	// still has time to query Postgres.
	waitBudget := cfg.RefreshTimeout - cfg.RefreshTimeout/4
	var waiter refresh.Waiter
	switch cfg.RefreshWaitMode {
	case app.WaitModeFixed:
		waiter = refresh.NewFixedDelay(cfg.RefreshSettleDelay)
	default:
		waiter = refresh.NewTaskWaiter(inspector, cfg.RefreshPollInterval, waitBudget)
	}

	// Cancelled at shutdown so an in-flight refresh does not hold the process
	// for the whole refresh timeout.
	runsCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	metrics := observability.NewMetrics()
	store := catalog.NewStore()
	orchestrator := refresh.New(refresh.Config{
		Trigger: jobClient,
		Fetcher: fetcher,
		Waiter:  waiter,
		Store:   store,
		Logger:  logger,
		Metrics: refreshRecorder{jobs: jobmetrics.NewMetrics(metrics.Registerer()), metrics: metrics, store: store},
		Timeout: cfg.RefreshTimeout,
		Base:    runsCtx,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DashboardHandler: dashboard.NewHandler(logger, orchestrator),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := orchestrator.Reload(gctx); err != nil {
			logger.Error("initial catalog load, serving an empty catalog", slog.Any("error", err))
		}
		return nil
	})
	g.Go(func() error {
		err := catalogCache.ListenForInvalidation(gctx, func(version int64) {
			logger.Info("catalog cache bumped", slog.Int64("version", version))
			if _, err := orchestrator.Reload(gctx); err != nil && !errors.Is(err, refresh.ErrRefreshInProgress) {
				logger.Warn("reload after ingestion", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Warn("subscribe catalog invalidation", slog.Any("error", err))
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		cancelRuns()
		orchestrator.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
