package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/neotracker/neotracker/internal/app"
	"github.com/neotracker/neotracker/internal/catalog"
	"github.com/neotracker/neotracker/internal/ingest"
	jobmetrics "github.com/neotracker/neotracker/internal/jobs"
	"github.com/neotracker/neotracker/internal/platform/cache"
	"github.com/neotracker/neotracker/internal/platform/db"
	"github.com/neotracker/neotracker/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	defaults := ingest.Params{DistMax: cfg.IngestDistMax, Limit: cfg.IngestLimit}
	service := ingest.NewService(
		ingest.NewClient(cfg.IngestSourceURL, cfg.IngestRatePerSec),
		catalog.NewRepository(pool, logger),
		catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		logger,
	)
	ingestJob := jobs.NewIngestJob(service, defaults, logger, jobmetrics.NewMetrics(nil))

	var cron []jobs.CronRegistration
	if cfg.IngestCron != "" {
		task, err := jobs.NewIngestTask(jobs.IngestPayload{Params: defaults, RequestedBy: "schedule"})
		if err != nil {
			logger.Error("build ingest task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec: cfg.IngestCron,
			Task: task,
			Options: []asynq.Option{
				asynq.Queue(jobs.QueueDefault),
				asynq.MaxRetry(3),
				asynq.Retention(cfg.JobRetention),
			},
		})
		logger.Info("scheduled ingestion enabled", slog.String("cron", cfg.IngestCron))
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskIngestCloseApproaches, Handler: ingestJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
