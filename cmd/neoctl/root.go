package main

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/neotracker/neotracker/internal/app"
	"github.com/neotracker/neotracker/internal/catalog"
	"github.com/neotracker/neotracker/internal/ingest"
	"github.com/neotracker/neotracker/internal/platform/cache"
	"github.com/neotracker/neotracker/internal/platform/db"
)

// Ingester runs one ingestion batch inline.
type Ingester interface {
	Run(ctx context.Context, params ingest.Params) (ingest.Summary, error)
}

// QueueOps enqueues ingestion and reads queue statistics.
type QueueOps interface {
	Trigger(ctx context.Context, params ingest.Params) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// Collaborators are resolved lazily from the environment the first time a
// command needs them; tests assign them directly.
var (
	cfg      *app.Config
	logger   *slog.Logger
	ingester Ingester
	queueOps QueueOps
	records  catalog.RecordSource
	cleanup  []func()
)

var rootCmd = &cobra.Command{
	Use:           "neoctl",
	Short:         "Operate the NEO close-approach tracker",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		cleanup = nil
	},
}

func loadConfig() (*app.Config, error) {
	if cfg != nil {
		return cfg, nil
	}
	loaded, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg = loaded
	logger = app.NewLogger(cfg)
	return cfg, nil
}

func ensureIngester(ctx context.Context) (Ingester, error) {
	if ingester != nil {
		return ingester, nil
	}
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	pool, err := db.New(ctx, conf.PGDSN, db.Options{MaxConns: conf.PGMaxConns})
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, pool.Close)

	var invalidator ingest.Invalidator
	redisClient, err := cache.New(ctx, cache.Options{Addr: conf.RedisAddr, Password: conf.RedisPassword, DB: conf.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, cache will not be bumped", slog.Any("error", err))
	} else {
		cleanup = append(cleanup, func() { _ = redisClient.Close() })
		invalidator = catalog.NewCache(redisClient, conf.CatalogCacheTTL)
	}

	ingester = ingest.NewService(
		ingest.NewClient(conf.IngestSourceURL, conf.IngestRatePerSec),
		catalog.NewRepository(pool, logger),
		invalidator,
		logger,
	)
	return ingester, nil
}

func ensureQueueOps() (QueueOps, error) {
	if queueOps != nil {
		return queueOps, nil
	}
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	jobsCLI := NewJobsCLI(asynq.RedisClientOpt{Addr: conf.RedisAddr, Password: conf.RedisPassword, DB: conf.RedisDB}, conf.JobRetention)
	cleanup = append(cleanup, func() { _ = jobsCLI.Close() })
	queueOps = jobsCLI
	return queueOps, nil
}

func ensureRecords(ctx context.Context) (catalog.RecordSource, error) {
	if records != nil {
		return records, nil
	}
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	pool, err := db.New(ctx, conf.PGDSN, db.Options{MaxConns: conf.PGMaxConns})
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, pool.Close)
	records = catalog.NewRepository(pool, logger)
	return records, nil
}

// defaultParams fills ingestion flags the operator left unset from config.
func defaultParams(p ingest.Params) ingest.Params {
	if conf, err := loadConfig(); err == nil {
		if p.DistMax <= 0 {
			p.DistMax = conf.IngestDistMax
		}
		if p.Limit <= 0 {
			p.Limit = conf.IngestLimit
		}
	}
	return p.WithDefaults()
}
