package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/neotracker/neotracker/internal/ingest"
	jobmetrics "github.com/neotracker/neotracker/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Ingester runs one ingestion batch.
type Ingester interface {
	Run(ctx context.Context, params ingest.Params) (ingest.Summary, error)
}

// IngestJob handles TaskIngestCloseApproaches.
type IngestJob struct {
	Ingester Ingester
	Defaults ingest.Params
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewIngestJob wires dependencies for the ingestion handler. Defaults fill the
// fields a task payload leaves unset.
func NewIngestJob(ingester Ingester, defaults ingest.Params, logger *slog.Logger, metrics *jobmetrics.Metrics) *IngestJob {
	return &IngestJob{Ingester: ingester, Defaults: defaults, Logger: logger, Metrics: metrics}
}

// Handle processes ingestion tasks.
func (j *IngestJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ingester == nil {
		return errors.New("ingest job: handler not configured")
	}
	var payload IngestPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	params := j.merge(payload.Params)

	tracker := j.metrics().Track(TaskIngestCloseApproaches)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.RequestedBy != "" {
		logger = logger.With(slog.String("requested_by", payload.RequestedBy))
	}
	if id, ok := asynq.GetTaskID(ctx); ok {
		logger = logger.With(slog.String("task_id", id))
	}
	logger.Info("starting close-approach ingestion")

	summary, err := j.Ingester.Run(ctx, params)
	if err != nil {
		resultErr = err
		logger.Error("ingest close approaches", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddRecords("saved", summary.Saved)
	j.metrics().AddRecords("rejected", summary.Rejected)

	logger.Info("completed close-approach ingestion",
		slog.String("batch_id", summary.BatchID),
		slog.Int("saved", summary.Saved),
		slog.Int("rejected", summary.Rejected),
	)
	return resultErr
}

func (j *IngestJob) merge(p ingest.Params) ingest.Params {
	if p.DistMax <= 0 {
		p.DistMax = j.Defaults.DistMax
	}
	if p.Limit <= 0 {
		p.Limit = j.Defaults.Limit
	}
	if p.DateMin == "" {
		p.DateMin = j.Defaults.DateMin
	}
	if p.DateMax == "" {
		p.DateMax = j.Defaults.DateMax
	}
	return p.WithDefaults()
}

func (j *IngestJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIngestCloseApproaches))
	}
	return slog.Default().With(slog.String("job", TaskIngestCloseApproaches))
}

func (j *IngestJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
