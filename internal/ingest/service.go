package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neotracker/neotracker/internal/catalog"
)

// Source fetches a CAD API payload.
type Source interface {
	Fetch(ctx context.Context, params Params) (*Payload, error)
}

// Writer persists validated records.
type Writer interface {
	SaveRecords(ctx context.Context, records []catalog.Record) (int, error)
}

// Invalidator drops cached record sets once new data is stored.
type Invalidator interface {
	Bump(ctx context.Context) (int64, error)
}

// Summary describes one ingestion run.
type Summary struct {
	BatchID      string        `json:"batch_id"`
	Fetched      int           `json:"fetched"`
	Saved        int           `json:"saved"`
	Rejected     int           `json:"rejected"`
	CacheVersion int64         `json:"cache_version"`
	Duration     time.Duration `json:"duration"`
}

// Service runs ingestion: fetch, validate, store, invalidate.
type Service struct {
	source Source
	writer Writer
	cache  Invalidator
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the ingestion collaborators. cache may be nil.
func NewService(source Source, writer Writer, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, writer: writer, cache: cache, logger: logger, now: time.Now}
}

// Run ingests one batch. Invalid rows are dropped and counted; the valid rows
// are stored in one transaction. A failed cache bump fails the run even though
// the rows were stored.
func (s *Service) Run(ctx context.Context, params Params) (Summary, error) {
	if s == nil || s.source == nil || s.writer == nil {
		return Summary{}, errors.New("ingest: service not configured")
	}
	start := s.now()
	params = params.WithDefaults()
	summary := Summary{BatchID: uuid.NewString()}
	logger := s.logger.With(slog.String("batch_id", summary.BatchID))
	logger.Info("fetching close approaches", slog.Float64("dist_max", params.DistMax), slog.Int("limit", params.Limit))

	payload, err := s.source.Fetch(ctx, params)
	if err != nil {
		return summary, err
	}
	if payload == nil {
		payload = &Payload{}
	}
	records, rejected := payload.Records()
	summary.Fetched = len(payload.Data)
	summary.Rejected = len(rejected)
	for _, rej := range rejected {
		logger.Debug("rejected close approach", slog.Any("error", rej))
	}

	saved, err := s.writer.SaveRecords(ctx, records)
	if err != nil {
		return summary, err
	}
	summary.Saved = saved

	if s.cache != nil && saved > 0 {
		ver, err := s.cache.Bump(ctx)
		if err != nil {
			// The rows are stored but readers keep the old cached set until
			// the TTL; fail the run so the job retries the (idempotent) batch.
			logger.Error("bump catalog cache", slog.Any("error", err))
			summary.Duration = s.now().Sub(start)
			return summary, catalog.NewTransportError("bump catalog cache", err)
		}
		summary.CacheVersion = ver
	}
	summary.Duration = s.now().Sub(start)
	logger.Info("ingestion stored",
		slog.Int("fetched", summary.Fetched),
		slog.Int("saved", summary.Saved),
		slog.Int("rejected", summary.Rejected),
		slog.Duration("duration", summary.Duration),
	)
	return summary, nil
}
