package catalog

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neotracker/neotracker/internal/platform/db"
)

const listApproachesSQL = `
SELECT a.designation,
       a.absolute_magnitude::float8,
       c.approach_date,
       c.distance_au::float8,
       c.velocity_km_s::float8
FROM asteroids a
JOIN close_approaches c ON a.id = c.asteroid_id
ORDER BY c.approach_date DESC, a.designation, c.id`

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository reads and writes the close-approach catalog in PostgreSQL.
type Repository struct {
	db     dbtx
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository builds a Repository on top of the pool.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: pool, pool: pool, logger: logger}
}

// FetchRecords loads the whole catalog. Rows that break the record invariants
// are dropped and logged; they do not fail the fetch.
func (r *Repository) FetchRecords(ctx context.Context) ([]Record, error) {
	if r.pool == nil {
		return nil, NewTransportError("fetch records", errPoolMissing)
	}
	rows, err := r.db.Query(ctx, listApproachesSQL)
	if err != nil {
		return nil, NewTransportError("fetch records", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			rec       Record
			magnitude pgtype.Float8
			approach  pgtype.Timestamptz
		)
		if err := rows.Scan(&rec.Designation, &magnitude, &approach, &rec.DistanceAU, &rec.VelocityKmS); err != nil {
			return nil, NewTransportError("scan record", err)
		}
		if approach.Valid {
			rec.ApproachTime = approach.Time.UTC()
		}
		if magnitude.Valid {
			h := magnitude.Float64
			rec.AbsoluteMagnitude = &h
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, NewTransportError("fetch records", err)
	}

	valid, rejected := Sanitize(records)
	if len(rejected) > 0 {
		r.logger.Warn("dropped invalid catalog rows", slog.Int("dropped", len(rejected)), slog.Any("first", rejected[0]))
	}
	return valid, nil
}

// SaveRecords upserts the records in a single transaction using the
// save_asteroid and save_approach database functions. Records must already be
// validated.
func (r *Repository) SaveRecords(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if r.pool == nil {
		return 0, NewTransportError("save records", errPoolMissing)
	}
	saved := 0
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		txRepo := &Repository{db: tx, logger: r.logger}
		for _, rec := range records {
			if err := txRepo.saveRecord(ctx, rec); err != nil {
				return err
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, NewTransportError("save records", err)
	}
	return saved, nil
}

func (r *Repository) saveRecord(ctx context.Context, rec Record) error {
	magnitude := pgtype.Float8{}
	if rec.AbsoluteMagnitude != nil {
		magnitude = pgtype.Float8{Float64: *rec.AbsoluteMagnitude, Valid: true}
	}
	var asteroidID int64
	if err := r.db.QueryRow(ctx, `SELECT save_asteroid($1, $2)`, rec.Designation, magnitude).Scan(&asteroidID); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `SELECT save_approach($1, $2, $3, $4)`, asteroidID, rec.ApproachTime, rec.DistanceAU, rec.VelocityKmS)
	return err
}
