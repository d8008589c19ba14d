package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/place-engineering/sitelayers/internal/model"
	"github.com/place-engineering/sitelayers/pkg/geocode"
)

// Pool is the subset of *pgxpool.Pool used by the store; pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a small connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	address     TEXT NOT NULL,
	x           DOUBLE PRECISION NOT NULL DEFAULT 0,
	y           DOUBLE PRECISION NOT NULL DEFAULT 0,
	city        TEXT NOT NULL DEFAULT '',
	county      TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	layers      JSONB NOT NULL DEFAULT '[]',
	script_path TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	address      TEXT NOT NULL,
	x            DOUBLE PRECISION NOT NULL,
	y            DOUBLE PRECISION NOT NULL,
	city         TEXT NOT NULL DEFAULT '',
	county       TEXT NOT NULL DEFAULT '',
	score        DOUBLE PRECISION NOT NULL DEFAULT 0,
	cached_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	layers, err := marshalLayers(run.Layers)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, address, x, y, city, county, outcome, layers, script_path, started_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
			outcome = EXCLUDED.outcome, layers = EXCLUDED.layers,
			script_path = EXCLUDED.script_path, duration_ms = EXCLUDED.duration_ms`,
		run.ID, run.Address, run.X, run.Y, run.City, run.County, string(run.Outcome),
		layers, run.ScriptPath, run.StartedAt.UTC(), durationMillis(run.Duration),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save run %s", run.ID)
	}
	return nil
}

const postgresRunColumns = `id, address, x, y, city, county, outcome, layers::text, script_path, started_at, duration_ms`

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs`
	var args []any
	if filter.Outcome != "" {
		query += ` WHERE outcome = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`
		args = append(args, string(filter.Outcome))
	} else {
		query += ` ORDER BY started_at DESC LIMIT $1 OFFSET $2`
	}
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func scanPostgresRun(row pgx.Row) (*model.RunRecord, error) {
	var (
		run        model.RunRecord
		outcome    string
		layers     string
		durationMS int64
	)
	if err := row.Scan(&run.ID, &run.Address, &run.X, &run.Y, &run.City, &run.County,
		&outcome, &layers, &run.ScriptPath, &run.StartedAt, &durationMS); err != nil {
		return nil, err
	}
	run.Outcome = model.Outcome(outcome)
	run.Duration = millisDuration(durationMS)
	var err error
	if run.Layers, err = unmarshalLayers(layers); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *PostgresStore) GetGeocode(ctx context.Context, key string) (*geocode.Location, bool, error) {
	var loc geocode.Location
	err := s.pool.QueryRow(ctx,
		`SELECT x, y, city, county, score FROM geocode_cache WHERE address_hash = $1`, key,
	).Scan(&loc.X, &loc.Y, &loc.City, &loc.County, &loc.Score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get geocode")
	}
	return &loc, true, nil
}

func (s *PostgresStore) PutGeocode(ctx context.Context, key, address string, loc *geocode.Location) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO geocode_cache (address_hash, address, x, y, city, county, score, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			address = EXCLUDED.address,
			x = EXCLUDED.x,
			y = EXCLUDED.y,
			city = EXCLUDED.city,
			county = EXCLUDED.county,
			score = EXCLUDED.score,
			cached_at = now()`,
		key, address, loc.X, loc.Y, loc.City, loc.County, loc.Score,
	)
	return eris.Wrap(err, "postgres: put geocode")
}
