package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/place-engineering/sitelayers/internal/model"
	"github.com/place-engineering/sitelayers/pkg/geocode"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	address     TEXT NOT NULL,
	x           REAL NOT NULL DEFAULT 0,
	y           REAL NOT NULL DEFAULT 0,
	city        TEXT NOT NULL DEFAULT '',
	county      TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	layers      TEXT NOT NULL DEFAULT '[]',
	script_path TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	address      TEXT NOT NULL,
	x            REAL NOT NULL,
	y            REAL NOT NULL,
	city         TEXT NOT NULL DEFAULT '',
	county       TEXT NOT NULL DEFAULT '',
	score        REAL NOT NULL DEFAULT 0,
	cached_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts or replaces a run, assigning an ID when empty.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.RunRecord) error {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, address, x, y, city, county, outcome, layers, script_path, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Address, run.X, run.Y, run.City, run.County, string(run.Outcome),
		layers, run.ScriptPath, run.StartedAt.UTC(), durationMillis(run.Duration),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save run %s", run.ID)
	}
	return nil
}

const sqliteRunColumns = `id, address, x, y, city, county, outcome, layers, script_path, started_at, duration_ms`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs`
	var args []any
	if filter.Outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.limit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.RunRecord
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scanner) (*model.RunRecord, error) {
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

func (s *SQLiteStore) GetGeocode(ctx context.Context, key string) (*geocode.Location, bool, error) {
	var loc geocode.Location
	err := s.db.QueryRowContext(ctx,
		`SELECT x, y, city, county, score FROM geocode_cache WHERE address_hash = ?`, key,
	).Scan(&loc.X, &loc.Y, &loc.City, &loc.County, &loc.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get geocode")
	}
	return &loc, true, nil
}

func (s *SQLiteStore) PutGeocode(ctx context.Context, key, address string, loc *geocode.Location) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (address_hash, address, x, y, city, county, score, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (address_hash) DO UPDATE SET
			address = excluded.address, x = excluded.x, y = excluded.y,
			city = excluded.city, county = excluded.county, score = excluded.score,
			cached_at = excluded.cached_at`,
		key, address, loc.X, loc.Y, loc.City, loc.County, loc.Score, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put geocode")
}
