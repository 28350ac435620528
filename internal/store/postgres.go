package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/halcyon-data/mlprep/internal/cleaning"
	"github.com/halcyon-data/mlprep/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":     `INSERT INTO runs (id, dataset, kind, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"update_run":     `UPDATE runs SET status = $1, params = $2, optimal_k = $3, distortions = $4, error = $5, updated_at = $6 WHERE id = $7`,
	"get_run":        `SELECT id, dataset, kind, status, params, optimal_k, distortions, error, created_at, updated_at FROM runs WHERE id LIKE $1 || '%' LIMIT 2`,
	"save_freq":      `INSERT INTO freq_tables (dataset, column_name, entries, saved_at) VALUES ($1, $2, $3, $4) ON CONFLICT (dataset, column_name) DO UPDATE SET entries = excluded.entries, saved_at = excluded.saved_at`,
	"get_freq":       `SELECT entries FROM freq_tables WHERE dataset = $1 AND column_name = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
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
	dataset     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	params      JSONB,
	optimal_k   INTEGER,
	distortions JSONB,
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS freq_tables (
	dataset     TEXT NOT NULL,
	column_name TEXT NOT NULL,
	entries     JSONB NOT NULL,
	saved_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (dataset, column_name)
);

CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateRun inserts a pending run.
func (s *PostgresStore) CreateRun(ctx context.Context, dataset string, kind model.RunKind) (*model.Run, error) {
	now := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.NewString(),
		Dataset:   dataset,
		Kind:      kind,
		Status:    model.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, dataset, kind, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Dataset, string(run.Kind), string(run.Status), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create run")
	}
	return run, nil
}

// UpdateRunResult records the outcome of a run.
func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	distortions, err := json.Marshal(result.DistortionScores)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal distortion scores")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, params = $2, optimal_k = $3, distortions = $4, error = $5, updated_at = $6 WHERE id = $7`,
		string(result.Status), nullableJSON(result.Params), result.OptimalK, string(distortions),
		result.Error, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update run result")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

// GetRun fetches one run by ID. A unique ID prefix, as printed by the run
// listing, is accepted in place of the full ID.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, dataset, kind, status, params, optimal_k, distortions, error, created_at, updated_at FROM runs WHERE id LIKE $1 || '%' LIMIT 2`,
		runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	defer rows.Close()

	var matches []*model.Run
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: get run %s", runID)
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	switch len(matches) {
	case 0:
		return nil, eris.Errorf("postgres: run %s not found", runID)
	case 1:
		return matches[0], nil
	default:
		return nil, eris.Errorf("postgres: run id %s is ambiguous", runID)
	}
}

// ListRuns returns runs matching the filter, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, dataset, kind, status, params, optimal_k, distortions, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		query += ` AND kind = $` + itoa(len(args))
	}
	if filter.Dataset != "" {
		args = append(args, filter.Dataset)
		query += ` AND dataset = $` + itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// SaveFreqTable upserts a frequency table for a dataset column.
func (s *PostgresStore) SaveFreqTable(ctx context.Context, dataset string, table cleaning.FreqTable) error {
	entries, err := json.Marshal(table.Entries)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal freq entries")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO freq_tables (dataset, column_name, entries, saved_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (dataset, column_name) DO UPDATE SET entries = excluded.entries, saved_at = excluded.saved_at`,
		dataset, table.Column, string(entries), time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save freq table")
}

// GetFreqTable fetches a saved frequency table.
func (s *PostgresStore) GetFreqTable(ctx context.Context, dataset, column string) (*cleaning.FreqTable, error) {
	var entries string
	err := s.pool.QueryRow(ctx,
		`SELECT entries FROM freq_tables WHERE dataset = $1 AND column_name = $2`,
		dataset, column,
	).Scan(&entries)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get freq table %s/%s", dataset, column)
	}
	table := &cleaning.FreqTable{Column: column}
	if err := json.Unmarshal([]byte(entries), &table.Entries); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal freq entries")
	}
	return table, nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		run         model.Run
		kind        string
		status      string
		params      *string
		optimalK    *int64
		distortions *string
		errMsg      *string
	)
	if err := row.Scan(&run.ID, &run.Dataset, &kind, &status, &params, &optimalK,
		&distortions, &errMsg, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Kind = model.RunKind(kind)
	run.Status = model.RunStatus(status)
	if params != nil && *params != "" {
		run.Params = json.RawMessage(*params)
	}
	if optimalK != nil {
		run.OptimalK = int(*optimalK)
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	if distortions != nil && *distortions != "" {
		if err := json.Unmarshal([]byte(*distortions), &run.DistortionScores); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
