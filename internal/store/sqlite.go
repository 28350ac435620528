package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/halcyon-data/mlprep/internal/cleaning"
	"github.com/halcyon-data/mlprep/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. An empty path defaults to mlprep.db in the working directory.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "mlprep.db"
	}
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	dataset     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	params      TEXT,
	optimal_k   INTEGER,
	distortions TEXT,
	error       TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS freq_tables (
	dataset     TEXT NOT NULL,
	column_name TEXT NOT NULL,
	entries     TEXT NOT NULL,
	saved_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (dataset, column_name)
);

CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a pending run.
func (s *SQLiteStore) CreateRun(ctx context.Context, dataset string, kind model.RunKind) (*model.Run, error) {
	now := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.NewString(),
		Dataset:   dataset,
		Kind:      kind,
		Status:    model.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, dataset, kind, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Dataset, string(run.Kind), string(run.Status), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create run")
	}
	return run, nil
}

// UpdateRunResult records the outcome of a run.
func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	distortions, err := json.Marshal(result.DistortionScores)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal distortion scores")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, params = ?, optimal_k = ?, distortions = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(result.Status), nullableJSON(result.Params), result.OptimalK, string(distortions),
		result.Error, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update run result")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}

// GetRun fetches one run by ID. A unique ID prefix, as printed by the run
// listing, is accepted in place of the full ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset, kind, status, params, optimal_k, distortions, error, created_at, updated_at
		 FROM runs WHERE id LIKE ? LIMIT 2`, runID+"%")
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	defer rows.Close()

	var matches []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	switch len(matches) {
	case 0:
		return nil, eris.Errorf("sqlite: run %s not found", runID)
	case 1:
		return matches[0], nil
	default:
		return nil, eris.Errorf("sqlite: run id %s is ambiguous", runID)
	}
}

// ListRuns returns runs matching the filter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, dataset, kind, status, params, optimal_k, distortions, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Dataset != "" {
		query += ` AND dataset = ?`
		args = append(args, filter.Dataset)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// SaveFreqTable upserts a frequency table for a dataset column.
func (s *SQLiteStore) SaveFreqTable(ctx context.Context, dataset string, table cleaning.FreqTable) error {
	entries, err := json.Marshal(table.Entries)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal freq entries")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO freq_tables (dataset, column_name, entries, saved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (dataset, column_name) DO UPDATE SET entries = excluded.entries, saved_at = excluded.saved_at`,
		dataset, table.Column, string(entries), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save freq table")
}

// GetFreqTable fetches a saved frequency table.
func (s *SQLiteStore) GetFreqTable(ctx context.Context, dataset, column string) (*cleaning.FreqTable, error) {
	var entries string
	err := s.db.QueryRowContext(ctx,
		`SELECT entries FROM freq_tables WHERE dataset = ? AND column_name = ?`,
		dataset, column,
	).Scan(&entries)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get freq table %s/%s", dataset, column)
	}
	table := &cleaning.FreqTable{Column: column}
	if err := json.Unmarshal([]byte(entries), &table.Entries); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal freq entries")
	}
	return table, nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanRun.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var (
		run         model.Run
		kind        string
		status      string
		params      sql.NullString
		optimalK    sql.NullInt64
		distortions sql.NullString
		errMsg      sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Dataset, &kind, &status, &params, &optimalK,
		&distortions, &errMsg, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Kind = model.RunKind(kind)
	run.Status = model.RunStatus(status)
	if params.Valid && params.String != "" {
		run.Params = json.RawMessage(params.String)
	}
	if optimalK.Valid {
		run.OptimalK = int(optimalK.Int64)
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if distortions.Valid && distortions.String != "" {
		if err := json.Unmarshal([]byte(distortions.String), &run.DistortionScores); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

// nullableJSON renders raw JSON for storage, mapping empty to NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
