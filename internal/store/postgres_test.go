package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-data/mlprep/internal/cleaning"
	"github.com/halcyon-data/mlprep/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "housing.csv", "cluster", "pending", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "housing.csv", model.RunKindCluster)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusPending, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM runs WHERE id LIKE \$1`).
		WithArgs("nonexistent-run").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "dataset", "kind", "status", "params", "optimal_k", "distortions", "error", "created_at", "updated_at",
		}))

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	params := `{"k_min":2,"k_max":8}`
	distortions := `[9.5,6.1,4.2]`
	rows := pgxmock.NewRows([]string{
		"id", "dataset", "kind", "status", "params", "optimal_k", "distortions", "error", "created_at", "updated_at",
	}).AddRow("run-1", "housing.csv", "cluster", "complete", &params, int64p(5), &distortions, (*string)(nil), now, now)

	mock.ExpectQuery(`SELECT .* FROM runs WHERE id LIKE \$1`).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, model.RunKindCluster, run.Kind)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 5, run.OptimalK)
	assert.Equal(t, []float64{9.5, 6.1, 4.2}, run.DistortionScores)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_AmbiguousPrefix(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "dataset", "kind", "status", "params", "optimal_k", "distortions", "error", "created_at", "updated_at",
	}).
		AddRow("7f3c91a2-aaaa", "a.csv", "cluster", "complete", (*string)(nil), (*int64)(nil), (*string)(nil), (*string)(nil), now, now).
		AddRow("7f3c91a2-bbbb", "b.csv", "cluster", "complete", (*string)(nil), (*int64)(nil), (*string)(nil), (*string)(nil), now, now)

	mock.ExpectQuery(`SELECT .* FROM runs WHERE id LIKE \$1`).
		WithArgs("7f3c91a2").
		WillReturnRows(rows)

	_, err := s.GetRun(context.Background(), "7f3c91a2")
	assert.ErrorContains(t, err, "ambiguous")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("complete", pgxmock.AnyArg(), 6, pgxmock.AnyArg(), "", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateRunResult(context.Background(), "run-1", &model.RunResult{
		Status:           model.RunStatusComplete,
		OptimalK:         6,
		DistortionScores: []float64{5, 4, 3},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunResult_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), 0, pgxmock.AnyArg(), "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunResult(context.Background(), "missing", &model.RunResult{
		Status: model.RunStatusFailed,
		Error:  "boom",
	})
	assert.ErrorContains(t, err, "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveFreqTable_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("housing.csv", "ocean_proximity", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveFreqTable(context.Background(), "housing.csv", cleaning.FreqTable{
		Column:  "ocean_proximity",
		Entries: []cleaning.FreqEntry{{Value: "INLAND", Count: 3, Proportion: 1}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFreqTable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"entries"}).
		AddRow(`[{"value":"INLAND","count":3,"proportion":1}]`)

	mock.ExpectQuery(`SELECT entries FROM freq_tables`).
		WithArgs("housing.csv", "ocean_proximity").
		WillReturnRows(rows)

	table, err := s.GetFreqTable(context.Background(), "housing.csv", "ocean_proximity")
	require.NoError(t, err)
	assert.Equal(t, "ocean_proximity", table.Column)
	require.Len(t, table.Entries, 1)
	assert.Equal(t, cleaning.FreqEntry{Value: "INLAND", Count: 3, Proportion: 1}, table.Entries[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func int64p(v int64) *int64 { return &v }
