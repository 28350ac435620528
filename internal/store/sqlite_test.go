package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-data/mlprep/internal/cleaning"
	"github.com/halcyon-data/mlprep/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "housing.csv", model.RunKindCluster)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusPending, run.Status)

	result := &model.RunResult{
		Status:           model.RunStatusComplete,
		Params:           json.RawMessage(`{"k_min":4,"k_max":12}`),
		OptimalK:         6,
		DistortionScores: []float64{10.5, 7.2, 5.1, 4.8},
	}
	require.NoError(t, s.UpdateRunResult(ctx, run.ID, result))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "housing.csv", got.Dataset)
	assert.Equal(t, model.RunKindCluster, got.Kind)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 6, got.OptimalK)
	assert.Equal(t, []float64{10.5, 7.2, 5.1, 4.8}, got.DistortionScores)
	assert.JSONEq(t, `{"k_min":4,"k_max":12}`, string(got.Params))
}

func TestSQLiteUpdateMissingRun(t *testing.T) {
	s := newTestSQLite(t)
	err := s.UpdateRunResult(context.Background(), "no-such-run", &model.RunResult{
		Status: model.RunStatusFailed,
	})
	assert.ErrorContains(t, err, "not found")
}

func TestSQLiteGetMissingRun(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetRun(context.Background(), "no-such-run")
	assert.ErrorContains(t, err, "not found")
}

func TestSQLiteGetRunByPrefix(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "housing.csv", model.RunKindCluster)
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, "other.csv", model.RunKindEmbed)
	require.NoError(t, err)

	// The 8-char prefix shown by the run listing resolves to the full run.
	got, err := s.GetRun(ctx, run.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)

	// An empty prefix matches every run.
	_, err = s.GetRun(ctx, "")
	assert.ErrorContains(t, err, "ambiguous")
}

func TestSQLiteListRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.CreateRun(ctx, "a.csv", model.RunKindCluster)
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, "b.csv", model.RunKindEmbed)
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, "a.csv", model.RunKindEmbed)
	require.NoError(t, err)

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	embeds, err := s.ListRuns(ctx, RunFilter{Kind: model.RunKindEmbed})
	require.NoError(t, err)
	assert.Len(t, embeds, 2)

	aOnly, err := s.ListRuns(ctx, RunFilter{Dataset: "a.csv"})
	require.NoError(t, err)
	assert.Len(t, aOnly, 2)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteFreqTableRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	table := cleaning.FreqTable{
		Column: "ocean_proximity",
		Entries: []cleaning.FreqEntry{
			{Value: "INLAND", Count: 2, Proportion: 0.5},
			{Value: "NEAR BAY", Count: 1, Proportion: 0.25},
		},
	}
	require.NoError(t, s.SaveFreqTable(ctx, "housing.csv", table))

	got, err := s.GetFreqTable(ctx, "housing.csv", "ocean_proximity")
	require.NoError(t, err)
	assert.Equal(t, table, *got)

	// Upsert replaces the previous entries.
	table.Entries = table.Entries[:1]
	require.NoError(t, s.SaveFreqTable(ctx, "housing.csv", table))
	got, err = s.GetFreqTable(ctx, "housing.csv", "ocean_proximity")
	require.NoError(t, err)
	assert.Len(t, got.Entries, 1)

	_, err = s.GetFreqTable(ctx, "housing.csv", "nope")
	assert.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	assert.ErrorContains(t, err, "unknown driver")
}

func TestOpenSQLiteDefault(t *testing.T) {
	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
