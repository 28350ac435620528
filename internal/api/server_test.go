package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/halcyon-data/mlprep/internal/cleaning"
	"github.com/halcyon-data/mlprep/internal/config"
	"github.com/halcyon-data/mlprep/internal/model"
	"github.com/halcyon-data/mlprep/internal/store"
)

func newTestServer(t *testing.T, limit rate.Limit, burst int) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), store.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "api_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := NewServer(st,
		config.ClusterConfig{KMin: 2, KMax: 6, MaxIter: 100, Seed: 7, Sensitivity: 1},
		config.EmbedConfig{OOVBuckets: 2, Dimension: 4},
	)
	return s.Router(limit, burst), st
}

// blobPoints lays out count points around four well-separated centers.
func blobPoints(count int) [][2]float64 {
	centers := [][2]float64{
		{-122.4, 37.8},
		{-118.2, 34.0},
		{-121.9, 36.6},
		{-117.1, 32.7},
	}
	points := make([][2]float64, count)
	for i := range points {
		c := centers[i%len(centers)]
		jitter := 0.01 * float64(i/len(centers))
		points[i] = [2]float64{c[0] + jitter, c[1] - jitter}
	}
	return points
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, rate.Inf, 1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestClusterEndpoint(t *testing.T) {
	h, _ := newTestServer(t, rate.Inf, 1)

	body, err := json.Marshal(map[string]any{
		"dataset": "blobs",
		"points":  blobPoints(60),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cluster", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		RunID            string    `json:"run_id"`
		OptimalK         int       `json:"optimal_k"`
		Labels           []int     `json:"labels"`
		DistortionScores []float64 `json:"distortion_scores"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.GreaterOrEqual(t, resp.OptimalK, 2)
	assert.LessOrEqual(t, resp.OptimalK, 6)
	assert.Len(t, resp.Labels, 60)
	assert.Len(t, resp.DistortionScores, 5)

	// The run is fetchable afterwards.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+resp.RunID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, resp.OptimalK, run.OptimalK)
}

func TestClusterEndpoint_NoPoints(t *testing.T) {
	h, _ := newTestServer(t, rate.Inf, 1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cluster", bytes.NewReader([]byte(`{"dataset":"x"}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClusterEndpoint_TooFewPoints(t *testing.T) {
	h, st := newTestServer(t, rate.Inf, 1)

	body, err := json.Marshal(map[string]any{"points": blobPoints(3)})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cluster", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// The failure is recorded on the run.
	runs, err := st.ListRuns(context.Background(), store.RunFilter{Kind: model.RunKindCluster, Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestEmbedEndpoint(t *testing.T) {
	h, _ := newTestServer(t, rate.Inf, 1)

	body, err := json.Marshal(map[string]any{
		"key":    "ocean_proximity",
		"values": []string{"INLAND", "NEAR BAY", "INLAND", "ISLAND"},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/embed", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		RunID   string      `json:"run_id"`
		Vocab   []string    `json:"vocab"`
		Vectors [][]float32 `json:"vectors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"INLAND", "ISLAND", "NEAR BAY"}, resp.Vocab)
	require.Len(t, resp.Vectors, 4)
	assert.Len(t, resp.Vectors[0], 4)
	// Repeated values share a row.
	assert.Equal(t, resp.Vectors[0], resp.Vectors[2])
}

func TestEmbedEndpoint_MissingKey(t *testing.T) {
	h, _ := newTestServer(t, rate.Inf, 1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/embed", bytes.NewReader([]byte(`{"values":["a"]}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRun_NotFound(t *testing.T) {
	h, _ := newTestServer(t, rate.Inf, 1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns_BadLimit(t *testing.T) {
	h, _ := newTestServer(t, rate.Inf, 1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFreqTable(t *testing.T) {
	h, st := newTestServer(t, rate.Inf, 1)

	err := st.SaveFreqTable(context.Background(), "housing.csv", cleaning.FreqTable{
		Column:  "ocean_proximity",
		Entries: []cleaning.FreqEntry{{Value: "INLAND", Count: 2, Proportion: 1}},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/freq/housing.csv/ocean_proximity", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var table cleaning.FreqTable
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, "ocean_proximity", table.Column)
	require.Len(t, table.Entries, 1)
	assert.Equal(t, 2, table.Entries[0].Count)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/freq/housing.csv/missing_column", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h, _ := newTestServer(t, 0, 1)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCORSHeaders(t *testing.T) {
	h, _ := newTestServer(t, rate.Inf, 1)

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
