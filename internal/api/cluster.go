package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/halcyon-data/mlprep/internal/geospatial"
	"github.com/halcyon-data/mlprep/internal/model"
)

type clusterRequest struct {
	Dataset     string       `json:"dataset"`
	Points      [][2]float64 `json:"points"`
	KMin        int          `json:"k_min"`
	KMax        int          `json:"k_max"`
	MaxIter     int          `json:"max_iter"`
	Seed        uint64       `json:"seed"`
	Sensitivity float64      `json:"sensitivity"`
}

type clusterResponse struct {
	RunID            string    `json:"run_id"`
	OptimalK         int       `json:"optimal_k"`
	KneeFound        bool      `json:"knee_found"`
	Labels           []int     `json:"labels"`
	DistortionScores []float64 `json:"distortion_scores"`
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	var req clusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Points) == 0 {
		writeError(w, http.StatusBadRequest, "points are required")
		return
	}
	if req.Dataset == "" {
		req.Dataset = "inline"
	}
	s.applyClusterDefaults(&req)

	ctx := r.Context()
	run, err := s.store.CreateRun(ctx, req.Dataset, model.RunKindCluster)
	if err != nil {
		zap.L().Error("create run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create run failed")
		return
	}

	X := mat.NewDense(len(req.Points), 2, nil)
	for i, p := range req.Points {
		X.Set(i, 0, p[0])
		X.Set(i, 1, p[1])
	}

	t := geospatial.NewCoordinateTransformer(
		geospatial.WithKRange(req.KMin, req.KMax),
		geospatial.WithMaxIter(req.MaxIter),
		geospatial.WithSeed(req.Seed),
		geospatial.WithSensitivity(req.Sensitivity),
	)
	if _, err := t.FitTransform(X); err != nil {
		s.markFailed(ctx, run.ID, err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	params, _ := json.Marshal(req)
	if err := s.store.UpdateRunResult(ctx, run.ID, &model.RunResult{
		Status:           model.RunStatusComplete,
		Params:           params,
		OptimalK:         t.OptimalK(),
		DistortionScores: t.DistortionScores(),
	}); err != nil {
		zap.L().Error("update run", zap.String("run", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "update run failed")
		return
	}

	writeJSON(w, http.StatusOK, clusterResponse{
		RunID:            run.ID,
		OptimalK:         t.OptimalK(),
		KneeFound:        t.KneeFound(),
		Labels:           t.Labels(),
		DistortionScores: t.DistortionScores(),
	})
}

func (s *Server) applyClusterDefaults(req *clusterRequest) {
	if req.KMin == 0 {
		req.KMin = s.cluster.KMin
	}
	if req.KMax == 0 {
		req.KMax = s.cluster.KMax
	}
	if req.MaxIter == 0 {
		req.MaxIter = s.cluster.MaxIter
	}
	if req.Seed == 0 {
		req.Seed = s.cluster.Seed
	}
	if req.Sensitivity == 0 {
		req.Sensitivity = s.cluster.Sensitivity
	}
}

func (s *Server) markFailed(ctx context.Context, runID string, cause error) {
	err := s.store.UpdateRunResult(ctx, runID, &model.RunResult{
		Status: model.RunStatusFailed,
		Error:  cause.Error(),
	})
	if err != nil {
		zap.L().Warn("record run failure", zap.String("run", runID), zap.Error(err))
	}
}
