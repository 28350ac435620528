package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/halcyon-data/mlprep/internal/encode"
	"github.com/halcyon-data/mlprep/internal/model"
)

type embedRequest struct {
	Dataset    string   `json:"dataset"`
	Key        string   `json:"key"`
	Values     []string `json:"values"`
	Dimension  int      `json:"dimension"`
	OOVBuckets int      `json:"oov_buckets"`
}

type embedResponse struct {
	RunID   string      `json:"run_id"`
	Vocab   []string    `json:"vocab"`
	Vectors [][]float32 `json:"vectors"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "values are required")
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if req.Dataset == "" {
		req.Dataset = "inline"
	}
	if req.Dimension == 0 {
		req.Dimension = s.embed.Dimension
	}
	if req.OOVBuckets == 0 {
		req.OOVBuckets = s.embed.OOVBuckets
	}

	ctx := r.Context()
	run, err := s.store.CreateRun(ctx, req.Dataset, model.RunKindEmbed)
	if err != nil {
		zap.L().Error("create run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create run failed")
		return
	}

	e := encode.NewEmbedder(
		encode.WithKey(req.Key),
		encode.WithDimension(req.Dimension),
		encode.WithOOVBuckets(req.OOVBuckets),
	)
	vectors, err := e.FitTransform(req.Values)
	if err != nil {
		s.markFailed(ctx, run.ID, err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	params, _ := json.Marshal(map[string]any{
		"key":         req.Key,
		"dimension":   req.Dimension,
		"oov_buckets": req.OOVBuckets,
		"vocab_size":  len(e.Vocab()),
	})
	if err := s.store.UpdateRunResult(ctx, run.ID, &model.RunResult{
		Status: model.RunStatusComplete,
		Params: params,
	}); err != nil {
		zap.L().Error("update run", zap.String("run", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "update run failed")
		return
	}

	writeJSON(w, http.StatusOK, embedResponse{
		RunID:   run.ID,
		Vocab:   e.Vocab(),
		Vectors: vectors,
	})
}
