package geospatial

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/halcyon-data/mlprep/internal/cluster"
)

// coordinateParams is the persisted form of a fitted CoordinateTransformer.
type coordinateParams struct {
	KMin        int       `json:"k_min"`
	KMax        int       `json:"k_max"`
	MaxIter     int       `json:"max_iter"`
	Seed        uint64    `json:"seed,omitempty"`
	Seeded      bool      `json:"seeded,omitempty"`
	Sensitivity float64   `json:"sensitivity"`
	Ks          []int     `json:"ks,omitempty"`
	Distortions []float64 `json:"distortion_scores,omitempty"`
	OptimalK    int       `json:"optimal_k,omitempty"`
	KneeFound   bool      `json:"knee_found,omitempty"`
	Fitted      bool      `json:"fitted"`
}

func marshalCoordinateParams(t *CoordinateTransformer) ([]byte, error) {
	return json.Marshal(coordinateParams{
		KMin:        t.kMin,
		KMax:        t.kMax,
		MaxIter:     t.maxIter,
		Seed:        t.seed,
		Seeded:      t.seeded,
		Sensitivity: t.sensitivity,
		Ks:          t.ks,
		Distortions: t.distortions,
		OptimalK:    t.optimalK,
		KneeFound:   t.kneeFound,
		Fitted:      t.fitted,
	})
}

func unmarshalCoordinateParams(t *CoordinateTransformer, data []byte) error {
	var p coordinateParams
	if err := json.Unmarshal(data, &p); err != nil {
		return eris.Wrap(err, "geospatial: unmarshal transformer params")
	}
	t.kMin = p.KMin
	t.kMax = p.KMax
	t.maxIter = p.MaxIter
	t.seed = p.Seed
	t.seeded = p.Seeded
	t.sensitivity = p.Sensitivity
	if t.maxIter <= 0 {
		t.maxIter = cluster.DefaultMaxIter
	}
	if t.sensitivity <= 0 {
		t.sensitivity = cluster.DefaultSensitivity
	}
	t.ks = p.Ks
	t.distortions = p.Distortions
	t.optimalK = p.OptimalK
	t.kneeFound = p.KneeFound
	t.fitted = p.Fitted
	t.transformed = false
	return nil
}
