// Package model holds the shared types persisted by the store.
package model

import (
	"encoding/json"
	"time"
)

// RunKind identifies which transformer a run fitted.
type RunKind string

// Run kinds.
const (
	RunKindCluster RunKind = "cluster"
	RunKindEmbed   RunKind = "embed"
)

// RunStatus tracks the lifecycle of a fit run.
type RunStatus string

// Run statuses.
const (
	RunStatusPending  RunStatus = "pending"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one persisted transformer fit: its configuration, learned
// parameters, and sweep diagnostics.
type Run struct {
	ID               string          `json:"id"`
	Dataset          string          `json:"dataset"`
	Kind             RunKind         `json:"kind"`
	Status           RunStatus       `json:"status"`
	Params           json.RawMessage `json:"params,omitempty"`
	OptimalK         int             `json:"optimal_k,omitempty"`
	DistortionScores []float64       `json:"distortion_scores,omitempty"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RunResult carries the outcome of a fit back into the store.
type RunResult struct {
	Status           RunStatus       `json:"status"`
	Params           json.RawMessage `json:"params,omitempty"`
	OptimalK         int             `json:"optimal_k,omitempty"`
	DistortionScores []float64       `json:"distortion_scores,omitempty"`
	Error            string          `json:"error,omitempty"`
}
