// Package store persists transformer fit runs and frequency tables so the
// CLI can list history and reapply a previous fit.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/halcyon-data/mlprep/internal/cleaning"
	"github.com/halcyon-data/mlprep/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Kind    model.RunKind `json:"kind,omitempty"`
	Dataset string        `json:"dataset,omitempty"`
	Limit   int           `json:"limit,omitempty"`
	Offset  int           `json:"offset,omitempty"`
}

// Store is the persistence interface for fit runs and frequency tables.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, dataset string, kind model.RunKind) (*model.Run, error)
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Frequency tables
	SaveFreqTable(ctx context.Context, dataset string, table cleaning.FreqTable) error
	GetFreqTable(ctx context.Context, dataset, column string) (*cleaning.FreqTable, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures a store backend.
type Config struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// Open creates the configured store backend and runs migrations.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = NewSQLite(cfg.Path)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
