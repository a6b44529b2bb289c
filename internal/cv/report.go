package cv

import (
	"time"

	"github.com/qsarlab/molgraph/internal/dataset"
	"github.com/qsarlab/molgraph/internal/model"
)

// RunStatus is the lifecycle state of a cross-validation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// FoldReport records the outcome of one cross-validation round.
type FoldReport struct {
	Fold      int           `json:"fold"`
	ModelID   string        `json:"model_id"`
	BestEpoch int           `json:"best_epoch"`
	TrainSize int           `json:"train_size"`
	ValSize   int           `json:"val_size"`
	TestSize  int           `json:"test_size"`
	Metrics   Metrics       `json:"metrics"`
	Duration  time.Duration `json:"duration"`
}

// Report is the full record of a run: dataset provenance, configuration,
// per-fold outcomes and the aggregate summary.
type Report struct {
	RunID      string              `json:"run_id"`
	Dataset    string              `json:"dataset"`
	Property   dataset.Property    `json:"property"`
	Source     dataset.Source      `json:"source"`
	Config     model.Config        `json:"config"`
	Seed       int64               `json:"seed"`
	FilterOut  dataset.FilterStats `json:"filter_stats"`
	GraphDrops int                 `json:"graph_drops"`
	Records    int                 `json:"records"`
	Folds      []FoldReport        `json:"folds"`
	Summary    Summary             `json:"summary"`
	Status     RunStatus           `json:"status"`
	Error      string              `json:"error,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}
