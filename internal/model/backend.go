package model

import (
	"context"

	"github.com/qsarlab/molgraph/internal/graph"
)

// Sample pairs a featurised molecular graph with its regression target.
// Targets travel to the backend already scaled; predictions come back in
// the same scale and are inverted by the caller.
type Sample struct {
	ID     string       `json:"id"`
	Graph  *graph.Graph `json:"graph"`
	Target float64      `json:"target"`
}

// TrainFoldRequest asks the backend to train one cross-validation round.
type TrainFoldRequest struct {
	RunID  string   `json:"run_id"`
	Fold   int      `json:"fold"`
	Config Config   `json:"config"`
	Train  []Sample `json:"train"`
	Val    []Sample `json:"val"`
}

// TrainFoldResult reports the trained checkpoint and validation curve.
type TrainFoldResult struct {
	// ModelID names the trained checkpoint for subsequent Predict calls.
	ModelID string `json:"model_id"`
	// BestEpoch is the epoch whose validation loss selected the checkpoint.
	BestEpoch int       `json:"best_epoch"`
	ValLoss   []float64 `json:"val_loss"`
}

// PredictRequest scores graphs with a trained checkpoint.
type PredictRequest struct {
	ModelID string `json:"model_id"`
	// IDs and Graphs are position-aligned.
	IDs    []string       `json:"ids"`
	Graphs []*graph.Graph `json:"graphs"`
	// WithEmbeddings asks for the readout embedding of each molecule in
	// addition to the prediction.
	WithEmbeddings bool `json:"with_embeddings,omitempty"`
}

// PredictResponse carries predictions aligned with the request order.
type PredictResponse struct {
	Predictions []float64 `json:"predictions"`
	// Embeddings is present only when the request asked for them.
	Embeddings [][]float32 `json:"embeddings,omitempty"`
}

// Status describes the backend's readiness.
type Status struct {
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Device  string `json:"device"`
}

// Backend is the training and inference service. Implementations must be
// safe for concurrent use; the fold runner calls TrainFold from several
// workers at once.
type Backend interface {
	TrainFold(ctx context.Context, req *TrainFoldRequest) (*TrainFoldResult, error)
	Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error)
	Status(ctx context.Context) (*Status, error)
	Close() error
}
