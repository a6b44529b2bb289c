package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsarlab/molgraph/internal/chem"
	"github.com/qsarlab/molgraph/internal/graph"
	"github.com/qsarlab/molgraph/pkg/errors"
)

func testGraph(t *testing.T, smiles string) *graph.Graph {
	t.Helper()
	mol, err := chem.ParseSMILES(smiles)
	require.NoError(t, err)
	g, err := graph.NewBuilder(graph.BuilderOptions{}).Build(mol)
	require.NoError(t, err)
	return g
}

func newTestBackend(t *testing.T, handler http.Handler) Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	b, err := NewHTTPBackend(HTTPClientOptions{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
		Retries: 2,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestTrainFoldRoundTrip(t *testing.T) {
	var got TrainFoldRequest
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/train", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(TrainFoldResult{ModelID: "m-1", BestEpoch: 12})
	}))

	req := &TrainFoldRequest{
		RunID:  "run-1",
		Fold:   3,
		Config: DefaultConfig(),
		Train:  []Sample{{ID: "a", Graph: testGraph(t, "CCO"), Target: 0.5}},
		Val:    []Sample{{ID: "b", Graph: testGraph(t, "CCN"), Target: -0.2}},
	}
	res, err := b.TrainFold(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "m-1", res.ModelID)
	assert.Equal(t, 12, res.BestEpoch)

	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 3, got.Fold)
	require.Len(t, got.Train, 1)
	assert.Equal(t, 3, got.Train[0].Graph.NumAtoms)
}

func TestTrainFoldRejectsBadConfig(t *testing.T) {
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not reach the server")
	}))

	cfg := DefaultConfig()
	cfg.Depth = 0
	_, err := b.TrainFold(context.Background(), &TrainFoldRequest{
		Config: cfg,
		Train:  []Sample{{ID: "a", Graph: testGraph(t, "CCO")}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestTrainFoldMissingModelID(t *testing.T) {
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(TrainFoldResult{})
	}))
	_, err := b.TrainFold(context.Background(), &TrainFoldRequest{
		Config: DefaultConfig(),
		Train:  []Sample{{ID: "a", Graph: testGraph(t, "CCO")}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeServingResponse))
}

func TestPredictAlignsWithRequest(t *testing.T) {
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/predict", r.URL.Path)
		var req PredictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := PredictResponse{Predictions: make([]float64, len(req.Graphs))}
		_ = json.NewEncoder(w).Encode(out)
	}))

	res, err := b.Predict(context.Background(), &PredictRequest{
		ModelID: "m-1",
		IDs:     []string{"a", "b"},
		Graphs:  []*graph.Graph{testGraph(t, "CCO"), testGraph(t, "c1ccccc1")},
	})
	require.NoError(t, err)
	assert.Len(t, res.Predictions, 2)
}

func TestPredictLengthMismatchFromServer(t *testing.T) {
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PredictResponse{Predictions: []float64{1}})
	}))
	_, err := b.Predict(context.Background(), &PredictRequest{
		ModelID: "m-1",
		IDs:     []string{"a", "b"},
		Graphs:  []*graph.Graph{testGraph(t, "CCO"), testGraph(t, "CCN")},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeServingResponse))
}

func TestPredictEmptyRequestShortCircuits(t *testing.T) {
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not reach the server")
	}))
	res, err := b.Predict(context.Background(), &PredictRequest{ModelID: "m-1"})
	require.NoError(t, err)
	assert.Empty(t, res.Predictions)
}

func TestPredictRetriesServerErrors(t *testing.T) {
	var calls int32
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "transient", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(PredictResponse{Predictions: []float64{0.1}})
	}))

	res, err := b.Predict(context.Background(), &PredictRequest{
		ModelID: "m-1",
		IDs:     []string{"a"},
		Graphs:  []*graph.Graph{testGraph(t, "CCO")},
	})
	require.NoError(t, err)
	assert.Len(t, res.Predictions, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPredictDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	_, err := b.Predict(context.Background(), &PredictRequest{
		ModelID: "m-1",
		IDs:     []string{"a"},
		Graphs:  []*graph.Graph{testGraph(t, "CCO")},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeServingResponse))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStatus(t *testing.T) {
	b := newTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Status{Ready: true, Version: "0.3.1", Device: "cuda:0"})
	}))
	st, err := b.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Ready)
	assert.Equal(t, "cuda:0", st.Device)
}

func TestNewHTTPBackendRequiresURL(t *testing.T) {
	_, err := NewHTTPBackend(HTTPClientOptions{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}
