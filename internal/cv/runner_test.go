package cv

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsarlab/molgraph/internal/dataset"
	"github.com/qsarlab/molgraph/internal/graph"
	"github.com/qsarlab/molgraph/internal/model"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// fakeBackend predicts the true label of every molecule. It refits the
// fold's scaler from the raw labels the test registered, so predictions
// come back in the scale the runner expects and invert to exact labels.
type fakeBackend struct {
	mu       sync.Mutex
	labels   map[string]float64
	scalers  map[string]*model.Scaler
	trained  []*model.TrainFoldRequest
	predicts int

	trainErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		labels:  make(map[string]float64),
		scalers: make(map[string]*model.Scaler),
	}
}

func (f *fakeBackend) register(ds *dataset.Dataset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range ds.Records {
		f.labels[r.ID] = r.Label
	}
}

func (f *fakeBackend) TrainFold(ctx context.Context, req *model.TrainFoldRequest) (*model.TrainFoldResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trainErr != nil {
		return nil, f.trainErr
	}
	f.trained = append(f.trained, req)

	modelID := fmt.Sprintf("m-%d", req.Fold)
	raw := make([]float64, len(req.Train))
	for i, s := range req.Train {
		raw[i] = f.labels[s.ID]
	}
	scaler, err := model.FitScaler(raw)
	if err != nil {
		return nil, err
	}
	f.scalers[modelID] = scaler
	return &model.TrainFoldResult{ModelID: modelID, BestEpoch: 5}, nil
}

func (f *fakeBackend) Predict(ctx context.Context, req *model.PredictRequest) (*model.PredictResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predicts++
	scaler := f.scalers[req.ModelID]
	res := &model.PredictResponse{Predictions: make([]float64, len(req.Graphs))}
	for i, id := range req.IDs {
		res.Predictions[i] = (f.labels[id] - scaler.Mean) / scaler.Std
	}
	if req.WithEmbeddings {
		res.Embeddings = make([][]float32, len(req.Graphs))
		for i := range res.Embeddings {
			res.Embeddings[i] = []float32{1, 2, 3}
		}
	}
	return res, nil
}

func (f *fakeBackend) Status(ctx context.Context) (*model.Status, error) {
	return &model.Status{Ready: true}, nil
}

func (f *fakeBackend) Close() error { return nil }

type memStore struct {
	mu      sync.Mutex
	reports []*Report
}

func (s *memStore) SaveRun(ctx context.Context, report *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

type memSink struct {
	mu    sync.Mutex
	calls int
	total int
}

func (s *memSink) StoreEmbeddings(ctx context.Context, runID string, fold int, ids []string, embeddings [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.total += len(embeddings)
	return nil
}

type memObserver struct {
	mu       sync.Mutex
	started  int
	folds    int
	finished int
}

func (o *memObserver) RunStarted(ctx context.Context, report *Report) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
	return nil
}

func (o *memObserver) FoldCompleted(ctx context.Context, runID string, fold FoldReport) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.folds++
	return nil
}

func (o *memObserver) RunFinished(ctx context.Context, report *Report) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	return nil
}

// testDataset builds n distinct valid molecules as simple carbon chains.
func testDataset(n int) *dataset.Dataset {
	ds := &dataset.Dataset{Name: "t", Property: dataset.PropertyLipophilicity, Source: dataset.SourceChEMBL}
	smiles := ""
	for i := 0; i < n; i++ {
		smiles += "C"
		ds.Records = append(ds.Records, dataset.NewRecord(smiles, float64(i)*0.1, dataset.SourceChEMBL, i+2))
	}
	return ds
}

func newTestRunner(t *testing.T, deps Deps, opts Options) *Runner {
	t.Helper()
	r, err := NewRunner(opts, model.DefaultConfig(), graph.BuilderOptions{}, deps)
	require.NoError(t, err)
	return r
}

func TestRunCompletes(t *testing.T) {
	backend := newFakeBackend()
	store := &memStore{}
	obs := &memObserver{}
	opts := DefaultOptions()
	opts.Folds = 5
	opts.FoldWorkers = 2

	ds := testDataset(50)
	backend.register(ds)
	r := newTestRunner(t, Deps{Backend: backend, Store: store, Events: obs}, opts)
	report, err := r.Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, RunStatusCompleted, report.Status)
	assert.Equal(t, 50, report.Records)
	require.Len(t, report.Folds, 5)
	for fold, fr := range report.Folds {
		assert.Equal(t, fold, fr.Fold)
		assert.Equal(t, 30, fr.TrainSize)
		assert.Equal(t, 10, fr.ValSize)
		assert.Equal(t, 10, fr.TestSize)
		assert.NotEmpty(t, fr.ModelID)
		// the fake backend echoes targets, so scores are near perfect
		assert.InDelta(t, 0.0, fr.Metrics.RMSE, 1e-9)
	}
	assert.InDelta(t, 0.0, report.Summary.Mean.RMSE, 1e-9)

	assert.Len(t, backend.trained, 5)
	assert.Equal(t, 5, backend.predicts)
	require.Len(t, store.reports, 1)
	assert.Equal(t, 1, obs.started)
	assert.Equal(t, 5, obs.folds)
	assert.Equal(t, 1, obs.finished)
}

func TestRunFiltersBeforeSplitting(t *testing.T) {
	ds := testDataset(40)
	// inject duplicates and garbage that must not reach the backend
	ds.Records = append(ds.Records,
		dataset.NewRecord("C", 9.9, dataset.SourceChEMBL, 100),
		dataset.NewRecord("C1CC", 1.0, dataset.SourceChEMBL, 101),
	)

	backend := newFakeBackend()
	backend.register(ds)
	opts := DefaultOptions()
	opts.Folds = 4

	r := newTestRunner(t, Deps{Backend: backend}, opts)
	report, err := r.Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 40, report.Records)
	assert.Equal(t, 1, report.FilterOut.Duplicates)
	assert.Equal(t, 1, report.FilterOut.Invalid)
}

func TestRunFailsWhenTrainingFails(t *testing.T) {
	backend := newFakeBackend()
	backend.trainErr = errors.New(errors.CodeServingUnavailable, "backend down")
	store := &memStore{}
	opts := DefaultOptions()
	opts.Folds = 3

	r := newTestRunner(t, Deps{Backend: backend, Store: store}, opts)
	report, err := r.Run(context.Background(), testDataset(30))
	require.Error(t, err)

	assert.Equal(t, RunStatusFailed, report.Status)
	assert.NotEmpty(t, report.Error)
	assert.True(t, errors.IsCode(err, errors.CodeServingUnavailable))
	// failed runs still get persisted
	require.Len(t, store.reports, 1)
	assert.Equal(t, RunStatusFailed, store.reports[0].Status)
}

func TestRunForwardsEmbeddings(t *testing.T) {
	backend := newFakeBackend()
	sink := &memSink{}
	opts := DefaultOptions()
	opts.Folds = 3
	opts.WithEmbeddings = true

	ds := testDataset(30)
	backend.register(ds)
	r := newTestRunner(t, Deps{Backend: backend, Sink: sink}, opts)
	_, err := r.Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 3, sink.calls)
	assert.Equal(t, 30, sink.total)
}

func TestRunRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := newFakeBackend()
	opts := DefaultOptions()
	opts.Folds = 3
	r := newTestRunner(t, Deps{Backend: backend}, opts)

	report, err := r.Run(ctx, testDataset(30))
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, report.Status)
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(DefaultOptions(), model.DefaultConfig(), graph.BuilderOptions{}, Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	bad := model.DefaultConfig()
	bad.Depth = 0
	_, err = NewRunner(DefaultOptions(), bad, graph.BuilderOptions{}, Deps{Backend: newFakeBackend()})
	require.Error(t, err)

	opts := DefaultOptions()
	opts.Folds = 2
	_, err = NewRunner(opts, model.DefaultConfig(), graph.BuilderOptions{}, Deps{Backend: newFakeBackend()})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeSplitConfig))
}
