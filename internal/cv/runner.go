package cv

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qsarlab/molgraph/internal/dataset"
	"github.com/qsarlab/molgraph/internal/graph"
	"github.com/qsarlab/molgraph/internal/model"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/internal/monitoring/metrics"
	"github.com/qsarlab/molgraph/internal/split"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// RunObserver receives run lifecycle notifications. Observer failures are
// logged and never fail the run.
type RunObserver interface {
	RunStarted(ctx context.Context, report *Report) error
	FoldCompleted(ctx context.Context, runID string, fold FoldReport) error
	RunFinished(ctx context.Context, report *Report) error
}

// ReportStore persists run reports.
type ReportStore interface {
	SaveRun(ctx context.Context, report *Report) error
}

// EmbeddingSink receives the readout embeddings of test molecules for
// similarity search.
type EmbeddingSink interface {
	StoreEmbeddings(ctx context.Context, runID string, fold int, ids []string, embeddings [][]float32) error
}

// Options tunes a cross-validation run.
type Options struct {
	Folds int
	Seed  int64
	// GraphWorkers bounds concurrent graph construction.
	GraphWorkers int
	// FoldWorkers bounds concurrently training folds. Keep this at the
	// number of folds the backend can train side by side.
	FoldWorkers int
	// WithEmbeddings requests readout embeddings for every test molecule
	// and forwards them to the embedding sink.
	WithEmbeddings bool
}

func DefaultOptions() Options {
	return Options{
		Folds:        split.DefaultFolds,
		Seed:         0,
		GraphWorkers: 8,
		FoldWorkers:  1,
	}
}

// Deps carries the runner's collaborators. Backend is required; everything
// else may be nil and is skipped.
type Deps struct {
	Backend model.Backend
	Cache   GraphCache
	Store   ReportStore
	Sink    EmbeddingSink
	Events  RunObserver
	Metrics *metrics.PipelineMetrics
	Logger  logging.Logger
}

// Runner executes cross-validation runs end to end.
type Runner struct {
	opts    Options
	cfg     model.Config
	deps    Deps
	builder *graph.Builder
	filter  *dataset.Filter
}

func NewRunner(opts Options, cfg model.Config, builderOpts graph.BuilderOptions, deps Deps) (*Runner, error) {
	if deps.Backend == nil {
		return nil, errors.InvalidParam("runner requires a backend")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Folds < 3 {
		return nil, errors.Newf(errors.CodeSplitConfig, "need at least 3 folds, got %d", opts.Folds)
	}
	if opts.GraphWorkers < 1 {
		opts.GraphWorkers = 1
	}
	if opts.FoldWorkers < 1 {
		opts.FoldWorkers = 1
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	deps.Logger = deps.Logger.Named("cv")
	return &Runner{
		opts:    opts,
		cfg:     cfg,
		deps:    deps,
		builder: graph.NewBuilder(builderOpts),
		filter:  dataset.NewFilter(deps.Logger),
	}, nil
}

// Run executes one full cross-validation over ds: filter, graph
// construction, stratified fold assignment, then one training round per
// fold. The report is persisted regardless of outcome when a store is
// configured.
func (r *Runner) Run(ctx context.Context, ds *dataset.Dataset) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Dataset:   ds.Name,
		Property:  ds.Property,
		Source:    ds.Source,
		Config:    r.cfg,
		Seed:      r.opts.Seed,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	logger := r.deps.Logger.With(logging.String("run_id", report.RunID))
	logger.Info("starting cross-validation run",
		logging.String("dataset", ds.Name),
		logging.Int("records", len(ds.Records)),
		logging.Int("folds", r.opts.Folds),
	)
	r.notifyStarted(ctx, report, logger)

	err := r.execute(ctx, ds, report, logger)
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Status = RunStatusFailed
		report.Error = err.Error()
	} else {
		report.Status = RunStatusCompleted
	}
	r.deps.Metrics.RunFinished(string(report.Status))

	r.persist(ctx, report, logger)
	r.notifyFinished(ctx, report, logger)

	if err != nil {
		logger.Error("run failed", logging.Err(err))
		return report, err
	}
	logger.Info("run completed",
		logging.Float64("rmse_mean", report.Summary.Mean.RMSE),
		logging.Float64("rmse_std", report.Summary.Std.RMSE),
		logging.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (r *Runner) execute(ctx context.Context, ds *dataset.Dataset, report *Report, logger logging.Logger) error {
	filtered := r.filter.Apply(ds.Records)
	report.FilterOut = filtered.Stats
	r.deps.Metrics.RecordsDropped("invalid_smiles", filtered.Stats.Invalid)
	r.deps.Metrics.RecordsDropped("multi_fragment", filtered.Stats.MultiFragment)
	r.deps.Metrics.RecordsDropped("duplicate", filtered.Stats.Duplicates)

	set, err := buildGraphs(ctx, filtered.Records, r.builder, r.deps.Cache, r.opts.GraphWorkers, logger)
	if err != nil {
		return err
	}
	report.GraphDrops = set.Dropped
	report.Records = len(set.Records)
	r.deps.Metrics.GraphsBuilt(len(set.Graphs))
	r.deps.Metrics.GraphDrops(set.Dropped)
	r.deps.Metrics.RecordsDropped("graph_build", set.Dropped)

	splitter, err := split.NewSplitter(split.Options{Folds: r.opts.Folds, Seed: r.opts.Seed})
	if err != nil {
		return err
	}
	assignment, err := splitter.Assign(set.Records)
	if err != nil {
		return err
	}

	folds, err := r.runFolds(ctx, report.RunID, set, assignment, logger)
	if err != nil {
		return err
	}
	report.Folds = folds

	perFold := make([]Metrics, len(folds))
	for i, f := range folds {
		perFold[i] = f.Metrics
	}
	report.Summary = Aggregate(perFold)
	return nil
}

// runFolds trains every round, at most FoldWorkers at a time. The first
// failure cancels the remaining rounds.
func (r *Runner) runFolds(
	ctx context.Context,
	runID string,
	set *GraphSet,
	assignment *split.Assignment,
	logger logging.Logger,
) ([]FoldReport, error) {
	foldCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reports := make([]FoldReport, assignment.NumFolds())
	sem := make(chan struct{}, r.opts.FoldWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for fold := 0; fold < assignment.NumFolds(); fold++ {
		select {
		case <-foldCtx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(fold int) {
				defer wg.Done()
				defer func() { <-sem }()

				fr, err := r.runFold(foldCtx, runID, fold, set, assignment, logger)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = errors.Wrapf(err, errors.CodeUnknown, "fold %d", fold)
					}
					mu.Unlock()
					cancel()
					return
				}
				reports[fold] = fr
				r.notifyFold(ctx, runID, fr, logger)
			}(fold)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeTimeout, "run cancelled")
	}
	return reports, nil
}

func (r *Runner) runFold(
	ctx context.Context,
	runID string,
	fold int,
	set *GraphSet,
	assignment *split.Assignment,
	logger logging.Logger,
) (FoldReport, error) {
	start := time.Now()
	fs, err := assignment.Split(fold)
	if err != nil {
		return FoldReport{}, err
	}

	trainLabels := make([]float64, len(fs.Train))
	for i, idx := range fs.Train {
		trainLabels[i] = set.Records[idx].Label
	}
	scaler, err := model.FitScaler(trainLabels)
	if err != nil {
		return FoldReport{}, err
	}

	trainReq := &model.TrainFoldRequest{
		RunID:  runID,
		Fold:   fold,
		Config: r.cfg,
		Train:  r.samples(set, fs.Train, scaler),
		Val:    r.samples(set, fs.Val, scaler),
	}
	trained, err := r.deps.Backend.TrainFold(ctx, trainReq)
	if err != nil {
		r.deps.Metrics.ServingError()
		return FoldReport{}, err
	}

	ids := make([]string, len(fs.Test))
	graphs := make([]*graph.Graph, len(fs.Test))
	targets := make([]float64, len(fs.Test))
	for i, idx := range fs.Test {
		ids[i] = set.Records[idx].ID
		graphs[i] = set.Graphs[idx]
		targets[i] = set.Records[idx].Label
	}
	pred, err := r.deps.Backend.Predict(ctx, &model.PredictRequest{
		ModelID:        trained.ModelID,
		IDs:            ids,
		Graphs:         graphs,
		WithEmbeddings: r.opts.WithEmbeddings && r.deps.Sink != nil,
	})
	if err != nil {
		r.deps.Metrics.ServingError()
		return FoldReport{}, err
	}

	m, err := Evaluate(scaler.Inverse(pred.Predictions), targets)
	if err != nil {
		return FoldReport{}, err
	}

	if r.opts.WithEmbeddings && r.deps.Sink != nil && len(pred.Embeddings) > 0 {
		if err := r.deps.Sink.StoreEmbeddings(ctx, runID, fold, ids, pred.Embeddings); err != nil {
			logger.Warn("embedding sink write failed",
				logging.Int("fold", fold),
				logging.Err(err),
			)
		}
	}

	fr := FoldReport{
		Fold:      fold,
		ModelID:   trained.ModelID,
		BestEpoch: trained.BestEpoch,
		TrainSize: len(fs.Train),
		ValSize:   len(fs.Val),
		TestSize:  len(fs.Test),
		Metrics:   m,
		Duration:  time.Since(start),
	}
	r.deps.Metrics.ObserveFold(fr.Duration)
	logger.Info("fold completed",
		logging.Int("fold", fold),
		logging.Float64("rmse", m.RMSE),
		logging.Float64("mae", m.MAE),
		logging.Float64("r2", m.R2),
		logging.Duration("elapsed", fr.Duration),
	)
	return fr, nil
}

func (r *Runner) samples(set *GraphSet, indices []int, scaler *model.Scaler) []model.Sample {
	out := make([]model.Sample, len(indices))
	for i, idx := range indices {
		out[i] = model.Sample{
			ID:     set.Records[idx].ID,
			Graph:  set.Graphs[idx],
			Target: (set.Records[idx].Label - scaler.Mean) / scaler.Std,
		}
	}
	return out
}

func (r *Runner) notifyStarted(ctx context.Context, report *Report, logger logging.Logger) {
	if r.deps.Events == nil {
		return
	}
	if err := r.deps.Events.RunStarted(ctx, report); err != nil {
		logger.Warn("run started event failed", logging.Err(err))
	}
}

func (r *Runner) notifyFold(ctx context.Context, runID string, fr FoldReport, logger logging.Logger) {
	if r.deps.Events == nil {
		return
	}
	if err := r.deps.Events.FoldCompleted(ctx, runID, fr); err != nil {
		logger.Warn("fold completed event failed", logging.Err(err))
	}
}

func (r *Runner) notifyFinished(ctx context.Context, report *Report, logger logging.Logger) {
	if r.deps.Events == nil {
		return
	}
	if err := r.deps.Events.RunFinished(ctx, report); err != nil {
		logger.Warn("run finished event failed", logging.Err(err))
	}
}

func (r *Runner) persist(ctx context.Context, report *Report, logger logging.Logger) {
	if r.deps.Store == nil {
		return
	}
	if err := r.deps.Store.SaveRun(ctx, report); err != nil {
		logger.Error("failed to persist run report", logging.Err(err))
	}
}
