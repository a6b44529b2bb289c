package cv

import (
	"context"
	"sync"

	"github.com/qsarlab/molgraph/internal/chem"
	"github.com/qsarlab/molgraph/internal/dataset"
	"github.com/qsarlab/molgraph/internal/graph"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// GraphCache lets repeated runs over the same dataset skip rebuilding
// graphs. Get misses must return (nil, false, nil); cache failures surface
// as errors only so callers can log them, a broken cache never fails a run.
type GraphCache interface {
	Get(ctx context.Context, smiles string) (*graph.Graph, bool, error)
	Put(ctx context.Context, smiles string, g *graph.Graph) error
}

// GraphSet pairs filtered records with their graphs, position-aligned.
type GraphSet struct {
	Records []dataset.Record
	Graphs  []*graph.Graph
	// Dropped counts records whose graphs could not be built, typically
	// molecules over the atom limit.
	Dropped int
}

type buildOutcome struct {
	index int
	g     *graph.Graph
	err   error
}

// buildGraphs parses and featurises every record concurrently, bounded by
// workers. Records whose graphs cannot be built are dropped and counted;
// the surviving records and graphs stay position-aligned with each other.
func buildGraphs(
	ctx context.Context,
	records []dataset.Record,
	builder *graph.Builder,
	cache GraphCache,
	workers int,
	logger logging.Logger,
) (*GraphSet, error) {
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]buildOutcome, len(records))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, rec := range records {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.CodeGraphBuild, "graph building cancelled")
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(idx int, rec dataset.Record) {
			defer wg.Done()
			defer func() { <-sem }()
			g, err := buildOne(ctx, rec.SMILES, builder, cache, logger)
			outcomes[idx] = buildOutcome{index: idx, g: g, err: err}
		}(i, rec)
	}
	wg.Wait()

	set := &GraphSet{
		Records: make([]dataset.Record, 0, len(records)),
		Graphs:  make([]*graph.Graph, 0, len(records)),
	}
	for i, out := range outcomes {
		if out.err != nil {
			set.Dropped++
			logger.Warn("dropping record without graph",
				logging.String("smiles", records[i].SMILES),
				logging.Err(out.err),
			)
			continue
		}
		set.Records = append(set.Records, records[i])
		set.Graphs = append(set.Graphs, out.g)
	}
	return set, nil
}

func buildOne(
	ctx context.Context,
	smiles string,
	builder *graph.Builder,
	cache GraphCache,
	logger logging.Logger,
) (*graph.Graph, error) {
	if cache != nil {
		g, ok, err := cache.Get(ctx, smiles)
		if err != nil {
			logger.Warn("graph cache read failed", logging.Err(err))
		} else if ok {
			return g, nil
		}
	}

	mol, err := chem.ParseSMILES(smiles)
	if err != nil {
		return nil, err
	}
	g, err := builder.Build(mol)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if err := cache.Put(ctx, smiles, g); err != nil {
			logger.Warn("graph cache write failed", logging.Err(err))
		}
	}
	return g, nil
}
