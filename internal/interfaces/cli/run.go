package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qsarlab/molgraph/internal/cv"
	"github.com/qsarlab/molgraph/internal/dataset"
	"github.com/qsarlab/molgraph/internal/graph"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/internal/storage/minio"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <dataset.csv>",
		Short: "Execute a full cross-validation run against the serving backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			cfg := cliCtx.Config
			logger := cliCtx.Logger

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			loader := dataset.NewLoader(cfg.Dataset.LoaderOptions(), logger)
			ds, loadStats, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			logger.Info("dataset loaded",
				logging.String("file", args[0]),
				logging.Int("rows", loadStats.Rows),
				logging.Int("loaded", loadStats.Loaded),
			)

			p, err := buildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer p.close()
			p.deps.Metrics.RecordsLoaded(loadStats.Loaded)

			runner, err := cv.NewRunner(
				cv.Options{
					Folds:          cfg.Run.Folds,
					Seed:           cfg.Run.Seed,
					GraphWorkers:   cfg.Run.GraphWorkers,
					FoldWorkers:    cfg.Run.FoldWorkers,
					WithEmbeddings: cfg.Run.WithEmbeddings,
				},
				cfg.Model,
				graph.BuilderOptions{MaxAtoms: cfg.Run.MaxAtoms},
				p.deps,
			)
			if err != nil {
				return err
			}

			report, err := runner.Run(ctx, ds)
			if report != nil && p.artifacts != nil {
				if upErr := uploadDataset(ctx, p.artifacts, report.RunID, args[0]); upErr != nil {
					logger.Warn("dataset snapshot upload failed", logging.Err(upErr))
				}
			}
			if report != nil {
				if printErr := printJSON(cmd, report); printErr != nil && err == nil {
					err = printErr
				}
			}
			return err
		},
	}
	return cmd
}

// uploadDataset archives the raw input CSV next to the run report so a run
// can be reproduced from the artifact store alone.
func uploadDataset(ctx context.Context, store *minio.ArtifactStore, runID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return store.SaveDataset(ctx, runID, filepath.Base(path), f, info.Size())
}
