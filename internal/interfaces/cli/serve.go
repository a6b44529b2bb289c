package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qsarlab/molgraph/internal/config"
	"github.com/qsarlab/molgraph/internal/cv"
	"github.com/qsarlab/molgraph/internal/dataset"
	"github.com/qsarlab/molgraph/internal/graph"
	"github.com/qsarlab/molgraph/internal/ingest"
	httpiface "github.com/qsarlab/molgraph/internal/interfaces/http"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the status API and, when enabled, the dataset drop watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			cfg := cliCtx.Config
			logger := cliCtx.Logger

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer p.close()

			// Config edits cannot be applied to already-wired services, so
			// a change is surfaced for the operator to act on.
			if cliCtx.ConfigPath != "" {
				config.Watch(cliCtx.ConfigPath, func(_ *config.Config) {
					logger.Warn("configuration file changed on disk, restart to apply",
						logging.String("path", cliCtx.ConfigPath))
				})
			}

			routerCfg := httpiface.RouterConfig{
				Backend:  p.backend,
				Registry: p.registry,
				Logger:   logger,
			}
			if p.runStore != nil {
				routerCfg.Runs = p.runStore
			}
			if p.sink != nil {
				routerCfg.Similar = p.sink
			}
			srv := httpiface.NewServer(cfg.Server.Addr, routerCfg)

			errCh := make(chan error, 2)
			go func() {
				errCh <- srv.Start()
			}()

			if cfg.Ingest.Enabled {
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

				loader := dataset.NewLoader(cfg.Dataset.LoaderOptions(), logger)
				handler := func(ctx context.Context, path string) error {
					ds, stats, err := loader.LoadFile(path)
					if err != nil {
						return err
					}
					p.deps.Metrics.RecordsLoaded(stats.Loaded)
					_, err = runner.Run(ctx, ds)
					return err
				}

				watcher, err := ingest.NewWatcher(ingest.Options{
					Dir:         cfg.Ingest.Dir,
					SettleDelay: cfg.Ingest.SettleDelay,
				}, handler, logger)
				if err != nil {
					return err
				}
				go func() {
					logger.Info("dataset watcher started", logging.String("dir", cfg.Ingest.Dir))
					errCh <- watcher.Run(ctx)
				}()
			}

			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil && err != context.Canceled {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	return cmd
}
