package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qsarlab/molgraph/internal/cv"
	"github.com/qsarlab/molgraph/pkg/errors"
)

func newReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Fetch a stored run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			cfg := cliCtx.Config

			if !cfg.Postgres.Enabled && !cfg.Minio.Enabled {
				return errors.InvalidParam("report requires postgres or minio to be enabled")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, cfg, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer p.close()

			var report *cv.Report
			if p.runStore != nil {
				report, err = p.runStore.GetRun(ctx, args[0])
			} else {
				report, err = p.artifacts.LoadRun(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	return cmd
}
