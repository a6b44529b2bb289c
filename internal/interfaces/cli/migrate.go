package cli

import (
	"github.com/spf13/cobra"

	"github.com/qsarlab/molgraph/internal/storage/postgres"
	"github.com/qsarlab/molgraph/pkg/errors"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}
	cmd.AddCommand(newMigrateUpCommand(), newMigrateDownCommand(), newMigrateStatusCommand())
	return cmd
}

func migrateTarget(cmd *cobra.Command) (dbURL, path string, err error) {
	cfg := GetCLIContext(cmd).Config
	if cfg.Postgres.Host == "" {
		return "", "", errors.InvalidParam("postgres.host is required for migrations")
	}
	return cfg.Postgres.URL(), cfg.Postgres.MigrationsPath, nil
}

func newMigrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, path, err := migrateTarget(cmd)
			if err != nil {
				return err
			}
			if err := postgres.RunMigrations(dbURL, path); err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"status": "up to date"})
		},
	}
}

func newMigrateDownCommand() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, path, err := migrateTarget(cmd)
			if err != nil {
				return err
			}
			if err := postgres.RollbackMigrations(dbURL, path, steps); err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"status": "rolled back", "steps": steps})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newMigrateStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, path, err := migrateTarget(cmd)
			if err != nil {
				return err
			}
			version, dirty, err := postgres.MigrationVersion(dbURL, path)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"version": version,
				"dirty":   dirty,
			})
		},
	}
}
