package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qsarlab/molgraph/internal/dataset"
)

// prepareOutput is what `molgraph prepare` prints.
type prepareOutput struct {
	Dataset  string              `json:"dataset"`
	Load     dataset.LoadStats   `json:"load"`
	Filter   dataset.FilterStats `json:"filter"`
	Dropped  []dataset.Dropped   `json:"dropped,omitempty"`
	Retained int                 `json:"retained"`
}

func newPrepareCommand() *cobra.Command {
	var showDropped bool

	cmd := &cobra.Command{
		Use:   "prepare <dataset.csv>",
		Short: "Load and filter a dataset, reporting what survives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			cfg := cliCtx.Config

			loader := dataset.NewLoader(cfg.Dataset.LoaderOptions(), cliCtx.Logger)
			ds, loadStats, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}

			filter := dataset.NewFilter(cliCtx.Logger)
			result := filter.Apply(ds.Records)

			out := prepareOutput{
				Dataset:  ds.Name,
				Load:     loadStats,
				Filter:   result.Stats,
				Retained: len(result.Records),
			}
			if showDropped {
				out.Dropped = result.Dropped
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().BoolVar(&showDropped, "show-dropped", false, "include every dropped record with its reason")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
