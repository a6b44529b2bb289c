package cli

import (
	"github.com/spf13/cobra"

	"github.com/qsarlab/molgraph/internal/dataset"
	"github.com/qsarlab/molgraph/internal/split"
)

type foldPreview struct {
	Fold  int `json:"fold"`
	Train int `json:"train"`
	Val   int `json:"val"`
	Test  int `json:"test"`
}

type splitOutput struct {
	Dataset string        `json:"dataset"`
	Records int           `json:"records"`
	Folds   int           `json:"folds"`
	Seed    int64         `json:"seed"`
	Preview []foldPreview `json:"preview"`
}

func newSplitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split <dataset.csv>",
		Short: "Preview the stratified fold assignment for a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			cfg := cliCtx.Config

			loader := dataset.NewLoader(cfg.Dataset.LoaderOptions(), cliCtx.Logger)
			ds, _, err := loader.LoadFile(args[0])
			if err != nil {
				return err
			}
			result := dataset.NewFilter(cliCtx.Logger).Apply(ds.Records)

			splitter, err := split.NewSplitter(split.Options{
				Folds: cfg.Run.Folds,
				Seed:  cfg.Run.Seed,
			})
			if err != nil {
				return err
			}
			assignment, err := splitter.Assign(result.Records)
			if err != nil {
				return err
			}

			out := splitOutput{
				Dataset: ds.Name,
				Records: len(result.Records),
				Folds:   assignment.NumFolds(),
				Seed:    cfg.Run.Seed,
			}
			for fold := 0; fold < assignment.NumFolds(); fold++ {
				fs, err := assignment.Split(fold)
				if err != nil {
					return err
				}
				out.Preview = append(out.Preview, foldPreview{
					Fold:  fold,
					Train: len(fs.Train),
					Val:   len(fs.Val),
					Test:  len(fs.Test),
				})
			}
			return printJSON(cmd, out)
		},
	}
	return cmd
}
