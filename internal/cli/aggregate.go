package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"canalis/internal/aggregate"
)

// NewAggregateCmd создаёт команду агрегации опубликованных результатов.
func NewAggregateCmd(cfgFn ConfigFn, outputFn OutputFn) *cobra.Command {
	var resultsDir string
	var outDir string

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Build per-method cohort tables from published results",
		Long: "Collect per-subject CSV files from the results tree and write one\n" +
			"pivot table (subjects x vertebral levels) plus level statistics per\n" +
			"method, measure and interpolation mode.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			cfg, err := cfgFn()
			if err != nil {
				return err
			}
			if resultsDir == "" {
				resultsDir = cfg.Dataset.ResultsDir
			}
			if outDir == "" {
				outDir = resultsDir
			}

			if err := aggregate.Run(resultsDir, outDir); err != nil {
				return err
			}

			tables, err := aggregate.Collect(resultsDir)
			if err != nil {
				return err
			}
			headers := []string{"METHOD", "MEASURE", "SUBJECTS", "LEVELS"}
			rows := make([][]string, len(tables))
			for i, t := range tables {
				rows[i] = []string{
					t.Key.Dir(),
					t.Measure,
					fmt.Sprintf("%d", len(t.Rows)),
					fmt.Sprintf("%d", len(t.Levels())),
				}
			}
			out.Print(headers, rows, tables)
			out.Success(fmt.Sprintf("wrote %d tables to %s", len(tables), outDir))
			return nil
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Results tree to aggregate (overrides config)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory (default: results dir)")

	return cmd
}
