package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"canalis/internal/coordinator"
)

// NewSubjectsCmd создаёт команду просмотра субъектов датасета.
func NewSubjectsCmd(cfgFn ConfigFn, outputFn OutputFn) *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "List discovered dataset subjects",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			cfg, err := cfgFn()
			if err != nil {
				return err
			}
			if dataDir == "" {
				dataDir = cfg.Dataset.DataDir
			}

			subjects, err := coordinator.DiscoverSubjects(dataDir)
			if err != nil {
				return err
			}

			headers := []string{"SUBJECT", "SESSION"}
			rows := make([][]string, len(subjects))
			for i, s := range subjects {
				rows[i] = []string{s.Subject, s.Session}
			}
			out.Print(headers, rows, subjects)
			out.Success(fmt.Sprintf("%d subject(s)", len(subjects)))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Dataset root (overrides config)")

	return cmd
}
