package cli

import (
	"github.com/spf13/cobra"

	"canalis/internal/config"
)

// NewConfigCmd создаёт группу команд работы с конфигурацией.
func NewConfigCmd(cfgFn ConfigFn, outputFn OutputFn) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(
		newConfigInitCmd(outputFn),
		newConfigShowCmd(cfgFn, outputFn),
	)

	return cmd
}

func newConfigInitCmd(outputFn OutputFn) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			out.Success("wrote " + path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "canalis.yaml", "Where to write the file")

	return cmd
}

func newConfigShowCmd(cfgFn ConfigFn, outputFn OutputFn) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			cfg, err := cfgFn()
			if err != nil {
				return err
			}
			out.JSON(cfg)
			return nil
		},
	}
}
