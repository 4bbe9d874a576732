// Canalis — измерение площади поперечного сечения спинного мозга и
// позвоночного канала по датасету.
//
// Использование:
//
//	canalis [--config PATH] [--json] <command> [flags]
//
// Команды:
//
//	run        Обработка субъектов датасета
//	aggregate  Сводные таблицы по методам
//	subjects   Список обнаруженных субъектов
//	tools      Проверка внешних инструментов
//	config     Работа с конфигурацией
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"canalis/internal/cli"
	"canalis/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "canalis",
		Short:         "Canalis — spinal cord and canal cross-sectional area pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "canalis.yaml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	cfgFn := func() (*config.Config, error) { return config.Load(configPath) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(cfgFn, outputFn),
		cli.NewAggregateCmd(cfgFn, outputFn),
		cli.NewSubjectsCmd(cfgFn, outputFn),
		cli.NewToolsCmd(cfgFn, outputFn),
		cli.NewConfigCmd(cfgFn, outputFn),
	)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
