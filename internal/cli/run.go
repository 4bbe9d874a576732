package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"canalis/internal/config"
	"canalis/internal/coordinator"
	"canalis/internal/pipeline"
	"canalis/internal/repo"
	"canalis/internal/telemetry"
	"canalis/internal/tools"
)

// ConfigFn лениво читает конфигурацию после парсинга PersistentFlags.
type ConfigFn func() (*config.Config, error)

// OutputFn лениво создаёт Output после парсинга PersistentFlags.
type OutputFn func() *Output

// NewRunCmd создаёт команду обработки субъектов датасета.
func NewRunCmd(cfgFn ConfigFn, outputFn OutputFn) *cobra.Command {
	var dataDir string
	var workDir string
	var resultsDir string
	var contrast string
	var subjects []string
	var subjectJobs int
	var taskJobs int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process dataset subjects",
		Long: "Run segmentation, registration and cross-sectional area measurement\n" +
			"for every discovered subject, then publish per-subject results.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			cfg, err := cfgFn()
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Dataset.DataDir = dataDir
			}
			if workDir != "" {
				cfg.Dataset.WorkDir = workDir
			}
			if resultsDir != "" {
				cfg.Dataset.ResultsDir = resultsDir
			}
			if contrast != "" {
				cfg.Dataset.Contrast = contrast
			}
			if subjectJobs > 0 {
				cfg.Run.Subjects = subjectJobs
			}
			if taskJobs > 0 {
				cfg.Run.Tasks = taskJobs
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := telemetry.SetupLogger()
			ctx := cmd.Context()

			metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
			if cfg.Metrics.Addr != "" {
				go func() {
					if err := telemetry.ServeMetrics(ctx, cfg.Metrics.Addr, logger); err != nil {
						logger.Error("metrics server error", "error", err)
					}
				}()
			}

			var store coordinator.RunStore
			var publisher pipeline.ResultPublisher
			if cfg.Database.DSN != "" {
				pool, err := repo.NewPool(ctx, cfg.Database.DSN)
				if err != nil {
					logger.Warn("database not available, results go to CSV only", "error", err)
				} else {
					defer pool.Close()
					logger.Info("database connected")
					store = repo.NewSubjectRunRepo(pool)
					publisher = repo.NewMeasurementRepo(pool)
				}
			}

			execCfg := cfg.ExecConfig()
			execCfg.Logger = logger
			adapter := tools.NewExecAdapter(execCfg)

			pipe, err := pipeline.New(pipeline.Config{
				DataDir:     cfg.Dataset.DataDir,
				WorkDir:     cfg.Dataset.WorkDir,
				ResultsDir:  cfg.Dataset.ResultsDir,
				Contrast:    cfg.Dataset.Contrast,
				Patterns:    cfg.Dataset.Patterns,
				Templates:   cfg.TemplateSet(),
				Concurrency: cfg.Run.Tasks,
				Adapter:     adapter,
				Observer:    metrics,
				Publisher:   publisher,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			selected, err := parseSubjects(subjects)
			if err != nil {
				return err
			}

			coord, err := coordinator.New(coordinator.Config{
				DataDir:     cfg.Dataset.DataDir,
				Pipeline:    pipe,
				Subjects:    selected,
				Contrast:    cfg.Dataset.Contrast,
				Concurrency: cfg.Run.Subjects,
				Metrics:     metrics,
				Store:       store,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			summary, err := coord.Run(ctx)
			if err != nil {
				return err
			}

			headers := []string{"SUBJECT", "SESSION", "OUTCOME", "TASKS", "ERROR"}
			rows := make([][]string, len(summary.Runs))
			for i, r := range summary.Runs {
				rows[i] = []string{r.Subject, r.Session, string(r.Outcome), strconv.Itoa(len(r.Tasks)), r.Error}
			}
			out.Print(headers, rows, summary.Runs)
			out.Success(fmt.Sprintf("completed %d, skipped %d, failed %d",
				summary.Completed, summary.Skipped, summary.Failed))

			if summary.Failed > 0 {
				return fmt.Errorf("%d subject(s) failed", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Dataset root (overrides config)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Working directory root (overrides config)")
	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Results directory root (overrides config)")
	cmd.Flags().StringVar(&contrast, "contrast", "", "Image contrast, e.g. T2w (overrides config)")
	cmd.Flags().StringArrayVar(&subjects, "subject", nil, "Process only this subject (sub-XX or sub-XX/ses-YY), repeatable")
	cmd.Flags().IntVar(&subjectJobs, "jobs", 0, "Concurrent subjects (overrides config)")
	cmd.Flags().IntVar(&taskJobs, "task-jobs", 0, "Concurrent tasks per subject (overrides config)")

	return cmd
}

// parseSubjects разбирает записи вида "sub-XX" или "sub-XX/ses-YY".
func parseSubjects(entries []string) ([]coordinator.Subject, error) {
	subjects := make([]coordinator.Subject, 0, len(entries))
	for _, e := range entries {
		subject, session, found := strings.Cut(e, "/")
		if !strings.HasPrefix(subject, "sub-") {
			return nil, fmt.Errorf("invalid subject %q: expected sub-XX or sub-XX/ses-YY", e)
		}
		if found && !strings.HasPrefix(session, "ses-") {
			return nil, fmt.Errorf("invalid session in %q: expected ses-YY", e)
		}
		subjects = append(subjects, coordinator.Subject{Subject: subject, Session: session})
	}
	return subjects, nil
}
