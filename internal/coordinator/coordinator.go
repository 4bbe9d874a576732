// Пакет coordinator — прогон пайплайна по всем субъектам датасета:
// ограниченный параллелизм, полная изоляция субъектов, сводка исходов,
// метрики и необязательная запись результатов в БД.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"canalis/internal/domain"
	"canalis/internal/pipeline"
	"canalis/internal/telemetry"
)

// RunStore — необязательное хранилище записей выполнения.
type RunStore interface {
	// SaveRun сохраняет финализированный run вместе с записями задач.
	SaveRun(ctx context.Context, run *domain.SubjectRun) error
}

// Subject — один субъект датасета.
type Subject struct {
	// Subject — BIDS-идентификатор ("sub-amu01").
	Subject string

	// Session — BIDS-идентификатор сессии, пусто без сессий.
	Session string
}

// Summary — сводка прогона по датасету.
type Summary struct {
	// Completed — субъекты с полным набором результатов.
	Completed int

	// Skipped — субъекты без входного изображения.
	Skipped int

	// Failed — субъекты с упавшей задачей.
	Failed int

	// Runs — записи всех субъектов в детерминированном порядке.
	Runs []*domain.SubjectRun
}

// Config — конфигурация координатора.
type Config struct {
	// DataDir — корень BIDS-датасета (для обнаружения субъектов).
	DataDir string

	// Pipeline — субъектный пайплайн.
	Pipeline *pipeline.SubjectPipeline

	// Subjects — явный список субъектов. Пустой список означает
	// обнаружение по каталогам sub-*/ в DataDir.
	Subjects []Subject

	// Contrast — контраст входных изображений. По умолчанию "T2w".
	Contrast string

	// Concurrency — число одновременно выполняемых субъектов.
	// По умолчанию 2.
	Concurrency int

	// Metrics — необязательные счётчики прогона.
	Metrics *telemetry.Metrics

	// Store — необязательное хранилище записей выполнения.
	Store RunStore

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Contrast == "" {
		c.Contrast = "T2w"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Coordinator выполняет пайплайн по субъектам датасета.
//
// Изоляция: падение одного субъекта никак не влияет на остальные,
// его ошибка попадает в запись run и сводку.
type Coordinator struct {
	cfg Config
}

// New создаёт координатор.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("coordinator: pipeline is required")
	}
	cfg.setDefaults()
	return &Coordinator{cfg: cfg}, nil
}

// DiscoverSubjects находит субъекты по каталогам sub-*/ и их сессии
// по каталогам ses-*/. Субъект без сессионных каталогов даёт одну
// запись с пустой сессией.
func DiscoverSubjects(dataDir string) ([]Subject, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}

	var subjects []Subject
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "sub-") {
			continue
		}
		subject := entry.Name()

		sessions, err := os.ReadDir(dataDir + "/" + subject)
		if err != nil {
			return nil, err
		}
		found := false
		for _, ses := range sessions {
			if ses.IsDir() && strings.HasPrefix(ses.Name(), "ses-") {
				subjects = append(subjects, Subject{Subject: subject, Session: ses.Name()})
				found = true
			}
		}
		if !found {
			subjects = append(subjects, Subject{Subject: subject})
		}
	}

	sort.Slice(subjects, func(i, j int) bool {
		if subjects[i].Subject != subjects[j].Subject {
			return subjects[i].Subject < subjects[j].Subject
		}
		return subjects[i].Session < subjects[j].Session
	})
	return subjects, nil
}

// Run выполняет пайплайн для всех субъектов и возвращает сводку.
//
// Возвращаемая ошибка относится только к самому прогону (обнаружение
// субъектов, отмена контекста); ошибки субъектов живут в их записях.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	subjects := c.cfg.Subjects
	if len(subjects) == 0 {
		var err error
		subjects, err = DiscoverSubjects(c.cfg.DataDir)
		if err != nil {
			return nil, err
		}
	}
	c.cfg.Logger.Info("dataset run started",
		"subjects", len(subjects), "concurrency", c.cfg.Concurrency)

	runs := make([]*domain.SubjectRun, len(subjects))
	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, subject := range subjects {
		wg.Add(1)
		go func(i int, subject Subject) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			runs[i] = c.runSubject(ctx, subject)
		}(i, subject)
	}
	wg.Wait()

	summary := &Summary{Runs: runs}
	for _, run := range runs {
		switch run.Outcome {
		case domain.OutcomeCompleted:
			summary.Completed++
		case domain.OutcomeSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	c.cfg.Logger.Info("dataset run finished",
		"completed", summary.Completed, "skipped", summary.Skipped, "failed", summary.Failed)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// runSubject выполняет один субъект и финализирует его запись.
// Никогда не паникует наружу и не возвращает ошибку: изоляция.
func (c *Coordinator) runSubject(ctx context.Context, subject Subject) *domain.SubjectRun {
	run := domain.NewSubjectRun(subject.Subject, subject.Session, c.cfg.Contrast)
	log := telemetry.WithSubject(c.cfg.Logger, subject.Subject)

	if err := c.cfg.Pipeline.Run(ctx, run); err != nil {
		log.Error("subject failed", "session", subject.Session, "error", err)
	}
	if !run.IsFinished() {
		run.MarkFailed("pipeline returned without finalizing the run")
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ObserveSubject(run.Outcome)
	}
	if c.cfg.Store != nil {
		if err := c.cfg.Store.SaveRun(ctx, run); err != nil {
			log.Error("failed to persist run", "run_id", run.ID, "error", err)
		}
	}
	return run
}
