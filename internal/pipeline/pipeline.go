// Пакет pipeline — выполнение полного измерительного графа одного
// субъекта: поиск входа, сегментация, вывод масок, регистрация с
// абляцией по интерполяции, измерения и публикация результатов.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"canalis/internal/domain"
	"canalis/internal/engine"
	"canalis/internal/tools"
)

// Config — конфигурация субъектного пайплайна.
type Config struct {
	// DataDir — корень BIDS-датасета.
	DataDir string

	// WorkDir — корень рабочих каталогов субъектов.
	WorkDir string

	// ResultsDir — корень дерева результатов.
	ResultsDir string

	// Contrast — контраст входного изображения. По умолчанию "T2w".
	Contrast string

	// Patterns — упорядоченные шаблоны имени входа.
	// По умолчанию DefaultPatterns(Contrast).
	Patterns []string

	// Templates — файлы шаблона PAM50.
	Templates TemplateSet

	// Concurrency — параллелизм задач внутри субъекта. По умолчанию 4.
	Concurrency int

	// Adapter — адаптер внешних инструментов.
	Adapter tools.Adapter

	// Observer — необязательный внешний наблюдатель задач (метрики).
	Observer engine.Observer

	// Publisher — необязательный приёмник опубликованных наборов
	// (например, репозиторий измерений). Вызывается только после
	// успешной публикации CSV.
	Publisher ResultPublisher

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Contrast == "" {
		c.Contrast = "T2w"
	}
	if len(c.Patterns) == 0 {
		c.Patterns = DefaultPatterns(c.Contrast)
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// SubjectPipeline выполняет измерительный граф для одного субъекта.
//
// Субъекты полностью изолированы: вся рабочая область, граф и
// результаты живут внутри одного вызова Run. Падение любой задачи
// делает субъект failed и не публикует ни одного результата.
type SubjectPipeline struct {
	cfg Config
}

// New создаёт субъектный пайплайн.
func New(cfg Config) (*SubjectPipeline, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("pipeline: adapter is required")
	}
	cfg.setDefaults()
	return &SubjectPipeline{cfg: cfg}, nil
}

// Run выполняет пайплайн для субъекта и финализирует run.
//
// Исходы: skipped при отсутствии входа, failed при падении задачи,
// completed при полном успехе с опубликованными результатами.
// Ошибка возвращается только для failed.
func (p *SubjectPipeline) Run(ctx context.Context, run *domain.SubjectRun) error {
	log := p.cfg.Logger.With("subject", run.Subject, "session", run.Session, "run_id", run.ID)
	base := SubjectBase(run.Subject, run.Session, run.Contrast)

	image, err := Discover(p.anatDir(run), p.cfg.Patterns)
	if err != nil {
		if errors.Is(err, tools.ErrInputMissing) {
			log.Info("no input image, subject skipped", "contrast", run.Contrast)
			run.MarkSkipped()
			return nil
		}
		run.MarkFailed(err.Error())
		return err
	}
	run.Image = string(image)
	run.MarkRunning()

	// Probe опционального инструмента: только присутствие, без запуска.
	run.SPINEPSAvailable = p.cfg.Adapter.HasSegmenter(domain.SchemeSPINEPS)
	if !run.SPINEPSAvailable {
		log.Info("spineps unavailable, method will be absent from results")
	}

	workDir := filepath.Join(p.cfg.WorkDir, base)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		run.MarkFailed(err.Error())
		return fmt.Errorf("create subject workdir: %w", err)
	}

	ws := NewWorkspace(workDir)
	ws.SetRef(keyImage, image)

	defs := BuildGraph(GraphParams{
		SPINEPS:   run.SPINEPSAvailable,
		Templates: p.cfg.Templates,
	})
	dag, err := engine.Build(defs)
	if err != nil {
		run.MarkFailed(err.Error())
		return fmt.Errorf("build subject graph: %w", err)
	}

	runner := NewTaskRunner(ws, p.cfg.Adapter, base, log)
	recorder := &runRecorder{run: run, next: p.cfg.Observer}
	executor := engine.NewExecutor(engine.ExecutorConfig{
		Concurrency: p.cfg.Concurrency,
		Observer:    recorder,
		Logger:      log,
	})

	report, err := executor.Execute(ctx, dag, runner)
	if err != nil {
		log.Error("subject graph failed",
			"succeeded", report.Succeeded, "failed", report.Failed, "skipped", report.Skipped,
			"error", err)
		run.MarkFailed(err.Error())
		return err
	}

	keys := ExpectedResultKeys(run.SPINEPSAvailable)
	if err := Publish(ws, p.cfg.ResultsDir, base, keys); err != nil {
		run.MarkFailed(err.Error())
		return err
	}
	if p.cfg.Publisher != nil {
		for _, key := range keys {
			if err := p.cfg.Publisher.PublishResultSet(ctx, run, key, ws.Result(key)); err != nil {
				// БД вторична по отношению к CSV-дереву: результат уже
				// опубликован, субъект не проваливается.
				log.Error("failed to persist result set", "key", key.Dir(), "error", err)
			}
		}
	}

	run.MarkCompleted()
	log.Info("subject completed",
		"tasks", report.Succeeded, "elapsed", report.Elapsed, "result_sets", len(keys))
	return nil
}

// anatDir возвращает каталог анатомических изображений субъекта.
func (p *SubjectPipeline) anatDir(run *domain.SubjectRun) string {
	dir := filepath.Join(p.cfg.DataDir, run.Subject)
	if run.Session != "" {
		dir = filepath.Join(dir, run.Session)
	}
	return filepath.Join(dir, "anat")
}

// runRecorder ведёт записи задач в SubjectRun и пробрасывает события
// внешнему наблюдателю.
type runRecorder struct {
	mu   sync.Mutex
	run  *domain.SubjectRun
	next engine.Observer
}

func (r *runRecorder) TaskStarted(def *domain.TaskDef) {
	r.mu.Lock()
	record := domain.NewTaskRecord(r.run.ID, def)
	record.MarkRunning()
	r.run.Tasks[def.ID] = record
	r.mu.Unlock()

	if r.next != nil {
		r.next.TaskStarted(def)
	}
}

func (r *runRecorder) TaskFinished(def *domain.TaskDef, status domain.TaskStatus, err error, elapsed time.Duration) {
	r.mu.Lock()
	record, ok := r.run.Tasks[def.ID]
	if !ok {
		record = domain.NewTaskRecord(r.run.ID, def)
		r.run.Tasks[def.ID] = record
	}
	switch status {
	case domain.TaskStatusSucceeded:
		record.MarkSucceeded()
	case domain.TaskStatusFailed:
		record.MarkFailed(err.Error())
	case domain.TaskStatusSkipped:
		record.MarkSkipped()
	}
	r.mu.Unlock()

	if r.next != nil {
		r.next.TaskFinished(def, status, err, elapsed)
	}
}
