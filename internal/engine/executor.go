package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"canalis/internal/domain"
)

// Runner — исполнитель одной задачи.
type Runner interface {
	// Run выполняет задачу. Ошибка останавливает запуск новых задач
	// графа, но не прерывает уже выполняющиеся.
	Run(ctx context.Context, def *domain.TaskDef) error
}

// RunnerFunc — адаптер функции к интерфейсу Runner.
type RunnerFunc func(ctx context.Context, def *domain.TaskDef) error

// Run реализует Runner.
func (f RunnerFunc) Run(ctx context.Context, def *domain.TaskDef) error {
	return f(ctx, def)
}

// Observer — наблюдатель жизненного цикла задач.
// Вызовы приходят из нескольких горутин.
type Observer interface {
	// TaskStarted вызывается перед запуском задачи.
	TaskStarted(def *domain.TaskDef)

	// TaskFinished вызывается после завершения задачи
	// с её статусом и ошибкой (nil при успехе).
	TaskFinished(def *domain.TaskDef, status domain.TaskStatus, err error, elapsed time.Duration)
}

// Report — итог выполнения графа.
type Report struct {
	// Succeeded — количество успешно завершённых задач.
	Succeeded int

	// Failed — количество упавших задач.
	Failed int

	// Skipped — количество задач, не запущенных из-за падения
	// зависимостей.
	Skipped int

	// Elapsed — полное время выполнения графа.
	Elapsed time.Duration
}

// ExecutorConfig — конфигурация исполнителя графа.
type ExecutorConfig struct {
	// Concurrency — максимальное число одновременно выполняющихся
	// задач. По умолчанию 4.
	Concurrency int

	// Observer — необязательный наблюдатель жизненного цикла задач.
	Observer Observer

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

// Executor выполняет DAG задач с ограниченным параллелизмом.
//
// Семантика отказа: после первой ошибки новые задачи не запускаются,
// уже выполняющиеся доводятся до конца, оставшиеся помечаются
// пропущенными. Execute возвращает первую ошибку.
type Executor struct {
	concurrency int
	observer    Observer
	log         *slog.Logger
}

// NewExecutor создаёт исполнитель графа.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		concurrency: cfg.Concurrency,
		observer:    cfg.Observer,
		log:         cfg.Logger,
	}
}

// taskResult — результат одной задачи, приходящий из горутины.
type taskResult struct {
	node *Node
	err  error
}

// Execute выполняет граф и возвращает отчёт.
//
// Возвращаемая ошибка — первая ошибка задачи либо ошибка контекста.
// Отчёт заполняется в обоих случаях.
func (e *Executor) Execute(ctx context.Context, dag *DAG, runner Runner) (*Report, error) {
	if dag == nil || len(dag.Nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	start := time.Now()
	state := newExecState()
	results := make(chan taskResult, dag.Size())

	finished := 0
	for finished < dag.Size() {
		// Запускаем готовые задачи, пока нет отказа и есть слоты.
		if !state.hasFailure() && ctx.Err() == nil {
			completed, running, terminal := state.snapshot()
			ready := dag.GetReadyNodes(completed, running, terminal)
			for _, node := range ready {
				if state.runningCount() >= e.concurrency {
					break
				}
				e.dispatch(ctx, node, runner, state, results)
			}
		}

		if state.runningCount() == 0 {
			// Нечего ждать. Либо отказ остановил запуск, либо граф
			// застрял (не должно случаться для валидного DAG).
			if state.hasFailure() || ctx.Err() != nil {
				break
			}
			return nil, &GraphError{Message: "no runnable tasks but graph is not finished", Err: ErrStalled}
		}

		res := <-results
		finished++
		if res.err != nil {
			state.markFailed(res.node.ID, res.err)
		} else {
			state.markCompleted(res.node.ID)
		}
	}

	// Дожидаемся всех запущенных задач.
	for state.runningCount() > 0 {
		res := <-results
		if res.err != nil {
			state.markFailed(res.node.ID, res.err)
		} else {
			state.markCompleted(res.node.ID)
		}
	}

	// Помечаем незапущенные задачи пропущенными.
	completed, _, terminal := state.snapshot()
	for _, node := range dag.Order {
		if completed[node.ID] || terminal[node.ID] {
			continue
		}
		state.markSkipped(node.ID)
		if e.observer != nil {
			e.observer.TaskFinished(node.Def, domain.TaskStatusSkipped, nil, 0)
		}
	}

	succeeded, failed, skipped := state.counts()
	report := &Report{
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
		Elapsed:   time.Since(start),
	}

	if err := state.err(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("graph execution interrupted: %w", err)
	}
	return report, nil
}

// dispatch запускает задачу в отдельной горутине.
func (e *Executor) dispatch(ctx context.Context, node *Node, runner Runner, state *execState, results chan<- taskResult) {
	state.markRunning(node.ID)
	if e.observer != nil {
		e.observer.TaskStarted(node.Def)
	}
	e.log.Debug("task started", "task_id", node.ID, "kind", node.Def.Kind)

	go func() {
		taskStart := time.Now()
		err := runner.Run(ctx, node.Def)
		elapsed := time.Since(taskStart)

		if err != nil {
			e.log.Error("task failed", "task_id", node.ID, "kind", node.Def.Kind,
				"elapsed", elapsed, "error", err)
			if e.observer != nil {
				e.observer.TaskFinished(node.Def, domain.TaskStatusFailed, err, elapsed)
			}
			results <- taskResult{node: node, err: fmt.Errorf("task %s: %w", node.ID, err)}
			return
		}

		e.log.Debug("task finished", "task_id", node.ID, "kind", node.Def.Kind, "elapsed", elapsed)
		if e.observer != nil {
			e.observer.TaskFinished(node.Def, domain.TaskStatusSucceeded, nil, elapsed)
		}
		results <- taskResult{node: node}
	}()
}
