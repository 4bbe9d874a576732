package engine

import "errors"

// Ошибки построения DAG.
var (
	// ErrEmptyGraph — граф не содержит задач.
	ErrEmptyGraph = errors.New("task graph has no tasks")

	// ErrEmptyTaskID — задача не имеет ID.
	ErrEmptyTaskID = errors.New("task has empty ID")

	// ErrDuplicateTaskID — несколько задач с одинаковым ID.
	ErrDuplicateTaskID = errors.New("duplicate task ID")

	// ErrDuplicateOutput — несколько задач объявляют один выход.
	// Эксклюзивный выход на задачу исключает write-write гонки.
	ErrDuplicateOutput = errors.New("duplicate task output")

	// ErrMissingDependency — задача зависит от несуществующей задачи.
	ErrMissingDependency = errors.New("task depends on unknown task")

	// ErrSelfDependency — задача зависит от самой себя.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// Ошибки выполнения.
var (
	// ErrStalled — нет готовых задач, но граф не завершён
	// (несогласованное состояние; при валидном DAG недостижимо).
	ErrStalled = errors.New("no ready tasks but graph not finished")
)

// GraphError — ошибка построения графа с контекстом задачи.
type GraphError struct {
	TaskID  string // ID задачи, где произошла ошибка
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *GraphError) Error() string {
	if e.TaskID != "" {
		return "task " + e.TaskID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *GraphError) Unwrap() error {
	return e.Err
}
