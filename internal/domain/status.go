package domain

// Outcome — терминальный исход субъектного run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED
//	        (или) → SKIPPED (нет входного изображения)
type Outcome string

const (
	// OutcomePending — run создан, но ещё не начал выполняться.
	OutcomePending Outcome = "PENDING"

	// OutcomeRunning — run в процессе выполнения.
	OutcomeRunning Outcome = "RUNNING"

	// OutcomeCompleted — все задачи завершились успешно.
	OutcomeCompleted Outcome = "COMPLETED"

	// OutcomeSkipped — входное изображение не найдено; результатов нет.
	// Это не ошибка и учитывается отдельно от FAILED.
	OutcomeSkipped Outcome = "SKIPPED"

	// OutcomeFailed — какая-то задача упала; результаты субъекта не публикуются.
	OutcomeFailed Outcome = "FAILED"
)

// IsTerminal возвращает true, если исход финальный.
func (o Outcome) IsTerminal() bool {
	switch o {
	case OutcomeCompleted, OutcomeSkipped, OutcomeFailed:
		return true
	default:
		return false
	}
}

// TaskStatus — статус выполнения задачи.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	        (или) → SKIPPED (не стартовала из-за падения в графе)
type TaskStatus string

const (
	// TaskStatusPending — задача ожидает готовности зависимостей.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusRunning — задача выполняется.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusSucceeded — задача успешно завершена.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed — задача завершилась с ошибкой.
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusSkipped — задача не стартовала: наблюдалось падение
	// в графе, новые задачи не запускаются.
	TaskStatusSkipped TaskStatus = "SKIPPED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}
