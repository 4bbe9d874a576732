package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubjectRun — полная запись выполнения пайплайна для одного субъекта.
//
// SubjectRun создаётся при старте субъекта и финализируется, когда все
// ветки графа сошлись или одна из задач упала. Объёмы и задачи живут
// только внутри одного run — никакого разделения между субъектами.
type SubjectRun struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID

	// Subject — BIDS-идентификатор субъекта (например "sub-amu01").
	Subject string

	// Session — BIDS-идентификатор сессии, если есть.
	Session string

	// Contrast — контраст изображения ("T1w", "T2w").
	Contrast string

	// Outcome — терминальный исход.
	Outcome Outcome

	// Image — путь найденного входного изображения (пусто при SKIPPED).
	Image string

	// SPINEPSAvailable — был ли доступен опциональный инструмент.
	SPINEPSAvailable bool

	// Tasks — записи всех задач run (taskID → запись).
	Tasks map[string]*TaskRecord

	// StartedAt — время начала выполнения.
	StartedAt *time.Time

	// FinishedAt — время завершения.
	FinishedAt *time.Time

	// Error — текст первой ошибки, если run завершился с FAILED.
	Error string

	// CreatedAt — время создания run.
	CreatedAt time.Time
}

// NewSubjectRun создаёт run в статусе PENDING.
func NewSubjectRun(subject, session, contrast string) *SubjectRun {
	return &SubjectRun{
		ID:        uuid.New(),
		Subject:   subject,
		Session:   session,
		Contrast:  contrast,
		Outcome:   OutcomePending,
		Tasks:     make(map[string]*TaskRecord),
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
func (r *SubjectRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён.
func (r *SubjectRun) IsFinished() bool {
	return r.Outcome.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *SubjectRun) MarkRunning() {
	now := time.Now()
	r.Outcome = OutcomeRunning
	r.StartedAt = &now
}

// MarkCompleted переводит run в исход COMPLETED.
func (r *SubjectRun) MarkCompleted() {
	now := time.Now()
	r.Outcome = OutcomeCompleted
	r.FinishedAt = &now
}

// MarkSkipped переводит run в исход SKIPPED.
func (r *SubjectRun) MarkSkipped() {
	now := time.Now()
	r.Outcome = OutcomeSkipped
	r.FinishedAt = &now
}

// MarkFailed переводит run в исход FAILED с ошибкой.
func (r *SubjectRun) MarkFailed(err string) {
	now := time.Now()
	r.Outcome = OutcomeFailed
	r.FinishedAt = &now
	r.Error = err
}
