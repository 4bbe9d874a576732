package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskKind — тип задачи внутри субъектного пайплайна.
//
// Каждый тип исполняется зарегистрированным executor'ом (см. pipeline).
type TaskKind string

const (
	// TaskSegment — запуск DL-сегментации (GPU-bound, сериализуется).
	TaskSegment TaskKind = "segment"

	// TaskDeriveMasks — извлечение масок cord/canal/union из сегментации.
	TaskDeriveMasks TaskKind = "derive-masks"

	// TaskDeriveLevels — перемаркировка уровней позвонков в конвенцию SCT.
	TaskDeriveLevels TaskKind = "derive-levels"

	// TaskFilterDiscs — фильтрация меток дисков до диапазона шаблона.
	TaskFilterDiscs TaskKind = "filter-discs"

	// TaskRegister — регистрация субъекта в референсное пространство.
	TaskRegister TaskKind = "register"

	// TaskWarp — варпирование шаблона в нативное пространство субъекта.
	TaskWarp TaskKind = "warp"

	// TaskBinarize — бинаризация вероятностного объёма порогом 0.5.
	TaskBinarize TaskKind = "binarize"

	// TaskUnion — воксельное объединение двух масок.
	TaskUnion TaskKind = "union"

	// TaskSubtract — вычитание с отсечением в ноль (canal-only).
	TaskSubtract TaskKind = "subtract"

	// TaskMeasureArea — измерение площади по уровням позвонков.
	TaskMeasureArea TaskKind = "measure-area"

	// TaskMeasureRatio — вычисление отношения cord/canal-only по уровням.
	TaskMeasureRatio TaskKind = "measure-ratio"

	// TaskComposeQC — сборка QC-оверлея субъекта.
	TaskComposeQC TaskKind = "compose-qc"
)

// TaskDef — декларативное описание задачи в DAG субъекта.
//
// Задача — данные, а не код: объявленные входы, один выход и тип
// операции. Граф фиксирован и строится целиком до выполнения;
// executor планирует задачи обобщённо по зависимостям.
//
// Инвариант: две задачи никогда не объявляют один и тот же Output —
// это исключает write-write гонки по построению.
type TaskDef struct {
	// ID — уникальный идентификатор задачи внутри субъекта.
	ID string

	// Kind — тип операции.
	Kind TaskKind

	// DependsOn — задачи, которые обязаны достичь SUCCEEDED до старта.
	DependsOn []string

	// Inputs — имена входных объёмов/хэндлов.
	Inputs []string

	// Output — имя производимого выхода (эксклюзивно для этой задачи).
	Output string

	// Method — метод измерения (для measure-задач).
	Method Method

	// Mode — режим интерполяции (warp и measure-задачи ветки абляции).
	Mode InterpolationMode

	// Measure — вид измеряемой величины: "cord", "canal" или "ratio".
	Measure string

	// Label — код метки для извлечения (derive-задачи).
	Label int

	// Scheme — активная схема меток (derive-задачи).
	Scheme LabelScheme
}

// TaskRecord — запись о выполнении одной задачи.
//
// Создаётся пайплайном при старте задачи, финализируется по завершении.
type TaskRecord struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID

	// RunID — ссылка на субъектный run.
	RunID uuid.UUID

	// TaskID — ID задачи из TaskDef.
	TaskID string

	// Kind — тип задачи.
	Kind TaskKind

	// Status — текущий статус.
	Status TaskStatus

	// StartedAt — время начала выполнения.
	StartedAt *time.Time

	// FinishedAt — время завершения.
	FinishedAt *time.Time

	// Error — текст ошибки при неудаче.
	Error string
}

// NewTaskRecord создаёт запись для задачи в статусе PENDING.
func NewTaskRecord(runID uuid.UUID, def *TaskDef) *TaskRecord {
	return &TaskRecord{
		ID:     uuid.New(),
		RunID:  runID,
		TaskID: def.ID,
		Kind:   def.Kind,
		Status: TaskStatusPending,
	}
}

// Duration возвращает продолжительность выполнения.
func (t *TaskRecord) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// MarkRunning переводит задачу в статус RUNNING.
func (t *TaskRecord) MarkRunning() {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.StartedAt = &now
}

// MarkSucceeded переводит задачу в статус SUCCEEDED.
func (t *TaskRecord) MarkSucceeded() {
	now := time.Now()
	t.Status = TaskStatusSucceeded
	t.FinishedAt = &now
}

// MarkFailed переводит задачу в статус FAILED с ошибкой.
func (t *TaskRecord) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.FinishedAt = &now
	t.Error = err
}

// MarkSkipped переводит задачу в статус SKIPPED: она не стартовала
// из-за падения в графе.
func (t *TaskRecord) MarkSkipped() {
	now := time.Now()
	t.Status = TaskStatusSkipped
	t.FinishedAt = &now
}
