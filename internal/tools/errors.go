package tools

import (
	"errors"
	"fmt"

	"canalis/internal/volume"
)

// Ошибки внешних инструментов.
var (
	// ErrInputMissing — входное изображение не найдено.
	// Субъект пропускается, это не отказ.
	ErrInputMissing = errors.New("input image missing")

	// ErrSegmentationFailed — инструмент сегментации завершился с ошибкой.
	ErrSegmentationFailed = errors.New("segmentation failed")

	// ErrRegistrationFailed — регистрация к шаблону завершилась с ошибкой.
	ErrRegistrationFailed = errors.New("registration failed")

	// ErrWarpFailed — перенос шаблона завершился с ошибкой.
	ErrWarpFailed = errors.New("warp failed")

	// ErrMeasurementFailed — измерение площади завершилось с ошибкой.
	ErrMeasurementFailed = errors.New("measurement failed")

	// ErrQCFailed — сборка QC-отчёта завершилась с ошибкой.
	ErrQCFailed = errors.New("qc composition failed")

	// ErrCapabilityUnavailable — инструмент, прошедший проверку
	// наличия, исчез к моменту запуска. Отсутствие на этапе проверки
	// выражается пропуском ветки, не этой ошибкой.
	ErrCapabilityUnavailable = errors.New("segmentation tool vanished after probe")
)

// ToolFailure — контекст отказа внешнего инструмента.
type ToolFailure struct {
	// Tool — имя инструмента или команды.
	Tool string

	// Subject — идентификатор субъекта.
	Subject string

	// Err — причина отказа (одна из сентинельных ошибок выше,
	// обёрнутая вокруг исходной ошибки запуска).
	Err error
}

// Error реализует интерфейс error.
func (e *ToolFailure) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("tool %s (subject %s): %v", e.Tool, e.Subject, e.Err)
	}
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

// Unwrap возвращает причину отказа.
func (e *ToolFailure) Unwrap() error {
	return e.Err
}

// IsToolError сообщает, относится ли ошибка к классу отказов
// инструментов: такой отказ делает субъект failed и останавливает
// запуск новых задач его графа. Несовпадение геометрии томов
// относится к тому же классу.
func IsToolError(err error) bool {
	switch {
	case errors.Is(err, ErrSegmentationFailed),
		errors.Is(err, ErrRegistrationFailed),
		errors.Is(err, ErrWarpFailed),
		errors.Is(err, ErrMeasurementFailed),
		errors.Is(err, ErrQCFailed),
		errors.Is(err, ErrCapabilityUnavailable),
		errors.Is(err, volume.ErrGeometryMismatch):
		return true
	}
	return false
}
