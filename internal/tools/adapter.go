package tools

import (
	"context"

	"canalis/internal/domain"
)

// Ref — ссылка на сохранённый том или артефакт (путь в рабочем
// каталоге субъекта). Инструменты обмениваются данными через файлы,
// алгебра масок работает в памяти, поэтому адаптер предоставляет
// LoadVolume/SaveVolume для перехода между представлениями.
type Ref string

// Segmentation — результат запуска инструмента сегментации.
type Segmentation struct {
	// Labels — размеченный том с целочисленными метками структур.
	Labels Ref

	// Levels — том позвоночных уровней (выдаёт TotalSpineSeg;
	// пусто для инструментов без выхода уровней).
	Levels Ref

	// Discs — точечные метки межпозвоночных дисков (вход регистрации;
	// пусто для инструментов без выхода дисков).
	Discs Ref
}

// Adapter — интерфейс внешних инструментов сегментации, регистрации,
// переноса и измерения.
//
// Все методы с запуском инструмента возвращают ошибку класса
// ToolFailure при ненулевом коде выхода. Probe-метод HasSegmenter
// чисто проверяет наличие и никогда не запускает инструмент.
type Adapter interface {
	// Segment запускает сегментацию изображения инструментом схемы
	// scheme и возвращает ссылки на выходные тома.
	Segment(ctx context.Context, scheme domain.LabelScheme, image Ref, outDir string) (*Segmentation, error)

	// HasSegmenter сообщает, доступен ли инструмент сегментации для
	// схемы. Проверка присутствия, без запуска.
	HasSegmenter(scheme domain.LabelScheme) bool

	// RegisterToReference строит преобразование из пространства
	// шаблона в пространство изображения по маске спинного мозга и
	// меткам дисков. Возвращает ссылку на поле деформации.
	RegisterToReference(ctx context.Context, image, cordMask, discLabels Ref, outDir string) (Ref, error)

	// Warp переносит том шаблона в пространство изображения dest по
	// преобразованию transform с заданным режимом интерполяции.
	Warp(ctx context.Context, template, transform, dest Ref, mode domain.InterpolationMode, out Ref) error

	// MeasureArea измеряет среднюю площадь сечения маски по
	// позвоночным уровням levels и пишет таблицу в out (CSV).
	MeasureArea(ctx context.Context, mask, levels Ref, out Ref) (*domain.LevelTable, error)

	// ComputeRatio измеряет отношение площадей мозг/канал по уровням.
	// Канал здесь — объединение cordMask и canalOnlyMask.
	ComputeRatio(ctx context.Context, cordMask, canalOnlyMask, levels Ref, out Ref) (*domain.LevelTable, error)

	// ComposeQC собирает контрольный отчёт: оверлеи масок поверх
	// изображения. Отсутствующие оверлеи молча пропускаются.
	ComposeQC(ctx context.Context, image Ref, overlays []Ref, outDir string) error

	// LoadVolume читает том по ссылке в память.
	LoadVolume(path Ref) (domain.Volume, error)

	// SaveVolume сохраняет том по ссылке.
	SaveVolume(v domain.Volume, path Ref) error
}
