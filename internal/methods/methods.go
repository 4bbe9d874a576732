// Package methods описывает четыре метода измерения декларативной таблицей.
//
// Каждый метод задаёт источники масок cord / canal / canal-only и источник
// уровней позвонков. Пайплайн разрешает источники в конкретные хэндлы
// рабочей области и строит задачи по этой таблице, а не вручную.
//
// Инвариант для каждого метода: cord ⊆ canal — канал по построению
// надмножество (union либо атлас, включающий cord).
package methods

import (
	"fmt"

	"canalis/internal/domain"
)

// Source — семантический источник объёма в рабочей области субъекта.
type Source string

const (
	// SourceDLCord — метка "cord" из DL-сегментации метода.
	SourceDLCord Source = "dl-cord"

	// SourceDLCanal — метка "canal" из DL-сегментации (canal-only).
	SourceDLCanal Source = "dl-canal"

	// SourceDLCombined — union меток {cord, canal} из DL-сегментации.
	SourceDLCombined Source = "dl-combined"

	// SourceTSSCord — маска cord метода TotalSpineSeg (переиспользуется
	// атласным методом).
	SourceTSSCord Source = "totalspineseg-cord"

	// SourceWarpedCordBin — варпированный и бинаризованный cord-шаблон PAM50.
	SourceWarpedCordBin Source = "warped-cord-bin"

	// SourceWarpedAtlasBin — варпированный бинаризованный полный атлас
	// канала (уже включает cord).
	SourceWarpedAtlasBin Source = "warped-atlas-bin"

	// SourceWarpedUnion — union(warped cord, warped CSF).
	SourceWarpedUnion Source = "warped-union"

	// SourceSubtractAtlas — subtractFloor(атлас канала, cord).
	SourceSubtractAtlas Source = "subtract-atlas"

	// SourceSubtractUnion — subtractFloor(union, warped cord).
	SourceSubtractUnion Source = "subtract-union"

	// SourceDLLevels — перемаркированные уровни из TotalSpineSeg.
	SourceDLLevels Source = "dl-levels"

	// SourceWarpedLevels — варпированные уровни PAM50 (всегда NN).
	SourceWarpedLevels Source = "warped-levels"
)

// Definition — строка таблицы методов.
type Definition struct {
	// Method — идентификатор метода.
	Method domain.Method

	// Scheme — схема меток DL-сегментации (только для DL-методов).
	Scheme domain.LabelScheme

	// Cord — источник маски cord.
	Cord Source

	// Canal — источник маски canal (надмножество cord).
	Canal Source

	// CanalOnly — источник маски canal-only (для ratio-измерения).
	CanalOnly Source

	// Levels — источник референса уровней позвонков.
	Levels Source

	// Optional — метод пропускается без ошибки, если его инструмент
	// отсутствует (SPINEPS).
	Optional bool
}

// IsWarped возвращает true для методов, фан-аутящихся по режимам
// интерполяции.
func (d Definition) IsWarped() bool {
	return d.Method.IsWarped()
}

// table — таблица методов, одна строка на метод.
//
//	Метод         | cord              | canal             | canal-only       | levels
//	totalspineseg | DL "cord"         | DL {cord,canal}   | DL "canal"       | DL levels (remap)
//	spineps       | DL "cord"         | DL {cord,canal}   | DL "canal"       | DL levels TSS
//	custom-atlas  | TSS cord          | warped atlas bin  | atlas − cord     | warped PAM50 (NN)
//	pam50         | warped cord bin   | cord ∪ CSF        | union − cord     | warped PAM50 (NN)
var table = []Definition{
	{
		Method:    domain.MethodTotalSpineSeg,
		Scheme:    domain.SchemeTotalSpineSeg,
		Cord:      SourceDLCord,
		Canal:     SourceDLCombined,
		CanalOnly: SourceDLCanal,
		Levels:    SourceDLLevels,
	},
	{
		Method:    domain.MethodSPINEPS,
		Scheme:    domain.SchemeSPINEPS,
		Cord:      SourceDLCord,
		Canal:     SourceDLCombined,
		CanalOnly: SourceDLCanal,
		Levels:    SourceDLLevels,
		Optional:  true,
	},
	{
		Method:    domain.MethodCustomAtlas,
		Cord:      SourceTSSCord,
		Canal:     SourceWarpedAtlasBin,
		CanalOnly: SourceSubtractAtlas,
		Levels:    SourceWarpedLevels,
	},
	{
		Method:    domain.MethodPAM50,
		Cord:      SourceWarpedCordBin,
		Canal:     SourceWarpedUnion,
		CanalOnly: SourceSubtractUnion,
		Levels:    SourceWarpedLevels,
	},
}

// All возвращает все определения методов в фиксированном порядке.
func All() []Definition {
	out := make([]Definition, len(table))
	copy(out, table)
	return out
}

// Get возвращает определение метода.
func Get(m domain.Method) (Definition, error) {
	for _, d := range table {
		if d.Method == m {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("unknown method: %s", m)
}

// Modes возвращает режимы интерполяции, по которым оценивается метод.
// Неварпированные методы оцениваются один раз (пустой режим).
func (d Definition) Modes() []domain.InterpolationMode {
	if d.IsWarped() {
		return domain.InterpolationModes
	}
	return []domain.InterpolationMode{""}
}

// ResultKeys возвращает ключи результирующих наборов метода.
func (d Definition) ResultKeys() []domain.ResultKey {
	keys := make([]domain.ResultKey, 0, 3)
	for _, mode := range d.Modes() {
		keys = append(keys, domain.ResultKey{Method: d.Method, Mode: mode})
	}
	return keys
}
