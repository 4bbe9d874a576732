package domain

// LabelScheme — схема целочисленных меток источника сегментации.
//
// Две схемы используют непересекающиеся коды для одних и тех же
// семантических классов. В одном пути деривации активна ровно одна схема.
type LabelScheme string

const (
	// SchemeTotalSpineSeg — схема меток TotalSpineSeg (cord=1, canal=2).
	SchemeTotalSpineSeg LabelScheme = "totalspineseg"

	// SchemeSPINEPS — схема меток SPINEPS (cord=60, canal=61).
	SchemeSPINEPS LabelScheme = "spineps"
)

// Коды классов по схемам.
const (
	// TotalSpineSegCord — спинной мозг в схеме TotalSpineSeg.
	TotalSpineSegCord = 1

	// TotalSpineSegCanal — спинномозговой канал в схеме TotalSpineSeg.
	TotalSpineSegCanal = 2

	// SPINEPSCord — спинной мозг в схеме SPINEPS.
	SPINEPSCord = 60

	// SPINEPSCanal — спинномозговой канал в схеме SPINEPS.
	SPINEPSCanal = 61
)

// CordLabel возвращает код класса "cord" для схемы.
func (s LabelScheme) CordLabel() int {
	if s == SchemeSPINEPS {
		return SPINEPSCord
	}
	return TotalSpineSegCord
}

// CanalLabel возвращает код класса "canal" для схемы.
func (s LabelScheme) CanalLabel() int {
	if s == SchemeSPINEPS {
		return SPINEPSCanal
	}
	return TotalSpineSegCanal
}

// VertebralLevelMap — отображение уровней позвонков TotalSpineSeg → SCT.
//
// Шейные 11..17 → 1..7, грудные 21..32 → 8..19, поясничные 41..45 → 20..24,
// крестец 50 → 25. Всё остальное становится фоном.
var VertebralLevelMap = map[int]int{
	11: 1, 12: 2, 13: 3, 14: 4, 15: 5, 16: 6, 17: 7,
	21: 8, 22: 9, 23: 10, 24: 11, 25: 12, 26: 13,
	27: 14, 28: 15, 29: 16, 30: 17, 31: 18, 32: 19,
	41: 20, 42: 21, 43: 22, 44: 23, 45: 24,
	50: 25,
}

// SacrumLevel — наибольший уровень в конвенции SCT (крестец).
const SacrumLevel = 25

// DiscLabelMax — максимальная метка диска, совместимая с шаблоном PAM50.
const DiscLabelMax = 21

// DiscLabelExtra — дополнительная допустимая метка диска (вершина зуба C2).
const DiscLabelExtra = 60
