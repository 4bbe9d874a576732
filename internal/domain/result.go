package domain

// LevelRow — одно измерение, привязанное к уровню позвонка.
type LevelRow struct {
	// Level — уровень позвонка в конвенции SCT (C2=2, C3=3, ...).
	Level int

	// Value — измеренная величина: средняя площадь (мм²) или отношение.
	Value float64
}

// LevelTable — табличный результат одного измерения по уровням.
//
// Это и есть «строки» per-subject CSV: колонка VertLevel + колонка
// значения. Колонка значения всегда называется "MEAN(area)", в том
// числе для ratio-таблиц: потребители разбирают единственное имя.
type LevelTable struct {
	// Column — имя колонки значения ("MEAN(area)").
	Column string

	// Rows — строки по уровням, отсортированы по возрастанию уровня.
	Rows []LevelRow
}

// Виды измеряемых величин в результирующем наборе метода.
const (
	MeasureCord  = "cord"
	MeasureCanal = "canal"
	MeasureRatio = "ratio"
)

// Measures — все виды измерений в фиксированном порядке.
var Measures = []string{MeasureCord, MeasureCanal, MeasureRatio}

// ResultKey — ключ результирующего набора: метод + режим интерполяции.
//
// Для неварпированных методов Mode пуст.
type ResultKey struct {
	Method Method
	Mode   InterpolationMode
}

// Dir возвращает имя каталога результатов для ключа:
// "method-totalspineseg", "method-pam50-spline" и т.п.
// Это контракт происхождения, на который опирается агрегация.
func (k ResultKey) Dir() string {
	if k.Mode == "" {
		return "method-" + string(k.Method)
	}
	return "method-" + string(k.Method) + "-" + string(k.Mode)
}

// ResultSet — три таблицы одного метода для одного субъекта.
//
// Инвариант «всё или ничего»: набор публикуется только целиком —
// либо все три таблицы существуют, либо ни одной.
type ResultSet struct {
	Cord  *LevelTable
	Canal *LevelTable
	Ratio *LevelTable
}

// Complete возвращает true, если присутствуют все три таблицы.
func (s *ResultSet) Complete() bool {
	return s != nil && s.Cord != nil && s.Canal != nil && s.Ratio != nil
}

// Table возвращает таблицу по виду измерения.
func (s *ResultSet) Table(measure string) *LevelTable {
	switch measure {
	case MeasureCord:
		return s.Cord
	case MeasureCanal:
		return s.Canal
	case MeasureRatio:
		return s.Ratio
	default:
		return nil
	}
}

// SetTable записывает таблицу по виду измерения.
func (s *ResultSet) SetTable(measure string, t *LevelTable) {
	switch measure {
	case MeasureCord:
		s.Cord = t
	case MeasureCanal:
		s.Canal = t
	case MeasureRatio:
		s.Ratio = t
	}
}
