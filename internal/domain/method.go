package domain

// Method — один из четырёх методов измерения.
type Method string

const (
	// MethodTotalSpineSeg — маски напрямую из сегментации TotalSpineSeg.
	MethodTotalSpineSeg Method = "totalspineseg"

	// MethodSPINEPS — маски из сегментации SPINEPS (опциональный инструмент).
	MethodSPINEPS Method = "spineps"

	// MethodCustomAtlas — канал из варпированного 41-уровневого атласа.
	MethodCustomAtlas Method = "custom-atlas"

	// MethodPAM50 — cord и CSF из варпированных шаблонов PAM50.
	MethodPAM50 Method = "pam50"
)

// Methods — все методы в фиксированном порядке.
var Methods = []Method{MethodTotalSpineSeg, MethodSPINEPS, MethodCustomAtlas, MethodPAM50}

// String возвращает строковое представление метода.
func (m Method) String() string {
	return string(m)
}

// IsWarped возвращает true для методов, зависящих от регистрации
// (и, следовательно, от режима интерполяции).
func (m Method) IsWarped() bool {
	return m == MethodCustomAtlas || m == MethodPAM50
}

// InterpolationMode — правило ресемплинга при варпировании шаблона.
//
// Только custom-atlas и pam50 варьируются по режимам; label-объёмы
// (уровни позвонков) всегда варпируются nearest-neighbor.
type InterpolationMode string

const (
	// InterpNN — интерполяция ближайшего соседа.
	InterpNN InterpolationMode = "nn"

	// InterpLinear — линейная интерполяция.
	InterpLinear InterpolationMode = "linear"

	// InterpSpline — сплайновая интерполяция (лучшее качество границ).
	InterpSpline InterpolationMode = "spline"
)

// InterpolationModes — все режимы абляции в фиксированном порядке.
var InterpolationModes = []InterpolationMode{InterpNN, InterpLinear, InterpSpline}

// String возвращает строковое представление режима.
func (m InterpolationMode) String() string {
	return string(m)
}
