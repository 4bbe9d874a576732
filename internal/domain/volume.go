package domain

// VolumeKind — тип данных вокселей.
type VolumeKind string

const (
	// VolumeBinary — бинарная маска (0/1).
	VolumeBinary VolumeKind = "binary"

	// VolumeLabel — целочисленные метки (сегментация, уровни позвонков).
	VolumeLabel VolumeKind = "label"

	// VolumeProbabilistic — вероятностный объём (warped шаблоны, [0..1]).
	VolumeProbabilistic VolumeKind = "probabilistic"
)

// Geometry — воксельная геометрия объёма.
//
// Все объёмы, участвующие в одной деривации, обязаны иметь идентичную
// геометрию (один субъект, одно пространство). Несовпадение — жёсткая
// ошибка, а не молчаливый ресемплинг.
type Geometry struct {
	// Dims — размеры по осям X, Y, Z (в вокселях).
	Dims [3]int

	// Spacing — размер вокселя по осям (мм).
	Spacing [3]float64

	// Origin — мировые координаты вокселя (0,0,0).
	Origin [3]float64
}

// Equal проверяет совпадение геометрий.
// Spacing и Origin сравниваются с допуском на float-артефакты заголовков.
func (g Geometry) Equal(other Geometry) bool {
	const eps = 1e-5

	if g.Dims != other.Dims {
		return false
	}
	for i := 0; i < 3; i++ {
		if abs(g.Spacing[i]-other.Spacing[i]) > eps {
			return false
		}
		if abs(g.Origin[i]-other.Origin[i]) > eps {
			return false
		}
	}
	return true
}

// NumVoxels возвращает общее количество вокселей.
func (g Geometry) NumVoxels() int {
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Volume — 3-D объём с воксельной геометрией.
//
// Данные хранятся плоским массивом, индекс = z*W*H + y*W + x.
// Объём создаётся один раз производящей задачей и далее читается
// downstream-задачами без мутаций: каждая операция алгебры возвращает
// новый Volume.
type Volume struct {
	// Geom — воксельная геометрия.
	Geom Geometry

	// Kind — тип данных вокселей.
	Kind VolumeKind

	// Data — воксели, плоский массив длины Geom.NumVoxels().
	Data []float64
}

// NewVolume создаёт объём, заполненный нулями.
func NewVolume(geom Geometry, kind VolumeKind) Volume {
	return Volume{
		Geom: geom,
		Kind: kind,
		Data: make([]float64, geom.NumVoxels()),
	}
}

// Index возвращает индекс вокселя (x, y, z) в Data.
func (v Volume) Index(x, y, z int) int {
	w, h := v.Geom.Dims[0], v.Geom.Dims[1]
	return z*w*h + y*w + x
}

// At возвращает значение вокселя (x, y, z).
func (v Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set устанавливает значение вокселя (x, y, z).
func (v Volume) Set(x, y, z int, val float64) {
	v.Data[v.Index(x, y, z)] = val
}

// Clone возвращает глубокую копию объёма.
func (v Volume) Clone() Volume {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return Volume{Geom: v.Geom, Kind: v.Kind, Data: data}
}

// CountNonZero возвращает количество ненулевых вокселей.
func (v Volume) CountNonZero() int {
	n := 0
	for _, val := range v.Data {
		if val != 0 {
			n++
		}
	}
	return n
}
