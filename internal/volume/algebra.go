// Package volume реализует алгебру масок над 3-D объёмами.
//
// Все операции чистые: входные объёмы не мутируются, каждая деривация
// возвращает новый Volume. Все операции требуют идентичной воксельной
// геометрии входов; несовпадение — жёсткая ошибка.
package volume

import (
	"math"

	"canalis/internal/domain"
)

// Threshold — порог бинаризации, фиксирован для всего пайплайна.
const Threshold = 0.5

// Binarize возвращает бинарную маску: воксель равен 1, где вход ≥ threshold.
//
// Используется для превращения вероятностных/варпированных шаблонов в маски.
func Binarize(v domain.Volume, threshold float64) domain.Volume {
	out := domain.NewVolume(v.Geom, domain.VolumeBinary)
	for i, val := range v.Data {
		if val >= threshold {
			out.Data[i] = 1
		}
	}
	return out
}

// Union возвращает воксельное логическое ИЛИ двух масок.
//
// Реализовано как binarize(a+b, 0.5), чтобы переносить небинарные
// вероятностные входы до комбинирования.
func Union(a, b domain.Volume) (domain.Volume, error) {
	if err := checkGeometry("union", a, b); err != nil {
		return domain.Volume{}, err
	}

	out := domain.NewVolume(a.Geom, domain.VolumeBinary)
	for i := range a.Data {
		if a.Data[i]+b.Data[i] >= Threshold {
			out.Data[i] = 1
		}
	}
	return out, nil
}

// SubtractFloor возвращает binarize(a−b, 0.5) с отсечением отрицательных
// значений в ноль.
//
// Это деривация canal-only: там, где маска cord выходит за границу
// шаблона канала, результат обнуляется, а не переполняется и не
// распространяется дальше.
func SubtractFloor(a, b domain.Volume) (domain.Volume, error) {
	if err := checkGeometry("subtract", a, b); err != nil {
		return domain.Volume{}, err
	}

	out := domain.NewVolume(a.Geom, domain.VolumeBinary)
	for i := range a.Data {
		if a.Data[i]-b.Data[i] >= Threshold {
			out.Data[i] = 1
		}
	}
	return out, nil
}

// ExtractLabel возвращает бинарную маску вокселей с данной меткой.
//
// Вход округляется до целого перед сравнением: label-объёмы иногда
// хранятся как float с артефактами (1.0001 → 1).
func ExtractLabel(seg domain.Volume, label int) domain.Volume {
	return ExtractLabels(seg, []int{label})
}

// ExtractLabels возвращает бинарную маску вокселей, метка которых входит
// в набор labels.
func ExtractLabels(seg domain.Volume, labels []int) domain.Volume {
	set := make(map[int]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}

	out := domain.NewVolume(seg.Geom, domain.VolumeBinary)
	for i, val := range seg.Data {
		if set[int(math.Round(val))] {
			out.Data[i] = 1
		}
	}
	return out
}

// ZIntersect обнуляет аксиальные срезы, где cord и canal не встречаются
// одновременно.
//
// DL-сегментации дают cord и canal разной протяжённости по Z; измерения
// сравнимы только на срезах, где определены оба класса. Возвращает новый
// label-объём и количество общих срезов.
func ZIntersect(seg domain.Volume, cordLabel, canalLabel int) (domain.Volume, int) {
	dims := seg.Geom.Dims
	out := seg.Clone()

	valid := make([]bool, dims[2])
	shared := 0
	for z := 0; z < dims[2]; z++ {
		hasCord, hasCanal := false, false
		for y := 0; y < dims[1] && !(hasCord && hasCanal); y++ {
			for x := 0; x < dims[0]; x++ {
				switch int(math.Round(seg.At(x, y, z))) {
				case cordLabel:
					hasCord = true
				case canalLabel:
					hasCanal = true
				}
				if hasCord && hasCanal {
					break
				}
			}
		}
		valid[z] = hasCord && hasCanal
		if valid[z] {
			shared++
		}
	}

	for z := 0; z < dims[2]; z++ {
		if valid[z] {
			continue
		}
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				out.Set(x, y, z, 0)
			}
		}
	}
	return out, shared
}

// RelabelLevels перемаркирует уровни позвонков по отображению mapping.
//
// Метки вне отображения становятся фоном. Используется для перевода
// кодов TotalSpineSeg в конвенцию SCT (domain.VertebralLevelMap).
func RelabelLevels(seg domain.Volume, mapping map[int]int) domain.Volume {
	out := domain.NewVolume(seg.Geom, domain.VolumeLabel)
	for i, val := range seg.Data {
		if newLabel, ok := mapping[int(math.Round(val))]; ok {
			out.Data[i] = float64(newLabel)
		}
	}
	return out
}

// FilterDiscLabels удаляет метки дисков вне диапазона шаблона PAM50:
// остаются 1..maxLabel и domain.DiscLabelExtra.
func FilterDiscLabels(seg domain.Volume, maxLabel int) domain.Volume {
	out := domain.NewVolume(seg.Geom, domain.VolumeLabel)
	for i, val := range seg.Data {
		label := int(math.Round(val))
		if (label >= 1 && label <= maxLabel) || label == domain.DiscLabelExtra {
			out.Data[i] = float64(label)
		}
	}
	return out
}

// Contains проверяет воксельную импликацию inner ⊆ outer:
// каждый воксель, установленный в inner, установлен и в outer.
func Contains(outer, inner domain.Volume) (bool, error) {
	if err := checkGeometry("contains", outer, inner); err != nil {
		return false, err
	}
	for i := range inner.Data {
		if inner.Data[i] != 0 && outer.Data[i] == 0 {
			return false, nil
		}
	}
	return true, nil
}
