package pipeline

import (
	"canalis/internal/domain"
	"canalis/internal/methods"
)

// Имена томов в рабочей области субъекта.
const (
	keyImage = "image"

	keyTSSLabels    = "totalspineseg-labels"
	keyTSSLevelsRaw = "totalspineseg-levels-raw"
	keyTSSDiscs     = "totalspineseg-discs"

	keySPINEPSLabels = "spineps-labels"

	keyDLLevels      = "dl-levels"
	keyDiscsFiltered = "discs-filtered"
	keyWarpField     = "warp-field"
	keyWarpedLevels  = "warped-levels"
)

// TemplateSet — пути файлов шаблона PAM50, переносимых в нативное
// пространство субъекта.
type TemplateSet struct {
	// Cord — вероятностный шаблон спинного мозга.
	Cord string

	// CSF — вероятностный шаблон ликвора.
	CSF string

	// Atlas — полный атлас канала (41 уровень), включает мозг.
	Atlas string

	// Levels — том уровней позвонков.
	Levels string
}

// GraphParams — параметры построения субъектного графа.
type GraphParams struct {
	// SPINEPS — доступен ли опциональный инструмент. При false ветка
	// SPINEPS не строится вовсе, метод отсутствует в результатах.
	SPINEPS bool

	// Templates — файлы шаблона для ветки регистрации.
	Templates TemplateSet
}

// graphBuilder накапливает задачи и отображение выход→производитель
// для выведения зависимостей из входов.
type graphBuilder struct {
	defs       []domain.TaskDef
	producedBy map[string]string
}

// add добавляет задачу. Зависимости выводятся из производителей её
// входов и объединяются с явно заданными; extraOutputs — побочные
// выходы задачи (несколько томов из одного запуска инструмента).
func (b *graphBuilder) add(def domain.TaskDef, extraOutputs ...string) {
	seen := make(map[string]bool, len(def.DependsOn))
	deps := make([]string, 0, len(def.DependsOn)+len(def.Inputs))
	for _, dep := range def.DependsOn {
		if !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}
	for _, input := range def.Inputs {
		producer, ok := b.producedBy[input]
		if ok && producer != def.ID && !seen[producer] {
			seen[producer] = true
			deps = append(deps, producer)
		}
	}
	def.DependsOn = deps

	if def.Output != "" {
		b.producedBy[def.Output] = def.ID
	}
	for _, out := range extraOutputs {
		b.producedBy[out] = def.ID
	}
	b.defs = append(b.defs, def)
}

// BuildGraph строит фиксированный DAG субъекта.
//
// Фазы: сегментация TotalSpineSeg; извлечение масок и уровней
// (параллельно, точка соединения); затем три ветки — измерения
// TotalSpineSeg, регистрация с фан-аутом по режимам интерполяции,
// опциональный SPINEPS; в конце QC-оверлей поверх всех измерений.
func BuildGraph(p GraphParams) []domain.TaskDef {
	b := &graphBuilder{producedBy: make(map[string]string)}

	b.add(domain.TaskDef{
		ID:     "segment-totalspineseg",
		Kind:   domain.TaskSegment,
		Scheme: domain.SchemeTotalSpineSeg,
		Inputs: []string{keyImage},
		Output: keyTSSLabels,
	}, keyTSSLevelsRaw, keyTSSDiscs)

	b.add(domain.TaskDef{
		ID:     "derive-masks",
		Kind:   domain.TaskDeriveMasks,
		Scheme: domain.SchemeTotalSpineSeg,
		Method: domain.MethodTotalSpineSeg,
		Inputs: []string{keyTSSLabels},
		Output: maskKey(domain.MethodTotalSpineSeg, "cord"),
	}, maskKey(domain.MethodTotalSpineSeg, "canal"), maskKey(domain.MethodTotalSpineSeg, "canal-only"))

	b.add(domain.TaskDef{
		ID:     "derive-levels",
		Kind:   domain.TaskDeriveLevels,
		Inputs: []string{keyTSSLevelsRaw},
		Output: keyDLLevels,
	})

	// Точка соединения фазы: ветки стартуют только после того, как
	// готовы и маски, и уровни.
	join := []string{"derive-masks", "derive-levels"}

	// Ветка регистрации.
	b.add(domain.TaskDef{
		ID:        "filter-discs",
		Kind:      domain.TaskFilterDiscs,
		DependsOn: join,
		Inputs:    []string{keyTSSDiscs},
		Output:    keyDiscsFiltered,
		Label:     domain.DiscLabelMax,
	})
	b.add(domain.TaskDef{
		ID:     "register",
		Kind:   domain.TaskRegister,
		Inputs: []string{keyImage, maskKey(domain.MethodTotalSpineSeg, "cord"), keyDiscsFiltered},
		Output: keyWarpField,
	})

	// Уровни переносятся один раз и всегда методом ближайшего соседа.
	b.add(domain.TaskDef{
		ID:     "warp-levels",
		Kind:   domain.TaskWarp,
		Mode:   domain.InterpNN,
		Inputs: []string{p.Templates.Levels, keyWarpField},
		Output: keyWarpedLevels,
	})

	for _, mode := range domain.InterpolationModes {
		m := string(mode)

		b.add(domain.TaskDef{
			ID:     "warp-cord-" + m,
			Kind:   domain.TaskWarp,
			Mode:   mode,
			Inputs: []string{p.Templates.Cord, keyWarpField},
			Output: warpedKey("cord", mode, false),
		})
		b.add(domain.TaskDef{
			ID:     "warp-csf-" + m,
			Kind:   domain.TaskWarp,
			Mode:   mode,
			Inputs: []string{p.Templates.CSF, keyWarpField},
			Output: warpedKey("csf", mode, false),
		})
		b.add(domain.TaskDef{
			ID:     "warp-atlas-" + m,
			Kind:   domain.TaskWarp,
			Mode:   mode,
			Inputs: []string{p.Templates.Atlas, keyWarpField},
			Output: warpedKey("atlas", mode, false),
		})

		for _, structure := range []string{"cord", "csf", "atlas"} {
			b.add(domain.TaskDef{
				ID:     "binarize-" + structure + "-" + m,
				Kind:   domain.TaskBinarize,
				Mode:   mode,
				Inputs: []string{warpedKey(structure, mode, false)},
				Output: warpedKey(structure, mode, true),
			})
		}

		b.add(domain.TaskDef{
			ID:     "derive-union-" + m,
			Kind:   domain.TaskUnion,
			Mode:   mode,
			Inputs: []string{warpedKey("cord", mode, true), warpedKey("csf", mode, true)},
			Output: unionKey(mode),
		})
		b.add(domain.TaskDef{
			ID:     "derive-atlas-canalonly-" + m,
			Kind:   domain.TaskSubtract,
			Mode:   mode,
			Inputs: []string{warpedKey("atlas", mode, true), maskKey(domain.MethodTotalSpineSeg, "cord")},
			Output: subtractKey("atlas", mode),
		})
		b.add(domain.TaskDef{
			ID:     "derive-pam50-canalonly-" + m,
			Kind:   domain.TaskSubtract,
			Mode:   mode,
			Inputs: []string{unionKey(mode), warpedKey("cord", mode, true)},
			Output: subtractKey("union", mode),
		})
	}

	// Опциональная ветка SPINEPS. Отсутствующий инструмент не даёт
	// задач вовсе: метод просто отсутствует в результатах субъекта.
	if p.SPINEPS {
		b.add(domain.TaskDef{
			ID:        "segment-spineps",
			Kind:      domain.TaskSegment,
			Scheme:    domain.SchemeSPINEPS,
			DependsOn: join,
			Inputs:    []string{keyImage},
			Output:    keySPINEPSLabels,
		})
		b.add(domain.TaskDef{
			ID:     "derive-spineps-masks",
			Kind:   domain.TaskDeriveMasks,
			Scheme: domain.SchemeSPINEPS,
			Method: domain.MethodSPINEPS,
			Inputs: []string{keySPINEPSLabels},
			Output: maskKey(domain.MethodSPINEPS, "cord"),
		}, maskKey(domain.MethodSPINEPS, "canal"), maskKey(domain.MethodSPINEPS, "canal-only"))
	}

	// Измерительные задачи всех методов, по строкам таблицы методов.
	var measureIDs []string
	for _, def := range methods.All() {
		if def.Optional && !p.SPINEPS {
			continue
		}
		for _, mode := range def.Modes() {
			suffix := string(def.Method)
			if mode != "" {
				suffix += "-" + string(mode)
			}
			cord := sourceKey(def.Method, def.Cord, mode)
			canal := sourceKey(def.Method, def.Canal, mode)
			canalOnly := sourceKey(def.Method, def.CanalOnly, mode)
			levels := sourceKey(def.Method, def.Levels, mode)

			b.add(domain.TaskDef{
				ID:      "measure-" + suffix + "-cord",
				Kind:    domain.TaskMeasureArea,
				Method:  def.Method,
				Mode:    mode,
				Measure: domain.MeasureCord,
				Inputs:  []string{cord, levels},
			})
			b.add(domain.TaskDef{
				ID:      "measure-" + suffix + "-canal",
				Kind:    domain.TaskMeasureArea,
				Method:  def.Method,
				Mode:    mode,
				Measure: domain.MeasureCanal,
				Inputs:  []string{canal, levels},
			})
			b.add(domain.TaskDef{
				ID:      "measure-" + suffix + "-ratio",
				Kind:    domain.TaskMeasureRatio,
				Method:  def.Method,
				Mode:    mode,
				Measure: domain.MeasureRatio,
				Inputs:  []string{cord, canalOnly, levels},
			})
			measureIDs = append(measureIDs,
				"measure-"+suffix+"-cord", "measure-"+suffix+"-canal", "measure-"+suffix+"-ratio")
		}
	}

	// QC собирается из сплайновых вариантов варпированных масок и
	// DL-масок; отсутствующие оверлеи пропускаются при сборке.
	b.add(domain.TaskDef{
		ID:        "compose-qc",
		Kind:      domain.TaskComposeQC,
		DependsOn: measureIDs,
		Inputs: []string{
			maskKey(domain.MethodTotalSpineSeg, "cord"),
			maskKey(domain.MethodTotalSpineSeg, "canal"),
			maskKey(domain.MethodSPINEPS, "cord"),
			maskKey(domain.MethodSPINEPS, "canal"),
			warpedKey("cord", domain.InterpSpline, true),
			warpedKey("atlas", domain.InterpSpline, true),
			unionKey(domain.InterpSpline),
		},
	})

	return b.defs
}

// maskKey возвращает имя DL-маски метода в рабочей области.
func maskKey(method domain.Method, structure string) string {
	return string(method) + "-" + structure
}

// warpedKey возвращает имя варпированного шаблона в рабочей области.
func warpedKey(structure string, mode domain.InterpolationMode, bin bool) string {
	key := "warped-" + structure + "-" + string(mode)
	if bin {
		key += "-bin"
	}
	return key
}

// unionKey возвращает имя union(cord, csf) для режима.
func unionKey(mode domain.InterpolationMode) string {
	return "warped-union-" + string(mode)
}

// subtractKey возвращает имя canal-only маски для режима.
func subtractKey(base string, mode domain.InterpolationMode) string {
	return "subtract-" + base + "-" + string(mode)
}

// sourceKey отображает семантический источник строки таблицы методов
// в имя тома рабочей области.
func sourceKey(method domain.Method, src methods.Source, mode domain.InterpolationMode) string {
	switch src {
	case methods.SourceDLCord:
		return maskKey(method, "cord")
	case methods.SourceDLCanal:
		return maskKey(method, "canal-only")
	case methods.SourceDLCombined:
		return maskKey(method, "canal")
	case methods.SourceTSSCord:
		return maskKey(domain.MethodTotalSpineSeg, "cord")
	case methods.SourceWarpedCordBin:
		return warpedKey("cord", mode, true)
	case methods.SourceWarpedAtlasBin:
		return warpedKey("atlas", mode, true)
	case methods.SourceWarpedUnion:
		return unionKey(mode)
	case methods.SourceSubtractAtlas:
		return subtractKey("atlas", mode)
	case methods.SourceSubtractUnion:
		return subtractKey("union", mode)
	case methods.SourceDLLevels:
		return keyDLLevels
	case methods.SourceWarpedLevels:
		return keyWarpedLevels
	}
	return string(src)
}
