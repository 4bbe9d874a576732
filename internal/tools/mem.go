package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"canalis/internal/domain"
	"canalis/internal/volume"
)

// MemAdapter — адаптер инструментов в памяти для тестов и сухих
// прогонов. Тома живут в map по ссылкам, сегментации синтезируются,
// измерения считаются напрямую по воксельным маскам. Таблицы
// измерений пишутся в настоящие CSV-файлы, чтобы публикация
// результатов проверялась по-настоящему.
type MemAdapter struct {
	mu      sync.Mutex
	volumes map[Ref]domain.Volume

	// SPINEPSAvailable — отвечает ли probe для SPINEPS.
	SPINEPSAvailable bool

	// FailSegment — принудительные отказы сегментации по ссылке
	// изображения.
	FailSegment map[Ref]error

	// FailOp — принудительные отказы по имени операции:
	// "register", "warp", "measure", "qc".
	FailOp map[string]error

	// QCComposed — оверлеи, переданные в ComposeQC.
	QCComposed []Ref
}

// NewMemAdapter создаёт пустой адаптер в памяти.
func NewMemAdapter() *MemAdapter {
	return &MemAdapter{
		volumes:     make(map[Ref]domain.Volume),
		FailSegment: make(map[Ref]error),
		FailOp:      make(map[string]error),
	}
}

var _ Adapter = (*MemAdapter)(nil)

// Seed кладёт том в хранилище адаптера.
func (a *MemAdapter) Seed(ref Ref, v domain.Volume) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.volumes[ref] = v.Clone()
}

// get возвращает том по ссылке.
func (a *MemAdapter) get(ref Ref) (domain.Volume, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.volumes[ref]
	if !ok {
		return domain.Volume{}, fmt.Errorf("%w: volume %s not found", ErrInputMissing, ref)
	}
	return v, nil
}

// imageGeometry возвращает геометрию изображения или геометрию по
// умолчанию, когда изображение не засеяно.
func (a *MemAdapter) imageGeometry(image Ref) domain.Geometry {
	if v, err := a.get(image); err == nil {
		return v.Geom
	}
	return domain.Geometry{Dims: [3]int{16, 16, 8}, Spacing: [3]float64{1, 1, 1}}
}

// Segment синтезирует размеченный том: центральный столбик мозга,
// кольцо канала вокруг и уровни по оси z.
func (a *MemAdapter) Segment(ctx context.Context, scheme domain.LabelScheme, image Ref, outDir string) (*Segmentation, error) {
	if err := a.FailSegment[image]; err != nil {
		return nil, &ToolFailure{Tool: "segment-" + string(scheme), Err: fmt.Errorf("%w: %v", ErrSegmentationFailed, err)}
	}
	if scheme == domain.SchemeSPINEPS && !a.SPINEPSAvailable {
		return nil, &ToolFailure{Tool: "segment-" + string(scheme), Err: ErrCapabilityUnavailable}
	}

	geom := a.imageGeometry(image)
	labels := domain.NewVolume(geom, domain.VolumeLabel)
	levels := domain.NewVolume(geom, domain.VolumeLabel)
	discs := domain.NewVolume(geom, domain.VolumeLabel)

	cx, cy := geom.Dims[0]/2, geom.Dims[1]/2
	for z := 0; z < geom.Dims[2]; z++ {
		level := 2 + z*3/geom.Dims[2]
		for y := 0; y < geom.Dims[1]; y++ {
			for x := 0; x < geom.Dims[0]; x++ {
				dx, dy := x-cx, y-cy
				r2 := dx*dx + dy*dy
				switch {
				case r2 <= 1:
					labels.Set(x, y, z, float64(scheme.CordLabel()))
					levels.Set(x, y, z, float64(level))
				case r2 <= 9:
					labels.Set(x, y, z, float64(scheme.CanalLabel()))
					levels.Set(x, y, z, float64(level))
				}
			}
		}
		discs.Set(cx, cy, z, float64(level))
	}

	seg := &Segmentation{
		Labels: Ref(outDir + "/" + string(scheme) + "_seg"),
		Discs:  Ref(outDir + "/" + string(scheme) + "_discs"),
	}
	a.Seed(seg.Labels, labels)
	a.Seed(seg.Discs, discs)
	if scheme == domain.SchemeTotalSpineSeg {
		seg.Levels = Ref(outDir + "/" + string(scheme) + "_levels")
		a.Seed(seg.Levels, levels)
	}
	return seg, nil
}

// HasSegmenter отвечает наличием инструмента для схемы.
func (a *MemAdapter) HasSegmenter(scheme domain.LabelScheme) bool {
	switch scheme {
	case domain.SchemeTotalSpineSeg:
		return true
	case domain.SchemeSPINEPS:
		return a.SPINEPSAvailable
	}
	return false
}

// RegisterToReference возвращает маркер преобразования.
func (a *MemAdapter) RegisterToReference(ctx context.Context, image, cordMask, discLabels Ref, outDir string) (Ref, error) {
	if err := a.FailOp["register"]; err != nil {
		return "", &ToolFailure{Tool: "register", Err: fmt.Errorf("%w: %v", ErrRegistrationFailed, err)}
	}
	if _, err := a.get(cordMask); err != nil {
		return "", &ToolFailure{Tool: "register", Err: fmt.Errorf("%w: %v", ErrRegistrationFailed, err)}
	}
	warp := Ref(outDir + "/warp_template2anat")
	a.Seed(warp, domain.NewVolume(a.imageGeometry(image), domain.VolumeProbabilistic))
	return warp, nil
}

// Warp синтезирует перенесённый шаблон в геометрии изображения.
// Содержимое зависит от имени шаблона: cord, csf, canal или levels.
func (a *MemAdapter) Warp(ctx context.Context, template, transform, dest Ref, mode domain.InterpolationMode, out Ref) error {
	if err := a.FailOp["warp"]; err != nil {
		return &ToolFailure{Tool: "warp", Err: fmt.Errorf("%w: %v", ErrWarpFailed, err)}
	}
	if _, err := a.get(transform); err != nil {
		return &ToolFailure{Tool: "warp", Err: fmt.Errorf("%w: %v", ErrWarpFailed, err)}
	}

	geom := a.imageGeometry(dest)
	name := strings.ToLower(string(template))

	kind := domain.VolumeProbabilistic
	if strings.Contains(name, "levels") {
		kind = domain.VolumeLabel
	}
	v := domain.NewVolume(geom, kind)

	cx, cy := geom.Dims[0]/2, geom.Dims[1]/2
	for z := 0; z < geom.Dims[2]; z++ {
		level := 2 + z*3/geom.Dims[2]
		for y := 0; y < geom.Dims[1]; y++ {
			for x := 0; x < geom.Dims[0]; x++ {
				dx, dy := x-cx, y-cy
				r2 := dx*dx + dy*dy
				switch {
				case strings.Contains(name, "levels"):
					if r2 <= 9 {
						v.Set(x, y, z, float64(level))
					}
				case strings.Contains(name, "csf"):
					if r2 > 1 && r2 <= 9 {
						v.Set(x, y, z, 0.8)
					}
				case strings.Contains(name, "canal"), strings.Contains(name, "atlas"):
					if r2 <= 9 {
						v.Set(x, y, z, 0.9)
					}
				case strings.Contains(name, "cord"):
					if r2 <= 1 {
						v.Set(x, y, z, 0.9)
					}
				}
			}
		}
	}

	a.Seed(out, v)
	return nil
}

// MeasureArea считает среднюю площадь сечения маски по уровням и
// пишет таблицу в CSV.
func (a *MemAdapter) MeasureArea(ctx context.Context, mask, levels Ref, out Ref) (*domain.LevelTable, error) {
	table, err := a.measure(mask, levels)
	if err != nil {
		return nil, err
	}
	if err := WriteLevelTable(table, out); err != nil {
		return nil, &ToolFailure{Tool: "measure", Err: fmt.Errorf("%w: %v", ErrMeasurementFailed, err)}
	}
	return table, nil
}

// ComputeRatio измеряет отношение площадей мозг/канал по уровням.
func (a *MemAdapter) ComputeRatio(ctx context.Context, cordMask, canalOnlyMask, levels Ref, out Ref) (*domain.LevelTable, error) {
	cordVol, err := a.get(cordMask)
	if err != nil {
		return nil, &ToolFailure{Tool: "measure", Err: fmt.Errorf("%w: %v", ErrMeasurementFailed, err)}
	}
	canalOnlyVol, err := a.get(canalOnlyMask)
	if err != nil {
		return nil, &ToolFailure{Tool: "measure", Err: fmt.Errorf("%w: %v", ErrMeasurementFailed, err)}
	}
	canalVol, err := volume.Union(cordVol, canalOnlyVol)
	if err != nil {
		return nil, err
	}

	canalRef := canalOnlyMask + "_ratio_canal"
	a.Seed(canalRef, canalVol)

	cordTable, err := a.measure(cordMask, levels)
	if err != nil {
		return nil, err
	}
	canalTable, err := a.measure(canalRef, levels)
	if err != nil {
		return nil, err
	}

	ratio := RatioTable(cordTable, canalTable)
	if err := WriteLevelTable(ratio, out); err != nil {
		return nil, &ToolFailure{Tool: "measure", Err: fmt.Errorf("%w: %v", ErrMeasurementFailed, err)}
	}
	return ratio, nil
}

// measure считает среднюю площадь сечения маски по уровням: вокселы
// маски в пределах уровня на срез, умноженные на площадь пиксела,
// усреднённые по срезам уровня.
func (a *MemAdapter) measure(mask, levels Ref) (*domain.LevelTable, error) {
	if err := a.FailOp["measure"]; err != nil {
		return nil, &ToolFailure{Tool: "measure", Err: fmt.Errorf("%w: %v", ErrMeasurementFailed, err)}
	}
	maskVol, err := a.get(mask)
	if err != nil {
		return nil, &ToolFailure{Tool: "measure", Err: fmt.Errorf("%w: %v", ErrMeasurementFailed, err)}
	}
	levelsVol, err := a.get(levels)
	if err != nil {
		return nil, &ToolFailure{Tool: "measure", Err: fmt.Errorf("%w: %v", ErrMeasurementFailed, err)}
	}
	if !maskVol.Geom.Equal(levelsVol.Geom) {
		return nil, &volume.GeometryError{Op: "measure", A: maskVol.Geom, B: levelsVol.Geom}
	}

	geom := maskVol.Geom
	pixelArea := geom.Spacing[0] * geom.Spacing[1]
	voxels := make(map[int]int)
	slices := make(map[int]map[int]bool)
	for z := 0; z < geom.Dims[2]; z++ {
		for y := 0; y < geom.Dims[1]; y++ {
			for x := 0; x < geom.Dims[0]; x++ {
				level := int(levelsVol.At(x, y, z))
				if level == 0 {
					continue
				}
				if slices[level] == nil {
					slices[level] = make(map[int]bool)
				}
				slices[level][z] = true
				if maskVol.At(x, y, z) != 0 {
					voxels[level]++
				}
			}
		}
	}

	table := &domain.LevelTable{Column: AreaColumn}
	for level := 1; level <= domain.SacrumLevel; level++ {
		n, ok := voxels[level]
		if !ok || len(slices[level]) == 0 {
			continue
		}
		table.Rows = append(table.Rows, domain.LevelRow{
			Level: level,
			Value: float64(n) * pixelArea / float64(len(slices[level])),
		})
	}
	return table, nil
}

// ComposeQC запоминает переданные оверлеи.
func (a *MemAdapter) ComposeQC(ctx context.Context, image Ref, overlays []Ref, outDir string) error {
	if err := a.FailOp["qc"]; err != nil {
		return &ToolFailure{Tool: "qc", Err: fmt.Errorf("%w: %v", ErrQCFailed, err)}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.QCComposed = append(a.QCComposed, overlays...)
	return nil
}

// LoadVolume возвращает копию тома из хранилища.
func (a *MemAdapter) LoadVolume(path Ref) (domain.Volume, error) {
	v, err := a.get(path)
	if err != nil {
		return domain.Volume{}, err
	}
	return v.Clone(), nil
}

// SaveVolume кладёт том в хранилище.
func (a *MemAdapter) SaveVolume(v domain.Volume, path Ref) error {
	a.Seed(path, v)
	return nil
}
