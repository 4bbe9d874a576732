package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"canalis/internal/domain"
	"canalis/internal/nifti"
	"canalis/internal/volume"
)

// ExecConfig — конфигурация exec-адаптера.
type ExecConfig struct {
	// TotalSpineSegBin — команда сегментации TotalSpineSeg.
	// По умолчанию "totalspineseg".
	TotalSpineSegBin string

	// SPINEPSBin — команда сегментации SPINEPS. По умолчанию "spineps".
	// Инструмент необязателен: отсутствие в PATH не ошибка.
	SPINEPSBin string

	// RegisterBin — команда регистрации к шаблону.
	// По умолчанию "sct_register_to_template".
	RegisterBin string

	// WarpBin — команда применения преобразования.
	// По умолчанию "sct_apply_transfo".
	WarpBin string

	// MeasureBin — команда измерения площади сечения.
	// По умолчанию "sct_process_segmentation".
	MeasureBin string

	// QCBin — команда сборки QC-отчёта. По умолчанию "sct_qc".
	QCBin string

	// Threads — ограничения внутренних потоков инструментов.
	Threads ThreadCaps

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

// WithDefaults возвращает копию конфигурации с заполненными
// умолчаниями. Используется там, где команды нужны без адаптера,
// например при проверке инструментов в PATH.
func (c ExecConfig) WithDefaults() ExecConfig {
	c.setDefaults()
	return c
}

func (c *ExecConfig) setDefaults() {
	if c.TotalSpineSegBin == "" {
		c.TotalSpineSegBin = "totalspineseg"
	}
	if c.SPINEPSBin == "" {
		c.SPINEPSBin = "spineps"
	}
	if c.RegisterBin == "" {
		c.RegisterBin = "sct_register_to_template"
	}
	if c.WarpBin == "" {
		c.WarpBin = "sct_apply_transfo"
	}
	if c.MeasureBin == "" {
		c.MeasureBin = "sct_process_segmentation"
	}
	if c.QCBin == "" {
		c.QCBin = "sct_qc"
	}
	if c.Threads == (ThreadCaps{}) {
		c.Threads = DefaultThreadCaps()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ExecAdapter — адаптер внешних инструментов поверх os/exec.
//
// Ограничения потоков передаются каждому дочернему процессу через
// его окружение, не через окружение самого пайплайна.
type ExecAdapter struct {
	cfg ExecConfig
}

// NewExecAdapter создаёт exec-адаптер.
func NewExecAdapter(cfg ExecConfig) *ExecAdapter {
	cfg.setDefaults()
	return &ExecAdapter{cfg: cfg}
}

var _ Adapter = (*ExecAdapter)(nil)

// run запускает команду инструмента с ограничениями потоков.
// Ненулевой код выхода оборачивается в ToolFailure с хвостом вывода.
func (a *ExecAdapter) run(ctx context.Context, sentinel error, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), a.cfg.Threads.Env()...)

	a.cfg.Logger.Debug("tool invocation", "tool", name, "args", strings.Join(args, " "))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &ToolFailure{
			Tool: name,
			Err:  fmt.Errorf("%w: %v: %s", sentinel, err, tail(out, 512)),
		}
	}
	return nil
}

// tail возвращает последние n байт вывода инструмента.
func tail(out []byte, n int) string {
	s := strings.TrimSpace(string(out))
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Segment запускает сегментацию для схемы меток.
func (a *ExecAdapter) Segment(ctx context.Context, scheme domain.LabelScheme, image Ref, outDir string) (*Segmentation, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create segmentation dir: %w", err)
	}

	switch scheme {
	case domain.SchemeTotalSpineSeg:
		if _, err := exec.LookPath(a.cfg.TotalSpineSegBin); err != nil {
			return nil, &ToolFailure{Tool: a.cfg.TotalSpineSegBin, Err: ErrCapabilityUnavailable}
		}
		seg := &Segmentation{
			Labels: Ref(filepath.Join(outDir, "tss_seg.nii.gz")),
			Levels: Ref(filepath.Join(outDir, "tss_levels.nii.gz")),
			Discs:  Ref(filepath.Join(outDir, "tss_discs.nii.gz")),
		}
		err := a.run(ctx, ErrSegmentationFailed, a.cfg.TotalSpineSegBin,
			"-i", string(image), "-o", outDir)
		if err != nil {
			return nil, err
		}
		return seg, nil

	case domain.SchemeSPINEPS:
		// Ветка построена после положительной проверки наличия; если
		// инструмент исчез между проверкой и запуском, это отказ задачи.
		if _, err := exec.LookPath(a.cfg.SPINEPSBin); err != nil {
			return nil, &ToolFailure{Tool: a.cfg.SPINEPSBin, Err: ErrCapabilityUnavailable}
		}
		seg := &Segmentation{
			Labels: Ref(filepath.Join(outDir, "spineps_seg.nii.gz")),
		}
		err := a.run(ctx, ErrSegmentationFailed, a.cfg.SPINEPSBin,
			"sample", "-i", string(image), "-o", outDir)
		if err != nil {
			return nil, err
		}
		return seg, nil
	}
	return nil, fmt.Errorf("%w: no segmenter for scheme %s", ErrSegmentationFailed, scheme)
}

// HasSegmenter проверяет наличие инструмента в PATH без запуска.
func (a *ExecAdapter) HasSegmenter(scheme domain.LabelScheme) bool {
	var bin string
	switch scheme {
	case domain.SchemeTotalSpineSeg:
		bin = a.cfg.TotalSpineSegBin
	case domain.SchemeSPINEPS:
		bin = a.cfg.SPINEPSBin
	default:
		return false
	}
	_, err := exec.LookPath(bin)
	return err == nil
}

// RegisterToReference строит преобразование шаблон→изображение.
func (a *ExecAdapter) RegisterToReference(ctx context.Context, image, cordMask, discLabels Ref, outDir string) (Ref, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create registration dir: %w", err)
	}
	err := a.run(ctx, ErrRegistrationFailed, a.cfg.RegisterBin,
		"-i", string(image),
		"-s", string(cordMask),
		"-ldisc", string(discLabels),
		"-ofolder", outDir)
	if err != nil {
		return "", err
	}
	return Ref(filepath.Join(outDir, "warp_template2anat.nii.gz")), nil
}

// Warp переносит шаблон в пространство изображения.
func (a *ExecAdapter) Warp(ctx context.Context, template, transform, dest Ref, mode domain.InterpolationMode, out Ref) error {
	return a.run(ctx, ErrWarpFailed, a.cfg.WarpBin,
		"-i", string(template),
		"-d", string(dest),
		"-w", string(transform),
		"-x", string(mode),
		"-o", string(out))
}

// MeasureArea измеряет среднюю площадь сечения маски по уровням.
func (a *ExecAdapter) MeasureArea(ctx context.Context, mask, levels Ref, out Ref) (*domain.LevelTable, error) {
	err := a.run(ctx, ErrMeasurementFailed, a.cfg.MeasureBin,
		"-i", string(mask),
		"-vertfile", string(levels),
		"-perlevel", "1",
		"-o", string(out))
	if err != nil {
		return nil, err
	}
	table, err := ReadLevelTable(out)
	if err != nil {
		return nil, &ToolFailure{Tool: a.cfg.MeasureBin, Err: fmt.Errorf("%w: %v", ErrMeasurementFailed, err)}
	}
	return table, nil
}

// ComputeRatio измеряет отношение площадей мозг/канал по уровням.
//
// Канал собирается в памяти как объединение маски мозга и
// canal-only маски, обе площади измеряются инструментом, отношение
// считается по уровням, присутствующим в обеих таблицах.
func (a *ExecAdapter) ComputeRatio(ctx context.Context, cordMask, canalOnlyMask, levels Ref, out Ref) (*domain.LevelTable, error) {
	cordVol, err := a.LoadVolume(cordMask)
	if err != nil {
		return nil, err
	}
	canalOnlyVol, err := a.LoadVolume(canalOnlyMask)
	if err != nil {
		return nil, err
	}
	canalVol, err := volume.Union(cordVol, canalOnlyVol)
	if err != nil {
		return nil, &ToolFailure{Tool: a.cfg.MeasureBin, Err: err}
	}

	canalRef := Ref(strings.TrimSuffix(string(out), ".csv") + "_canal_tmp.nii.gz")
	if err := a.SaveVolume(canalVol, canalRef); err != nil {
		return nil, err
	}
	defer os.Remove(string(canalRef))

	cordCSV := Ref(strings.TrimSuffix(string(out), ".csv") + "_cord_tmp.csv")
	canalCSV := Ref(strings.TrimSuffix(string(out), ".csv") + "_canal_tmp.csv")
	defer os.Remove(string(cordCSV))
	defer os.Remove(string(canalCSV))

	cordTable, err := a.MeasureArea(ctx, cordMask, levels, cordCSV)
	if err != nil {
		return nil, err
	}
	canalTable, err := a.MeasureArea(ctx, canalRef, levels, canalCSV)
	if err != nil {
		return nil, err
	}

	ratio := RatioTable(cordTable, canalTable)
	if err := WriteLevelTable(ratio, out); err != nil {
		return nil, &ToolFailure{Tool: a.cfg.MeasureBin, Err: fmt.Errorf("%w: %v", ErrMeasurementFailed, err)}
	}
	return ratio, nil
}

// RatioTable считает по уровням отношение значений cord/canal.
// Берутся только уровни, присутствующие в обеих таблицах; нулевой
// знаменатель пропускается.
func RatioTable(cord, canal *domain.LevelTable) *domain.LevelTable {
	canalByLevel := make(map[int]float64, len(canal.Rows))
	for _, row := range canal.Rows {
		canalByLevel[row.Level] = row.Value
	}

	ratio := &domain.LevelTable{Column: AreaColumn}
	for _, row := range cord.Rows {
		denom, ok := canalByLevel[row.Level]
		if !ok || denom == 0 {
			continue
		}
		ratio.Rows = append(ratio.Rows, domain.LevelRow{Level: row.Level, Value: row.Value / denom})
	}
	return ratio
}

// ComposeQC собирает контрольный отчёт из оверлеев масок.
// Отсутствующие файлы оверлеев пропускаются.
func (a *ExecAdapter) ComposeQC(ctx context.Context, image Ref, overlays []Ref, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create qc dir: %w", err)
	}
	for _, overlay := range overlays {
		if _, err := os.Stat(string(overlay)); err != nil {
			a.cfg.Logger.Warn("qc overlay missing, skipping", "overlay", overlay)
			continue
		}
		err := a.run(ctx, ErrQCFailed, a.cfg.QCBin,
			"-i", string(image),
			"-s", string(overlay),
			"-p", "sct_deepseg_sc",
			"-qc", outDir)
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadVolume читает NIfTI-том в память.
func (a *ExecAdapter) LoadVolume(path Ref) (domain.Volume, error) {
	return nifti.ReadFile(string(path))
}

// SaveVolume сохраняет том в NIfTI.
func (a *ExecAdapter) SaveVolume(v domain.Volume, path Ref) error {
	return nifti.WriteFile(string(path), v)
}
