package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"canalis/internal/domain"
	"canalis/internal/tools"
	"canalis/internal/volume"
)

// ErrUnknownTaskKind — нет handler'а для данного типа задачи.
var ErrUnknownTaskKind = errors.New("unknown task kind")

// handler выполняет задачу одного типа над рабочей областью.
type handler func(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error

// TaskRunner — исполнитель задач субъектного графа.
//
// Диспетчеризует по типу задачи через реестр handler'ов. Все данные
// проходят через рабочую область: handler читает входы по именам из
// def.Inputs и регистрирует выход под def.Output.
type TaskRunner struct {
	ws       *Workspace
	adapter  tools.Adapter
	base     string
	handlers map[domain.TaskKind]handler
	log      *slog.Logger
}

// NewTaskRunner создаёт исполнитель с handler'ами всех типов задач.
func NewTaskRunner(ws *Workspace, adapter tools.Adapter, base string, log *slog.Logger) *TaskRunner {
	if log == nil {
		log = slog.Default()
	}
	r := &TaskRunner{
		ws:      ws,
		adapter: adapter,
		base:    base,
		log:     log,
	}
	r.handlers = map[domain.TaskKind]handler{
		domain.TaskSegment:      handleSegment,
		domain.TaskDeriveMasks:  handleDeriveMasks,
		domain.TaskDeriveLevels: handleDeriveLevels,
		domain.TaskFilterDiscs:  handleFilterDiscs,
		domain.TaskRegister:     handleRegister,
		domain.TaskWarp:         handleWarp,
		domain.TaskBinarize:     handleBinarize,
		domain.TaskUnion:        handleUnion,
		domain.TaskSubtract:     handleSubtract,
		domain.TaskMeasureArea:  handleMeasureArea,
		domain.TaskMeasureRatio: handleMeasureRatio,
		domain.TaskComposeQC:    handleComposeQC,
	}
	return r
}

// Run реализует engine.Runner.
func (r *TaskRunner) Run(ctx context.Context, def *domain.TaskDef) error {
	h, ok := r.handlers[def.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTaskKind, def.Kind)
	}
	return h(ctx, r, def)
}

// load возвращает том по имени из рабочей области.
func (r *TaskRunner) load(key string) (domain.Volume, error) {
	ref, err := r.ws.Ref(key)
	if err != nil {
		return domain.Volume{}, err
	}
	return r.adapter.LoadVolume(ref)
}

// store сохраняет том под именем файла name и регистрирует его в
// рабочей области под key.
func (r *TaskRunner) store(v domain.Volume, key, name string) error {
	path := r.ws.Path(name)
	if err := r.adapter.SaveVolume(v, path); err != nil {
		return err
	}
	r.ws.SetRef(key, path)
	return nil
}

func handleSegment(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	image, err := r.ws.Ref(keyImage)
	if err != nil {
		return err
	}
	outDir := string(r.ws.Path("seg-" + string(def.Scheme)))

	seg, err := r.adapter.Segment(ctx, def.Scheme, image, outDir)
	if err != nil {
		return err
	}

	switch def.Scheme {
	case domain.SchemeTotalSpineSeg:
		r.ws.SetRef(keyTSSLabels, seg.Labels)
		r.ws.SetRef(keyTSSLevelsRaw, seg.Levels)
		r.ws.SetRef(keyTSSDiscs, seg.Discs)
	case domain.SchemeSPINEPS:
		r.ws.SetRef(keySPINEPSLabels, seg.Labels)
	}
	return nil
}

func handleDeriveMasks(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	seg, err := r.load(def.Inputs[0])
	if err != nil {
		return err
	}

	cordLabel := def.Scheme.CordLabel()
	canalLabel := def.Scheme.CanalLabel()

	// Срезы, где мозг и канал не встречаются вместе, обнуляются:
	// за пределами общего z-диапазона маски несопоставимы.
	trimmed, shared := volume.ZIntersect(seg, cordLabel, canalLabel)
	if shared == 0 {
		r.log.Warn("cord and canal labels share no axial slices",
			"subject", r.base, "scheme", def.Scheme)
	}

	cord := volume.ExtractLabel(trimmed, cordLabel)
	canalOnly := volume.ExtractLabel(trimmed, canalLabel)
	canal, err := volume.Union(cord, canalOnly)
	if err != nil {
		return err
	}

	method := def.Method
	if err := r.store(cord, maskKey(method, "cord"), SegMaskName(r.base, method, "cord")); err != nil {
		return err
	}
	if err := r.store(canal, maskKey(method, "canal"), SegMaskName(r.base, method, "canal")); err != nil {
		return err
	}
	return r.store(canalOnly, maskKey(method, "canal-only"), SegMaskName(r.base, method, "canal-only"))
}

func handleDeriveLevels(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	raw, err := r.load(def.Inputs[0])
	if err != nil {
		return err
	}
	relabeled := volume.RelabelLevels(raw, domain.VertebralLevelMap)
	return r.store(relabeled, def.Output, SegMaskName(r.base, domain.MethodTotalSpineSeg, "levels"))
}

func handleFilterDiscs(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	discs, err := r.load(def.Inputs[0])
	if err != nil {
		return err
	}
	filtered := volume.FilterDiscLabels(discs, def.Label)
	return r.store(filtered, def.Output, SegMaskName(r.base, domain.MethodTotalSpineSeg, "discs-filtered"))
}

func handleRegister(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	image, err := r.ws.Ref(def.Inputs[0])
	if err != nil {
		return err
	}
	cord, err := r.ws.Ref(def.Inputs[1])
	if err != nil {
		return err
	}
	discs, err := r.ws.Ref(def.Inputs[2])
	if err != nil {
		return err
	}

	warpField, err := r.adapter.RegisterToReference(ctx, image, cord, discs, string(r.ws.Path("registration")))
	if err != nil {
		return err
	}
	r.ws.SetRef(def.Output, warpField)
	return nil
}

func handleWarp(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	template := tools.Ref(def.Inputs[0])
	warpField, err := r.ws.Ref(def.Inputs[1])
	if err != nil {
		return err
	}
	image, err := r.ws.Ref(keyImage)
	if err != nil {
		return err
	}

	out := r.ws.Path(WarpedName(templateStem(def.Inputs[0]), def.Mode))
	if err := r.adapter.Warp(ctx, template, warpField, image, def.Mode, out); err != nil {
		return err
	}
	r.ws.SetRef(def.Output, out)
	return nil
}

// templateStem возвращает имя файла шаблона без расширений NIfTI.
func templateStem(path string) string {
	stem := filepath.Base(path)
	stem = strings.TrimSuffix(stem, ".gz")
	stem = strings.TrimSuffix(stem, ".nii")
	return stem
}

func handleBinarize(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	v, err := r.load(def.Inputs[0])
	if err != nil {
		return err
	}
	bin := volume.Binarize(v, volume.Threshold)

	// Имя строится тем же помощником, что и у варпированного входа:
	// "<stem>_warped_<mode>.nii.gz" → "<stem>_warped_<mode>_bin.nii.gz".
	ref, _ := r.ws.Ref(def.Inputs[0])
	stem := strings.TrimSuffix(templateStem(string(ref)), "_warped_"+string(def.Mode))
	return r.store(bin, def.Output, WarpedBinName(stem, def.Mode))
}

func handleUnion(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	a, err := r.load(def.Inputs[0])
	if err != nil {
		return err
	}
	b, err := r.load(def.Inputs[1])
	if err != nil {
		return err
	}
	u, err := volume.Union(a, b)
	if err != nil {
		return err
	}
	return r.store(u, def.Output, r.base+"_"+def.Output+".nii.gz")
}

func handleSubtract(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	a, err := r.load(def.Inputs[0])
	if err != nil {
		return err
	}
	b, err := r.load(def.Inputs[1])
	if err != nil {
		return err
	}
	d, err := volume.SubtractFloor(a, b)
	if err != nil {
		return err
	}
	return r.store(d, def.Output, r.base+"_"+def.Output+".nii.gz")
}

// measureResultName возвращает имя рабочего CSV измерительной задачи.
func measureResultName(base string, def *domain.TaskDef) string {
	suffix := string(def.Method)
	if def.Mode != "" {
		suffix += "-" + string(def.Mode)
	}
	return base + "_" + suffix + "_" + def.Measure + ".csv"
}

func handleMeasureArea(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	mask, err := r.ws.Ref(def.Inputs[0])
	if err != nil {
		return err
	}
	levels, err := r.ws.Ref(def.Inputs[1])
	if err != nil {
		return err
	}

	out := r.ws.Path(measureResultName(r.base, def))
	table, err := r.adapter.MeasureArea(ctx, mask, levels, out)
	if err != nil {
		return err
	}
	r.ws.SetResult(domain.ResultKey{Method: def.Method, Mode: def.Mode}, def.Measure, table)
	return nil
}

func handleMeasureRatio(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	cord, err := r.ws.Ref(def.Inputs[0])
	if err != nil {
		return err
	}
	canalOnly, err := r.ws.Ref(def.Inputs[1])
	if err != nil {
		return err
	}
	levels, err := r.ws.Ref(def.Inputs[2])
	if err != nil {
		return err
	}

	out := r.ws.Path(measureResultName(r.base, def))
	table, err := r.adapter.ComputeRatio(ctx, cord, canalOnly, levels, out)
	if err != nil {
		return err
	}
	r.ws.SetResult(domain.ResultKey{Method: def.Method, Mode: def.Mode}, def.Measure, table)
	return nil
}

func handleComposeQC(ctx context.Context, r *TaskRunner, def *domain.TaskDef) error {
	image, err := r.ws.Ref(keyImage)
	if err != nil {
		return err
	}

	overlays := make([]tools.Ref, 0, len(def.Inputs))
	for _, key := range def.Inputs {
		ref, err := r.ws.Ref(key)
		if err != nil {
			// Необязательный оверлей (например, маски SPINEPS) может
			// отсутствовать: панелей меньше, но это не ошибка.
			continue
		}
		overlays = append(overlays, ref)
	}
	return r.adapter.ComposeQC(ctx, image, overlays, string(r.ws.Path("qc")))
}
