package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"canalis/internal/domain"
	"canalis/internal/methods"
	"canalis/internal/tools"
	"canalis/internal/volume"
)

// writeImage создаёт файл-заглушку входного изображения.
func writeImage(t *testing.T, dataDir, subject, session, name string) {
	t.Helper()
	dir := filepath.Join(dataDir, subject)
	if session != "" {
		dir = filepath.Join(dir, session)
	}
	dir = filepath.Join(dir, "anat")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte("nifti"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testPipeline(t *testing.T, adapter tools.Adapter) (*SubjectPipeline, string, string) {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	resultsDir := filepath.Join(root, "results")

	p, err := New(Config{
		DataDir:    dataDir,
		WorkDir:    filepath.Join(root, "work"),
		ResultsDir: resultsDir,
		Templates:  testTemplates(),
		Adapter:    adapter,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, dataDir, resultsDir
}

func TestDiscoverPreference(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sub-01_ce-gad_T2w.nii.gz", "sub-01_T2w.nii.gz"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Discover(dir, DefaultPatterns("T2w"))
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if filepath.Base(string(got)) != "sub-01_T2w.nii.gz" {
		t.Errorf("expected plain contrast preferred, got %s", got)
	}
}

func TestDiscoverFallsBackToAgentVariant(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sub-01_ce-gad_T2w.nii.gz"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Discover(dir, DefaultPatterns("T2w"))
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if filepath.Base(string(got)) != "sub-01_ce-gad_T2w.nii.gz" {
		t.Errorf("expected agent variant fallback, got %s", got)
	}
}

func TestDiscoverMissing(t *testing.T) {
	_, err := Discover(t.TempDir(), DefaultPatterns("T2w"))
	if !errors.Is(err, tools.ErrInputMissing) {
		t.Fatalf("expected ErrInputMissing, got %v", err)
	}
}

func TestRunCompletesAndPublishes(t *testing.T) {
	adapter := tools.NewMemAdapter()
	p, dataDir, resultsDir := testPipeline(t, adapter)
	writeImage(t, dataDir, "sub-01", "", "sub-01_T2w.nii.gz")

	run := domain.NewSubjectRun("sub-01", "", "T2w")
	if err := p.Run(context.Background(), run); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Outcome != domain.OutcomeCompleted {
		t.Fatalf("expected COMPLETED, got %s (error %q)", run.Outcome, run.Error)
	}
	if run.SPINEPSAvailable {
		t.Error("spineps should be unavailable by default")
	}

	// 7 наборов результатов: totalspineseg + по 3 режима для
	// custom-atlas и pam50. SPINEPS отсутствует без инструмента.
	keys := ExpectedResultKeys(false)
	if len(keys) != 7 {
		t.Fatalf("expected 7 result keys, got %d", len(keys))
	}
	for _, key := range keys {
		dir := filepath.Join(resultsDir, key.Dir())
		for _, measure := range domain.Measures {
			path := filepath.Join(dir, ResultFileName("sub-01_T2w", measure))
			table, err := tools.ReadLevelTable(tools.Ref(path))
			if err != nil {
				t.Fatalf("missing published result %s: %v", path, err)
			}
			if len(table.Rows) == 0 {
				t.Errorf("empty result table %s", path)
			}
		}
	}
	if _, err := os.Stat(filepath.Join(resultsDir, "method-spineps")); !os.IsNotExist(err) {
		t.Error("spineps results must be absent without the tool")
	}

	// Все записи задач терминальны и успешны.
	for id, record := range run.Tasks {
		if record.Status != domain.TaskStatusSucceeded {
			t.Errorf("task %s status %s", id, record.Status)
		}
	}
}

func TestRunWithSPINEPS(t *testing.T) {
	adapter := tools.NewMemAdapter()
	adapter.SPINEPSAvailable = true
	p, dataDir, resultsDir := testPipeline(t, adapter)
	writeImage(t, dataDir, "sub-02", "ses-01", "sub-02_ses-01_T2w.nii.gz")

	run := domain.NewSubjectRun("sub-02", "ses-01", "T2w")
	if err := p.Run(context.Background(), run); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	path := filepath.Join(resultsDir, "method-spineps", "sub-02_ses-01_T2w_ratio.csv")
	table, err := tools.ReadLevelTable(tools.Ref(path))
	if err != nil {
		t.Fatalf("spineps ratio not published: %v", err)
	}
	for _, row := range table.Rows {
		if row.Value <= 0 || row.Value >= 1 {
			t.Errorf("level %d: spineps ratio out of (0,1): %g", row.Level, row.Value)
		}
	}

	// QC получил и DL-маски, и сплайновые варпированные оверлеи.
	if len(adapter.QCComposed) < 5 {
		t.Errorf("expected at least 5 qc overlays, got %d", len(adapter.QCComposed))
	}
}

func TestRunSkippedWhenInputMissing(t *testing.T) {
	adapter := tools.NewMemAdapter()
	p, dataDir, resultsDir := testPipeline(t, adapter)

	// Каталог субъекта есть, изображения нет.
	if err := os.MkdirAll(filepath.Join(dataDir, "sub-03", "anat"), 0o755); err != nil {
		t.Fatal(err)
	}

	run := domain.NewSubjectRun("sub-03", "", "T2w")
	if err := p.Run(context.Background(), run); err != nil {
		t.Fatalf("skip must not be an error: %v", err)
	}
	if run.Outcome != domain.OutcomeSkipped {
		t.Fatalf("expected SKIPPED, got %s", run.Outcome)
	}
	if len(run.Tasks) != 0 {
		t.Error("skipped subject must not start tasks")
	}
	if _, err := os.Stat(resultsDir); !os.IsNotExist(err) {
		t.Error("skipped subject must publish nothing")
	}
}

func TestRunFailurePublishesNothing(t *testing.T) {
	adapter := tools.NewMemAdapter()
	p, dataDir, resultsDir := testPipeline(t, adapter)
	writeImage(t, dataDir, "sub-04", "", "sub-04_T2w.nii.gz")

	// Валим регистрацию: измерения TotalSpineSeg при этом успевают
	// пройти, но публикация «всё или ничего» не должна состояться.
	adapter.FailOp["register"] = errors.New("template mismatch")

	run := domain.NewSubjectRun("sub-04", "", "T2w")
	err := p.Run(context.Background(), run)
	if !errors.Is(err, tools.ErrRegistrationFailed) {
		t.Fatalf("expected registration failure, got %v", err)
	}
	if run.Outcome != domain.OutcomeFailed {
		t.Fatalf("expected FAILED, got %s", run.Outcome)
	}

	if _, statErr := os.Stat(resultsDir); !os.IsNotExist(statErr) {
		t.Error("failed subject must publish nothing")
	}

	// Незапущенные задачи ветки регистрации помечены пропущенными.
	var skipped int
	for _, record := range run.Tasks {
		if record.Status == domain.TaskStatusSkipped {
			skipped++
		}
	}
	if skipped == 0 {
		t.Error("expected skipped downstream tasks after failure")
	}
}

func TestRunSegmentationFailure(t *testing.T) {
	adapter := tools.NewMemAdapter()
	p, dataDir, _ := testPipeline(t, adapter)
	writeImage(t, dataDir, "sub-05", "", "sub-05_T2w.nii.gz")

	imagePath := filepath.Join(dataDir, "sub-05", "anat", "sub-05_T2w.nii.gz")
	adapter.FailSegment[tools.Ref(imagePath)] = errors.New("cuda out of memory")

	run := domain.NewSubjectRun("sub-05", "", "T2w")
	err := p.Run(context.Background(), run)
	if !errors.Is(err, tools.ErrSegmentationFailed) {
		t.Fatalf("expected segmentation failure, got %v", err)
	}
	if !tools.IsToolError(err) {
		t.Error("segmentation failure must classify as tool error")
	}

	// Первая задача упала, всё остальное пропущено.
	record := run.Tasks["segment-totalspineseg"]
	if record == nil || record.Status != domain.TaskStatusFailed {
		t.Errorf("segment task record: %+v", record)
	}
}

func TestNaming(t *testing.T) {
	if got := SubjectBase("sub-01", "ses-02", "T2w"); got != "sub-01_ses-02_T2w" {
		t.Errorf("SubjectBase with session: %s", got)
	}
	if got := SubjectBase("sub-01", "", "T2w"); got != "sub-01_T2w" {
		t.Errorf("SubjectBase without session: %s", got)
	}
	if got := SegMaskName("sub-01_T2w", domain.MethodTotalSpineSeg, "cord"); got != "sub-01_T2w_seg-totalspineseg-cord.nii.gz" {
		t.Errorf("SegMaskName: %s", got)
	}
	if got := WarpedName("PAM50_cord", domain.InterpSpline); got != "PAM50_cord_warped_spline.nii.gz" {
		t.Errorf("WarpedName: %s", got)
	}
	if got := WarpedBinName("PAM50_cord", domain.InterpNN); got != "PAM50_cord_warped_nn_bin.nii.gz" {
		t.Errorf("WarpedBinName: %s", got)
	}
	if got := ResultFileName("sub-01_T2w", domain.MeasureRatio); got != "sub-01_T2w_ratio.csv" {
		t.Errorf("ResultFileName: %s", got)
	}
}

// recordingPublisher копит опубликованные наборы.
type recordingPublisher struct {
	keys []domain.ResultKey
	err  error
}

func (p *recordingPublisher) PublishResultSet(_ context.Context, _ *domain.SubjectRun, key domain.ResultKey, set *domain.ResultSet) error {
	if set == nil || !set.Complete() {
		return errors.New("incomplete result set handed to publisher")
	}
	p.keys = append(p.keys, key)
	return p.err
}

func TestRunInvokesPublisher(t *testing.T) {
	adapter := tools.NewMemAdapter()
	root := t.TempDir()
	pub := &recordingPublisher{}

	p, err := New(Config{
		DataDir:    filepath.Join(root, "data"),
		WorkDir:    filepath.Join(root, "work"),
		ResultsDir: filepath.Join(root, "results"),
		Templates:  testTemplates(),
		Adapter:    adapter,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	writeImage(t, filepath.Join(root, "data"), "sub-06", "", "sub-06_T2w.nii.gz")

	run := domain.NewSubjectRun("sub-06", "", "T2w")
	if err := p.Run(context.Background(), run); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(pub.keys) != len(ExpectedResultKeys(false)) {
		t.Fatalf("publisher saw %d sets, want %d", len(pub.keys), len(ExpectedResultKeys(false)))
	}
}

// TestRunPublisherErrorIsNotFatal — сбой БД после публикации CSV не
// меняет исход субъекта.
func TestRunPublisherErrorIsNotFatal(t *testing.T) {
	adapter := tools.NewMemAdapter()
	root := t.TempDir()
	pub := &recordingPublisher{err: errors.New("connection reset")}

	p, err := New(Config{
		DataDir:    filepath.Join(root, "data"),
		WorkDir:    filepath.Join(root, "work"),
		ResultsDir: filepath.Join(root, "results"),
		Templates:  testTemplates(),
		Adapter:    adapter,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	writeImage(t, filepath.Join(root, "data"), "sub-07", "", "sub-07_T2w.nii.gz")

	run := domain.NewSubjectRun("sub-07", "", "T2w")
	if err := p.Run(context.Background(), run); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Outcome != domain.OutcomeCompleted {
		t.Fatalf("expected COMPLETED despite publisher error, got %s", run.Outcome)
	}
}

// TestCordWithinCanalForAllMethods — для каждой строки таблицы методов
// маска мозга повоксельно лежит внутри маски канала. Проверяется на
// масках, сохранённых реальным прогоном, по каждому режиму интерполяции.
func TestCordWithinCanalForAllMethods(t *testing.T) {
	adapter := tools.NewMemAdapter()
	adapter.SPINEPSAvailable = true
	root := t.TempDir()

	p, err := New(Config{
		DataDir:    filepath.Join(root, "data"),
		WorkDir:    filepath.Join(root, "work"),
		ResultsDir: filepath.Join(root, "results"),
		Templates:  testTemplates(),
		Adapter:    adapter,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	writeImage(t, filepath.Join(root, "data"), "sub-08", "", "sub-08_T2w.nii.gz")

	run := domain.NewSubjectRun("sub-08", "", "T2w")
	if err := p.Run(context.Background(), run); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	base := "sub-08_T2w"
	workDir := filepath.Join(root, "work", base)
	tpl := testTemplates()

	load := func(name string) domain.Volume {
		t.Helper()
		v, err := adapter.LoadVolume(tools.Ref(filepath.Join(workDir, name)))
		if err != nil {
			t.Fatalf("mask %s not stored by the run: %v", name, err)
		}
		return v
	}
	maskName := func(method domain.Method, src methods.Source, mode domain.InterpolationMode) string {
		switch src {
		case methods.SourceDLCord:
			return SegMaskName(base, method, "cord")
		case methods.SourceDLCombined:
			return SegMaskName(base, method, "canal")
		case methods.SourceTSSCord:
			return SegMaskName(base, domain.MethodTotalSpineSeg, "cord")
		case methods.SourceWarpedCordBin:
			return WarpedBinName(templateStem(tpl.Cord), mode)
		case methods.SourceWarpedAtlasBin:
			return WarpedBinName(templateStem(tpl.Atlas), mode)
		case methods.SourceWarpedUnion:
			return base + "_warped-union-" + string(mode) + ".nii.gz"
		}
		t.Fatalf("unexpected mask source %s", src)
		return ""
	}

	for _, def := range methods.All() {
		for _, mode := range def.Modes() {
			cord := load(maskName(def.Method, def.Cord, mode))
			canal := load(maskName(def.Method, def.Canal, mode))

			// Пустая маска сделала бы включение тривиальным.
			if cord.CountNonZero() == 0 {
				t.Errorf("method %s mode %q: cord mask is empty", def.Method, mode)
			}
			ok, err := volume.Contains(canal, cord)
			if err != nil {
				t.Fatalf("method %s mode %q: Contains: %v", def.Method, mode, err)
			}
			if !ok {
				t.Errorf("method %s mode %q: cord voxels outside canal", def.Method, mode)
			}
		}
	}
}
