package pipeline

import (
	"testing"

	"canalis/internal/domain"
	"canalis/internal/engine"
)

func testTemplates() TemplateSet {
	return TemplateSet{
		Cord:   "templates/PAM50_cord.nii.gz",
		CSF:    "templates/PAM50_csf.nii.gz",
		Atlas:  "templates/PAM50_canal.nii.gz",
		Levels: "templates/PAM50_levels.nii.gz",
	}
}

func defByID(t *testing.T, defs []domain.TaskDef, id string) *domain.TaskDef {
	t.Helper()
	for i := range defs {
		if defs[i].ID == id {
			return &defs[i]
		}
	}
	t.Fatalf("task %s not found in graph", id)
	return nil
}

func hasDep(def *domain.TaskDef, dep string) bool {
	for _, d := range def.DependsOn {
		if d == dep {
			return true
		}
	}
	return false
}

func TestBuildGraphIsValidDAG(t *testing.T) {
	for _, spineps := range []bool{true, false} {
		defs := BuildGraph(GraphParams{SPINEPS: spineps, Templates: testTemplates()})
		if _, err := engine.Build(defs); err != nil {
			t.Errorf("spineps=%v: graph does not build: %v", spineps, err)
		}
	}
}

func TestBuildGraphMeasureTasks(t *testing.T) {
	defs := BuildGraph(GraphParams{SPINEPS: true, Templates: testTemplates()})

	// TotalSpineSeg и SPINEPS по 3 измерения, Atlas41 и PAM50 по 3
	// измерения на каждый из 3 режимов.
	var measures int
	for _, def := range defs {
		if def.Kind == domain.TaskMeasureArea || def.Kind == domain.TaskMeasureRatio {
			measures++
		}
	}
	if measures != 24 {
		t.Errorf("expected 24 measurement tasks, got %d", measures)
	}

	withoutSpineps := BuildGraph(GraphParams{SPINEPS: false, Templates: testTemplates()})
	measures = 0
	for _, def := range withoutSpineps {
		if def.Kind == domain.TaskMeasureArea || def.Kind == domain.TaskMeasureRatio {
			measures++
		}
		if def.ID == "segment-spineps" || def.ID == "derive-spineps-masks" {
			t.Errorf("spineps task %s present in graph without the tool", def.ID)
		}
	}
	if measures != 21 {
		t.Errorf("expected 21 measurement tasks without spineps, got %d", measures)
	}
}

func TestBuildGraphPhaseJoin(t *testing.T) {
	defs := BuildGraph(GraphParams{SPINEPS: true, Templates: testTemplates()})

	// Ветки стартуют только после соединения масок и уровней.
	for _, id := range []string{"filter-discs", "segment-spineps"} {
		def := defByID(t, defs, id)
		if !hasDep(def, "derive-masks") || !hasDep(def, "derive-levels") {
			t.Errorf("%s must wait for the derive join, deps: %v", id, def.DependsOn)
		}
	}

	// Измерения TotalSpineSeg зависят от обеих derive-задач через входы.
	cord := defByID(t, defs, "measure-totalspineseg-cord")
	if !hasDep(cord, "derive-masks") || !hasDep(cord, "derive-levels") {
		t.Errorf("measure-totalspineseg-cord deps: %v", cord.DependsOn)
	}
}

func TestBuildGraphRegistrationBranch(t *testing.T) {
	defs := BuildGraph(GraphParams{SPINEPS: false, Templates: testTemplates()})

	register := defByID(t, defs, "register")
	if !hasDep(register, "filter-discs") || !hasDep(register, "derive-masks") {
		t.Errorf("register deps: %v", register.DependsOn)
	}

	// Уровни варпируются один раз, всегда ближайшим соседом.
	warpLevels := defByID(t, defs, "warp-levels")
	if warpLevels.Mode != domain.InterpNN {
		t.Errorf("warp-levels mode: %s", warpLevels.Mode)
	}

	for _, mode := range domain.InterpolationModes {
		m := string(mode)

		union := defByID(t, defs, "derive-union-"+m)
		if !hasDep(union, "binarize-cord-"+m) || !hasDep(union, "binarize-csf-"+m) {
			t.Errorf("derive-union-%s deps: %v", m, union.DependsOn)
		}

		// Ratio-задача PAM50 зависит от canal-only этого же режима и
		// варпированных уровней.
		ratio := defByID(t, defs, "measure-pam50-"+m+"-ratio")
		if !hasDep(ratio, "derive-pam50-canalonly-"+m) || !hasDep(ratio, "warp-levels") {
			t.Errorf("measure-pam50-%s-ratio deps: %v", m, ratio.DependsOn)
		}

		// Canal-only Atlas41 вычитает cord TotalSpineSeg из атласа.
		sub := defByID(t, defs, "derive-atlas-canalonly-"+m)
		if sub.Inputs[1] != "totalspineseg-cord" {
			t.Errorf("derive-atlas-canalonly-%s subtracts %q", m, sub.Inputs[1])
		}
	}
}

func TestBuildGraphQCJoinsAllMeasurements(t *testing.T) {
	defs := BuildGraph(GraphParams{SPINEPS: true, Templates: testTemplates()})
	qc := defByID(t, defs, "compose-qc")

	for _, def := range defs {
		if def.Kind == domain.TaskMeasureArea || def.Kind == domain.TaskMeasureRatio {
			if !hasDep(qc, def.ID) {
				t.Errorf("compose-qc missing dependency on %s", def.ID)
			}
		}
	}
}

func TestBuildGraphOutputsAreExclusive(t *testing.T) {
	defs := BuildGraph(GraphParams{SPINEPS: true, Templates: testTemplates()})
	seen := make(map[string]string)
	for _, def := range defs {
		if def.Output == "" {
			continue
		}
		if owner, ok := seen[def.Output]; ok {
			t.Errorf("output %q produced by both %s and %s", def.Output, owner, def.ID)
		}
		seen[def.Output] = def.ID
	}
}
