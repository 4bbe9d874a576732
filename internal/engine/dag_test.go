package engine

import (
	"errors"
	"testing"

	"canalis/internal/domain"
)

func defsChain() []domain.TaskDef {
	return []domain.TaskDef{
		{ID: "segment", Kind: domain.TaskSegment},
		{ID: "masks", Kind: domain.TaskDeriveMasks, DependsOn: []string{"segment"}},
		{ID: "levels", Kind: domain.TaskDeriveLevels, DependsOn: []string{"segment"}},
		{ID: "measure", Kind: domain.TaskMeasureArea, DependsOn: []string{"masks", "levels"}},
	}
}

func TestBuild(t *testing.T) {
	dag, err := Build(defsChain())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if dag.Size() != 4 {
		t.Errorf("expected 4 nodes, got %d", dag.Size())
	}
	if len(dag.RootNodes) != 1 || dag.RootNodes[0].ID != "segment" {
		t.Errorf("expected single root 'segment', got %v", dag.RootNodes)
	}

	measure := dag.GetNode("measure")
	if measure == nil {
		t.Fatal("node 'measure' not found")
	}
	if measure.InDegree != 2 {
		t.Errorf("expected InDegree 2 for 'measure', got %d", measure.InDegree)
	}

	segment := dag.GetNode("segment")
	if len(segment.Dependents) != 2 {
		t.Errorf("expected 2 dependents for 'segment', got %d", len(segment.Dependents))
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		defs    []domain.TaskDef
		wantErr error
	}{
		{
			name:    "empty graph",
			defs:    nil,
			wantErr: ErrEmptyGraph,
		},
		{
			name:    "empty task ID",
			defs:    []domain.TaskDef{{ID: ""}},
			wantErr: ErrEmptyTaskID,
		},
		{
			name: "duplicate task ID",
			defs: []domain.TaskDef{
				{ID: "a"},
				{ID: "a"},
			},
			wantErr: ErrDuplicateTaskID,
		},
		{
			name: "duplicate output",
			defs: []domain.TaskDef{
				{ID: "a", Output: "mask"},
				{ID: "b", Output: "mask"},
			},
			wantErr: ErrDuplicateOutput,
		},
		{
			name: "missing dependency",
			defs: []domain.TaskDef{
				{ID: "a", DependsOn: []string{"ghost"}},
			},
			wantErr: ErrMissingDependency,
		},
		{
			name: "self dependency",
			defs: []domain.TaskDef{
				{ID: "a", DependsOn: []string{"a"}},
			},
			wantErr: ErrSelfDependency,
		},
		{
			name: "cycle",
			defs: []domain.TaskDef{
				{ID: "a", DependsOn: []string{"c"}},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "c", DependsOn: []string{"b"}},
			},
			wantErr: ErrCyclicDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.defs)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTopologicalOrder(t *testing.T) {
	dag, err := Build(defsChain())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	pos := make(map[string]int, len(dag.Order))
	for i, node := range dag.Order {
		pos[node.ID] = i
	}

	for _, node := range dag.Order {
		for _, dep := range node.DependsOn {
			if pos[dep.ID] >= pos[node.ID] {
				t.Errorf("dependency %s ordered after dependent %s", dep.ID, node.ID)
			}
		}
	}
}

func TestGetReadyNodes(t *testing.T) {
	dag, err := Build(defsChain())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	none := map[string]bool{}

	ready := dag.GetReadyNodes(none, none, none)
	if len(ready) != 1 || ready[0].ID != "segment" {
		t.Fatalf("expected only 'segment' ready at start, got %v", readyIDs(ready))
	}

	// После segment готовы обе ветки, но не measure.
	completed := map[string]bool{"segment": true}
	ready = dag.GetReadyNodes(completed, none, none)
	if len(ready) != 2 {
		t.Fatalf("expected 2 ready nodes, got %v", readyIDs(ready))
	}

	// masks выполняется: levels готов, measure ждёт.
	running := map[string]bool{"masks": true}
	ready = dag.GetReadyNodes(completed, running, none)
	if len(ready) != 1 || ready[0].ID != "levels" {
		t.Errorf("expected only 'levels' ready, got %v", readyIDs(ready))
	}

	// Обе зависимости завершены: готов measure.
	completed["masks"] = true
	completed["levels"] = true
	ready = dag.GetReadyNodes(completed, none, none)
	if len(ready) != 1 || ready[0].ID != "measure" {
		t.Errorf("expected only 'measure' ready, got %v", readyIDs(ready))
	}

	// Терминальный узел не предлагается повторно.
	terminal := map[string]bool{"measure": true}
	ready = dag.GetReadyNodes(completed, none, terminal)
	if len(ready) != 0 {
		t.Errorf("expected no ready nodes, got %v", readyIDs(ready))
	}
}

func readyIDs(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
