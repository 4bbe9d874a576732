package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"canalis/internal/domain"
)

// recorder — Runner и Observer для тестов: пишет порядок запусков
// и статусы завершения.
type recorder struct {
	mu       sync.Mutex
	started  []string
	statuses map[string]domain.TaskStatus
	fail     map[string]error
	delay    map[string]time.Duration
}

func newRecorder() *recorder {
	return &recorder{
		statuses: make(map[string]domain.TaskStatus),
		fail:     make(map[string]error),
		delay:    make(map[string]time.Duration),
	}
}

func (r *recorder) Run(ctx context.Context, def *domain.TaskDef) error {
	r.mu.Lock()
	r.started = append(r.started, def.ID)
	d := r.delay[def.ID]
	err := r.fail[def.ID]
	r.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (r *recorder) TaskStarted(def *domain.TaskDef) {}

func (r *recorder) TaskFinished(def *domain.TaskDef, status domain.TaskStatus, err error, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[def.ID] = status
}

func (r *recorder) startedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.started))
	copy(out, r.started)
	return out
}

func (r *recorder) status(id string) domain.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

func TestExecuteAll(t *testing.T) {
	dag, err := Build(defsChain())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	rec := newRecorder()
	exec := NewExecutor(ExecutorConfig{Concurrency: 2, Observer: rec})

	report, err := exec.Execute(context.Background(), dag, rec)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if report.Succeeded != 4 || report.Failed != 0 || report.Skipped != 0 {
		t.Errorf("unexpected report: %+v", report)
	}

	started := rec.startedIDs()
	if len(started) != 4 {
		t.Fatalf("expected 4 started tasks, got %v", started)
	}
	if started[0] != "segment" {
		t.Errorf("expected 'segment' first, got %s", started[0])
	}
	if started[3] != "measure" {
		t.Errorf("expected 'measure' last, got %s", started[3])
	}
}

func TestExecuteRespectsDependencyOrder(t *testing.T) {
	defs := []domain.TaskDef{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	}
	dag, err := Build(defs)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	rec := newRecorder()
	exec := NewExecutor(ExecutorConfig{Concurrency: 4, Observer: rec})

	if _, err := exec.Execute(context.Background(), dag, rec); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	started := rec.startedIDs()
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if started[i] != id {
			t.Errorf("position %d: expected %s, got %s", i, id, started[i])
		}
	}
}

func TestExecuteFailFast(t *testing.T) {
	// segment → masks → measure; levels — параллельная долгая ветка.
	defs := []domain.TaskDef{
		{ID: "segment"},
		{ID: "masks", DependsOn: []string{"segment"}},
		{ID: "levels", DependsOn: []string{"segment"}},
		{ID: "measure", DependsOn: []string{"masks", "levels"}},
	}
	dag, err := Build(defs)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	toolErr := errors.New("segmentation tool exited with code 1")
	rec := newRecorder()
	rec.fail["masks"] = toolErr
	rec.delay["levels"] = 50 * time.Millisecond

	exec := NewExecutor(ExecutorConfig{Concurrency: 4, Observer: rec})
	report, err := exec.Execute(context.Background(), dag, rec)
	if !errors.Is(err, toolErr) {
		t.Fatalf("expected tool error, got %v", err)
	}

	if report.Failed != 1 {
		t.Errorf("expected 1 failed task, got %d", report.Failed)
	}
	// levels была в полёте на момент падения masks и должна
	// завершиться, а не оборваться.
	if rec.status("levels") != domain.TaskStatusSucceeded {
		t.Errorf("in-flight task should finish, got status %s", rec.status("levels"))
	}
	if rec.status("measure") != domain.TaskStatusSkipped {
		t.Errorf("downstream task should be skipped, got status %s", rec.status("measure"))
	}
	if report.Succeeded != 2 || report.Skipped != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestExecuteConcurrencyLimit(t *testing.T) {
	// 6 независимых задач, лимит 2.
	defs := make([]domain.TaskDef, 6)
	for i := range defs {
		defs[i] = domain.TaskDef{ID: string(rune('a' + i))}
	}
	dag, err := Build(defs)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var mu sync.Mutex
	active, peak := 0, 0

	runner := RunnerFunc(func(ctx context.Context, def *domain.TaskDef) error {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	})

	exec := NewExecutor(ExecutorConfig{Concurrency: 2})
	report, err := exec.Execute(context.Background(), dag, runner)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if report.Succeeded != 6 {
		t.Errorf("expected 6 succeeded, got %d", report.Succeeded)
	}
	if peak > 2 {
		t.Errorf("concurrency limit exceeded: peak %d", peak)
	}
}

func TestExecuteContextCancel(t *testing.T) {
	defs := []domain.TaskDef{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}
	dag, err := Build(defs)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runner := RunnerFunc(func(ctx context.Context, def *domain.TaskDef) error {
		cancel()
		return nil
	})

	exec := NewExecutor(ExecutorConfig{Concurrency: 1})
	_, err = exec.Execute(ctx, dag, runner)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
