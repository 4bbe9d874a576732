package engine

import (
	"sync"
)

// execState — потокобезопасное состояние выполнения графа.
//
// Хранит множества завершённых, выполняющихся и терминальных
// (упавших или пропущенных) задач. Все методы безопасны для
// конкурентного вызова.
type execState struct {
	mu sync.Mutex

	completed map[string]bool
	running   map[string]bool
	failed    map[string]bool
	skipped   map[string]bool

	// firstErr — первая ошибка выполнения. После её фиксации новые
	// задачи не запускаются.
	firstErr error
}

func newExecState() *execState {
	return &execState{
		completed: make(map[string]bool),
		running:   make(map[string]bool),
		failed:    make(map[string]bool),
		skipped:   make(map[string]bool),
	}
}

// markRunning помечает задачу как выполняющуюся.
func (s *execState) markRunning(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[id] = true
}

// markCompleted переводит задачу из running в completed.
func (s *execState) markCompleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
	s.completed[id] = true
}

// markFailed переводит задачу из running в failed и фиксирует
// первую ошибку.
func (s *execState) markFailed(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
	s.failed[id] = true
	if s.firstErr == nil {
		s.firstErr = err
	}
}

// markSkipped помечает задачу как пропущенную без запуска.
func (s *execState) markSkipped(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped[id] = true
}

// hasFailure сообщает, была ли зафиксирована ошибка.
func (s *execState) hasFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr != nil
}

// err возвращает первую зафиксированную ошибку.
func (s *execState) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// runningCount возвращает количество выполняющихся задач.
func (s *execState) runningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// snapshot возвращает копии множеств для выбора готовых узлов.
// terminal объединяет failed и skipped.
func (s *execState) snapshot() (completed, running, terminal map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed = make(map[string]bool, len(s.completed))
	for id := range s.completed {
		completed[id] = true
	}
	running = make(map[string]bool, len(s.running))
	for id := range s.running {
		running[id] = true
	}
	terminal = make(map[string]bool, len(s.failed)+len(s.skipped))
	for id := range s.failed {
		terminal[id] = true
	}
	for id := range s.skipped {
		terminal[id] = true
	}
	return completed, running, terminal
}

// counts возвращает количества задач по исходам.
func (s *execState) counts() (completed, failed, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed), len(s.failed), len(s.skipped)
}
