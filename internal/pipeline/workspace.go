package pipeline

import (
	"fmt"
	"path/filepath"
	"sync"

	"canalis/internal/domain"
	"canalis/internal/tools"
)

// Workspace — рабочая область одного субъекта: именованные ссылки на
// промежуточные тома и накопленные таблицы измерений.
//
// Ссылки пишутся задачами графа из разных горутин; эксклюзивность
// записи гарантирована построением (один Output — одна задача),
// но карта защищается мьютексом.
type Workspace struct {
	// Dir — рабочий каталог субъекта для промежуточных файлов.
	Dir string

	mu      sync.RWMutex
	refs    map[string]tools.Ref
	results map[domain.ResultKey]*domain.ResultSet
}

// NewWorkspace создаёт рабочую область в каталоге dir.
func NewWorkspace(dir string) *Workspace {
	return &Workspace{
		Dir:     dir,
		refs:    make(map[string]tools.Ref),
		results: make(map[domain.ResultKey]*domain.ResultSet),
	}
}

// Path возвращает путь файла name в рабочем каталоге.
func (w *Workspace) Path(name string) tools.Ref {
	return tools.Ref(filepath.Join(w.Dir, name))
}

// SetRef регистрирует ссылку на том под именем key.
func (w *Workspace) SetRef(key string, ref tools.Ref) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refs[key] = ref
}

// Ref возвращает ссылку по имени.
func (w *Workspace) Ref(key string) (tools.Ref, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ref, ok := w.refs[key]
	if !ok {
		return "", fmt.Errorf("workspace: no volume registered under %q", key)
	}
	return ref, nil
}

// HasRef сообщает, зарегистрирована ли ссылка.
func (w *Workspace) HasRef(key string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.refs[key]
	return ok
}

// SetResult записывает таблицу измерения в набор результата ключа.
func (w *Workspace) SetResult(key domain.ResultKey, measure string, t *domain.LevelTable) {
	w.mu.Lock()
	defer w.mu.Unlock()
	set, ok := w.results[key]
	if !ok {
		set = &domain.ResultSet{}
		w.results[key] = set
	}
	set.SetTable(measure, t)
}

// Result возвращает набор результата ключа (nil, если пуст).
func (w *Workspace) Result(key domain.ResultKey) *domain.ResultSet {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.results[key]
}
