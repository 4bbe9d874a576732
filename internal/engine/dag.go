package engine

import (
	"fmt"

	"canalis/internal/domain"
)

// Node — узел в DAG.
type Node struct {
	// Def — декларация задачи.
	Def *domain.TaskDef

	// ID — идентификатор узла (копия Def.ID).
	ID string

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG — направленный ациклический граф задач субъекта.
type DAG struct {
	// Nodes — все узлы графа (taskID → Node).
	Nodes map[string]*Node

	// RootNodes — узлы без зависимостей (точки входа).
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// Build строит DAG из списка деклараций задач.
//
// Проверяет уникальность ID и выходов, существование зависимостей
// и отсутствие циклов.
func Build(defs []domain.TaskDef) (*DAG, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyGraph
	}

	dag := &DAG{
		Nodes:     make(map[string]*Node, len(defs)),
		RootNodes: make([]*Node, 0),
	}

	// Первый проход: создаём узлы, проверяем уникальность ID и выходов.
	outputs := make(map[string]string, len(defs))
	for i := range defs {
		def := &defs[i]

		if def.ID == "" {
			return nil, &GraphError{Message: "task has empty ID", Err: ErrEmptyTaskID}
		}
		if _, exists := dag.Nodes[def.ID]; exists {
			return nil, &GraphError{TaskID: def.ID, Message: "duplicate task ID", Err: ErrDuplicateTaskID}
		}
		if def.Output != "" {
			if owner, exists := outputs[def.Output]; exists {
				return nil, &GraphError{TaskID: def.ID,
					Message: fmt.Sprintf("output %q already declared by task %q", def.Output, owner),
					Err:     ErrDuplicateOutput}
			}
			outputs[def.Output] = def.ID
		}

		dag.Nodes[def.ID] = &Node{
			Def:        def,
			ID:         def.ID,
			DependsOn:  make([]*Node, 0),
			Dependents: make([]*Node, 0),
		}
	}

	// Второй проход: связываем узлы по зависимостям.
	for i := range defs {
		def := &defs[i]
		node := dag.Nodes[def.ID]

		for _, depID := range def.DependsOn {
			if depID == def.ID {
				return nil, &GraphError{TaskID: def.ID, Message: "task depends on itself", Err: ErrSelfDependency}
			}
			depNode, exists := dag.Nodes[depID]
			if !exists {
				return nil, &GraphError{TaskID: def.ID,
					Message: fmt.Sprintf("depends on unknown task: %s", depID),
					Err:     ErrMissingDependency}
			}
			addEdge(depNode, node)
		}
	}

	// Находим корневые узлы.
	for _, node := range dag.Nodes {
		if node.InDegree == 0 {
			dag.RootNodes = append(dag.RootNodes, node)
		}
	}

	// Проверяем на циклы и строим топологический порядок.
	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// addEdge добавляет ребро между узлами.
// Дубликаты игнорируются, чтобы избежать двойного учёта InDegree.
func addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.Nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(d.Nodes) {
		return nil, ErrCyclicDependency
	}
	return order, nil
}

// GetReadyNodes возвращает узлы, готовые к выполнению.
//
// Узел готов, если все его зависимости в completed, а сам он не в
// completed, running и не терминален по другим причинам (terminal).
// Обход идёт в топологическом порядке, поэтому результат детерминирован.
func (d *DAG) GetReadyNodes(completed, running, terminal map[string]bool) []*Node {
	ready := make([]*Node, 0)

	for _, node := range d.Order {
		if completed[node.ID] || running[node.ID] || terminal[node.ID] {
			continue
		}

		allDepsCompleted := true
		for _, dep := range node.DependsOn {
			if !completed[dep.ID] {
				allDepsCompleted = false
				break
			}
		}
		if allDepsCompleted {
			ready = append(ready, node)
		}
	}

	return ready
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}
