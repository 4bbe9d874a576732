package tools

import "fmt"

// ThreadCaps — явные ограничения внутренних потоков внешних
// инструментов. Передаётся адаптеру через конфигурацию, а не через
// окружение процесса: произведение потоков инструмента, параллельных
// задач субъекта и параллельных субъектов не должно превышать
// доступные CPU.
type ThreadCaps struct {
	// ITK — потоки ITK-базированных инструментов
	// (ITK_GLOBAL_DEFAULT_NUMBER_OF_THREADS).
	ITK int

	// OpenMP — потоки OpenMP-базированных инструментов
	// (OMP_NUM_THREADS).
	OpenMP int

	// Workers — воркеры инструментов с собственным пулом
	// (SCT_NUM_THREADS).
	Workers int
}

// DefaultThreadCaps возвращает консервативные ограничения:
// один поток на инструмент.
func DefaultThreadCaps() ThreadCaps {
	return ThreadCaps{ITK: 1, OpenMP: 1, Workers: 1}
}

// Env возвращает переменные окружения для дочернего процесса
// инструмента. Нулевые и отрицательные значения пропускаются.
func (c ThreadCaps) Env() []string {
	env := make([]string, 0, 3)
	if c.ITK > 0 {
		env = append(env, fmt.Sprintf("ITK_GLOBAL_DEFAULT_NUMBER_OF_THREADS=%d", c.ITK))
	}
	if c.OpenMP > 0 {
		env = append(env, fmt.Sprintf("OMP_NUM_THREADS=%d", c.OpenMP))
	}
	if c.Workers > 0 {
		env = append(env, fmt.Sprintf("SCT_NUM_THREADS=%d", c.Workers))
	}
	return env
}
