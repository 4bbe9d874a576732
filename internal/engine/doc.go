// Package engine реализует граф зависимостей задач и его исполнитель.
//
// Включает:
//   - dag.go — построение DAG из деклараций задач, топологическая
//     сортировка, выбор готовых узлов
//   - state.go — потокобезопасное состояние выполнения
//   - executor.go — конкурентное выполнение с ограничением
//     параллелизма и fail-fast семантикой
//
// Форма графа фиксирована и известна до выполнения: engine не строит
// граф динамически и ничего не знает о содержании задач — выполнение
// делегируется Runner'у.
package engine
