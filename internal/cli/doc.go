// Package cli реализует команды инструмента canalis.
//
// # Обзор
//
// CLI — единая точка входа в систему: запуск обработки датасета,
// агрегация опубликованных результатов, просмотр субъектов и
// генерация файла конфигурации.
//
// # Ключевые компоненты
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.Encoder) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: canalis subjects --json | jq .
//
// ## Commands
//
//   - run: обработка всех (или выбранных) субъектов датасета
//   - aggregate: сводные CSV по методам из дерева результатов
//   - subjects: список обнаруженных субъектов
//   - tools: проверка доступности внешних инструментов
//   - config: генерация и просмотр файла конфигурации
//
// Каждая команда создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую cfgFn и outputFn — замыкания для ленивого чтения
// конфигурации и создания Output после парсинга PersistentFlags.
package cli
