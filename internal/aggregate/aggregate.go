// Пакет aggregate собирает опубликованные per-subject результаты в
// сводные таблицы: широкий pivot субъект×уровень для каждого метода
// и описательную статистику по уровням.
package aggregate

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"canalis/internal/domain"
	"canalis/internal/tools"
)

// SubjectRow — значения одного субъекта по уровням.
type SubjectRow struct {
	// Subject — BIDS-идентификатор субъекта.
	Subject string

	// Session — BIDS-идентификатор сессии, пусто без сессии.
	Session string

	// Values — значение по уровню позвонка.
	Values map[int]float64
}

// MethodTable — собранные результаты одного метода и вида измерения.
type MethodTable struct {
	// Key — метод и режим интерполяции.
	Key domain.ResultKey

	// Measure — вид измерения: cord, canal или ratio.
	Measure string

	// Rows — строки по субъектам, отсортированы по субъекту и сессии.
	Rows []SubjectRow
}

// LevelSummary — описательная статистика уровня по субъектам.
type LevelSummary struct {
	// Level — уровень позвонка.
	Level int

	// N — число субъектов со значением на уровне.
	N int

	// Mean — среднее значение.
	Mean float64

	// Std — стандартное отклонение (unbiased). NaN при N < 2.
	Std float64
}

// Collect читает дерево результатов и группирует таблицы по
// (метод, режим, вид измерения). Каталоги вне контракта method-*
// пропускаются.
func Collect(resultsDir string) ([]*MethodTable, error) {
	entries, err := os.ReadDir(resultsDir)
	if err != nil {
		return nil, fmt.Errorf("read results tree: %w", err)
	}

	tables := make(map[string]*MethodTable)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		key, ok := ParseResultDir(entry.Name())
		if !ok {
			continue
		}

		files, err := filepath.Glob(filepath.Join(resultsDir, entry.Name(), "*.csv"))
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			measure, ok := measureFromFilename(file)
			if !ok {
				continue
			}
			subject, session := ExtractSubjectSession(filepath.Base(file))
			if subject == "" {
				continue
			}

			levelTable, err := tools.ReadLevelTable(tools.Ref(file))
			if err != nil {
				return nil, fmt.Errorf("collect %s: %w", file, err)
			}

			id := entry.Name() + "/" + measure
			table, ok := tables[id]
			if !ok {
				table = &MethodTable{Key: key, Measure: measure}
				tables[id] = table
			}

			row := SubjectRow{Subject: subject, Session: session, Values: make(map[int]float64)}
			for _, r := range levelTable.Rows {
				row.Values[r.Level] = r.Value
			}
			table.Rows = append(table.Rows, row)
		}
	}

	out := make([]*MethodTable, 0, len(tables))
	for _, table := range tables {
		sort.Slice(table.Rows, func(i, j int) bool {
			if table.Rows[i].Subject != table.Rows[j].Subject {
				return table.Rows[i].Subject < table.Rows[j].Subject
			}
			return table.Rows[i].Session < table.Rows[j].Session
		})
		out = append(out, table)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Dir() != out[j].Key.Dir() {
			return out[i].Key.Dir() < out[j].Key.Dir()
		}
		return out[i].Measure < out[j].Measure
	})
	return out, nil
}

// ParseResultDir разбирает имя каталога результатов
// ("method-pam50-spline") в ключ набора.
func ParseResultDir(name string) (domain.ResultKey, bool) {
	rest, ok := strings.CutPrefix(name, "method-")
	if !ok {
		return domain.ResultKey{}, false
	}
	for _, method := range domain.Methods {
		if rest == string(method) {
			return domain.ResultKey{Method: method}, true
		}
		for _, mode := range domain.InterpolationModes {
			if rest == string(method)+"-"+string(mode) {
				return domain.ResultKey{Method: method, Mode: mode}, true
			}
		}
	}
	return domain.ResultKey{}, false
}

// ExtractSubjectSession извлекает BIDS-сущности sub- и ses- из имени
// файла результата.
func ExtractSubjectSession(filename string) (subject, session string) {
	for _, part := range strings.Split(filename, "_") {
		switch {
		case strings.HasPrefix(part, "sub-") && subject == "":
			subject = part
		case strings.HasPrefix(part, "ses-") && session == "":
			session = part
		}
	}
	return subject, session
}

// measureFromFilename возвращает вид измерения по суффиксу имени
// файла ("..._cord.csv").
func measureFromFilename(path string) (string, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), ".csv")
	idx := strings.LastIndex(stem, "_")
	if idx < 0 {
		return "", false
	}
	measure := stem[idx+1:]
	for _, m := range domain.Measures {
		if measure == m {
			return measure, true
		}
	}
	return "", false
}

// Levels возвращает все уровни таблицы в возрастающем порядке.
func (t *MethodTable) Levels() []int {
	seen := make(map[int]bool)
	for _, row := range t.Rows {
		for level := range row.Values {
			seen[level] = true
		}
	}
	levels := make([]int, 0, len(seen))
	for level := range seen {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	return levels
}

// WriteCSV пишет широкий pivot: одна строка на субъект, колонки
// subject_id, session_id и level<N> в числовом порядке уровней.
// Отсутствующее значение остаётся пустой ячейкой.
func (t *MethodTable) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary csv: %w", err)
	}
	defer f.Close()

	levels := t.Levels()
	w := csv.NewWriter(f)

	header := []string{"subject_id", "session_id"}
	for _, level := range levels {
		header = append(header, "level"+strconv.Itoa(level))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, row := range t.Rows {
		rec := []string{row.Subject, row.Session}
		for _, level := range levels {
			if value, ok := row.Values[level]; ok {
				rec = append(rec, strconv.FormatFloat(value, 'f', -1, 64))
			} else {
				rec = append(rec, "")
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// Summary считает среднее и стандартное отклонение по субъектам для
// каждого уровня.
func (t *MethodTable) Summary() []LevelSummary {
	levels := t.Levels()
	out := make([]LevelSummary, 0, len(levels))
	for _, level := range levels {
		var values []float64
		for _, row := range t.Rows {
			if value, ok := row.Values[level]; ok {
				values = append(values, value)
			}
		}
		out = append(out, LevelSummary{
			Level: level,
			N:     len(values),
			Mean:  stat.Mean(values, nil),
			Std:   stat.StdDev(values, nil),
		})
	}
	return out
}

// WriteSummaryCSV пишет описательную статистику таблицы.
func (t *MethodTable) WriteSummaryCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create stats csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"level", "n", "mean", "std"}); err != nil {
		return err
	}
	for _, s := range t.Summary() {
		rec := []string{
			strconv.Itoa(s.Level),
			strconv.Itoa(s.N),
			strconv.FormatFloat(s.Mean, 'f', -1, 64),
			strconv.FormatFloat(s.Std, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Run собирает дерево результатов и пишет в outDir по два файла на
// (метод, измерение): широкий pivot и статистику по уровням.
func Run(resultsDir, outDir string) error {
	tables, err := Collect(resultsDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create aggregation dir: %w", err)
	}

	for _, table := range tables {
		base := table.Key.Dir() + "_" + table.Measure
		if err := table.WriteCSV(filepath.Join(outDir, base+".csv")); err != nil {
			return err
		}
		if err := table.WriteSummaryCSV(filepath.Join(outDir, base+"_stats.csv")); err != nil {
			return err
		}
	}
	return nil
}
