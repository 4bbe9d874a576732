package tools

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"canalis/internal/domain"
)

// Атрибуты CSV-таблиц измерений.
const (
	// LevelColumn — колонка позвоночного уровня.
	LevelColumn = "VertLevel"

	// AreaColumn — колонка средней площади сечения по уровню.
	AreaColumn = "MEAN(area)"
)

// ReadLevelTable читает таблицу уровень/значение из CSV.
// Первая колонка — VertLevel, вторая — значение (имя берётся из
// заголовка). Лишние колонки игнорируются.
func ReadLevelTable(path Ref) (*domain.LevelTable, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return nil, fmt.Errorf("open level table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse level table %s: %w", path, err)
	}
	if len(records) < 1 || len(records[0]) < 2 {
		return nil, fmt.Errorf("level table %s: missing header", path)
	}
	if records[0][0] != LevelColumn {
		return nil, fmt.Errorf("level table %s: first column is %q, want %q", path, records[0][0], LevelColumn)
	}

	table := &domain.LevelTable{Column: records[0][1]}
	for i, rec := range records[1:] {
		level, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("level table %s row %d: bad level %q", path, i+1, rec[0])
		}
		value, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("level table %s row %d: bad value %q", path, i+1, rec[1])
		}
		table.Rows = append(table.Rows, domain.LevelRow{Level: level, Value: value})
	}
	return table, nil
}

// WriteLevelTable пишет таблицу уровень/значение в CSV.
func WriteLevelTable(t *domain.LevelTable, path Ref) error {
	f, err := os.Create(string(path))
	if err != nil {
		return fmt.Errorf("create level table: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{LevelColumn, t.Column}); err != nil {
		return fmt.Errorf("write level table header: %w", err)
	}
	for _, row := range t.Rows {
		rec := []string{strconv.Itoa(row.Level), strconv.FormatFloat(row.Value, 'f', -1, 64)}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write level table row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush level table: %w", err)
	}
	return nil
}
