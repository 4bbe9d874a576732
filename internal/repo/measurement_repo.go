package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"canalis/internal/domain"
)

// MeasurementRepo — репозиторий измерений по уровням.
//
// Схема:
//
//	measurements(id uuid pk, run_id uuid fk, method text, mode text,
//	             measure text, level int, value double precision)
type MeasurementRepo struct {
	pool *pgxpool.Pool
}

// NewMeasurementRepo создаёт репозиторий.
func NewMeasurementRepo(pool *pgxpool.Pool) *MeasurementRepo {
	return &MeasurementRepo{pool: pool}
}

// PublishResultSet сохраняет полный набор результатов метода для run.
// Вызывается пайплайном только после успешной публикации CSV, поэтому
// набор всегда полон.
func (r *MeasurementRepo) PublishResultSet(ctx context.Context, run *domain.SubjectRun, key domain.ResultKey, set *domain.ResultSet) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO measurements (id, run_id, method, mode, measure, level, value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, measure := range domain.Measures {
		table := set.Table(measure)
		if table == nil {
			return fmt.Errorf("result set %s: missing %s table", key.Dir(), measure)
		}
		for _, row := range table.Rows {
			_, err = tx.Exec(ctx, query,
				uuid.New(),
				run.ID,
				string(key.Method),
				nullString(string(key.Mode)),
				measure,
				row.Level,
				row.Value,
			)
			if err != nil {
				return fmt.Errorf("insert measurement %s/%s level %d: %w",
					key.Dir(), measure, row.Level, err)
			}
		}
	}
	return tx.Commit(ctx)
}
