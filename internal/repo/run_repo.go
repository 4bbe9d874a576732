package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"canalis/internal/domain"
)

// SubjectRunRepo — репозиторий субъектных runs.
//
// Схема:
//
//	subject_runs(id uuid pk, subject text, session text, contrast text,
//	             outcome text, image text, spineps_available bool,
//	             started_at timestamptz, finished_at timestamptz,
//	             error text, created_at timestamptz)
//	task_records(id uuid pk, run_id uuid fk, task_id text, kind text,
//	             status text, started_at timestamptz,
//	             finished_at timestamptz, error text)
type SubjectRunRepo struct {
	pool *pgxpool.Pool
}

// NewSubjectRunRepo создаёт репозиторий.
func NewSubjectRunRepo(pool *pgxpool.Pool) *SubjectRunRepo {
	return &SubjectRunRepo{pool: pool}
}

// SaveRun сохраняет финализированный run вместе с записями задач
// одной транзакцией.
func (r *SubjectRunRepo) SaveRun(ctx context.Context, run *domain.SubjectRun) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO subject_runs (id, subject, session, contrast, outcome, image,
		                          spineps_available, started_at, finished_at, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.Exec(ctx, query,
		run.ID,
		run.Subject,
		nullString(run.Session),
		run.Contrast,
		string(run.Outcome),
		nullString(run.Image),
		run.SPINEPSAvailable,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subject run: %w", err)
	}

	taskQuery := `
		INSERT INTO task_records (id, run_id, task_id, kind, status, started_at, finished_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, task := range run.Tasks {
		_, err = tx.Exec(ctx, taskQuery,
			task.ID,
			task.RunID,
			task.TaskID,
			string(task.Kind),
			string(task.Status),
			task.StartedAt,
			task.FinishedAt,
			nullString(task.Error),
		)
		if err != nil {
			return fmt.Errorf("insert task record %s: %w", task.TaskID, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID возвращает run по ID вместе с записями задач.
func (r *SubjectRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SubjectRun, error) {
	query := `
		SELECT id, subject, session, contrast, outcome, image,
		       spineps_available, started_at, finished_at, error, created_at
		FROM subject_runs
		WHERE id = $1
	`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	taskQuery := `
		SELECT id, run_id, task_id, kind, status, started_at, finished_at, error
		FROM task_records
		WHERE run_id = $1
	`
	rows, err := r.pool.Query(ctx, taskQuery, id)
	if err != nil {
		return nil, fmt.Errorf("query task records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		run.Tasks[task.TaskID] = task
	}
	return run, rows.Err()
}

// ListByOutcome возвращает runs с заданным исходом.
func (r *SubjectRunRepo) ListByOutcome(ctx context.Context, outcome domain.Outcome) ([]*domain.SubjectRun, error) {
	query := `
		SELECT id, subject, session, contrast, outcome, image,
		       spineps_available, started_at, finished_at, error, created_at
		FROM subject_runs
		WHERE outcome = $1
		ORDER BY subject, session
	`
	rows, err := r.pool.Query(ctx, query, string(outcome))
	if err != nil {
		return nil, fmt.Errorf("query subject runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.SubjectRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// scanner покрывает pgx.Row и pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.SubjectRun, error) {
	var run domain.SubjectRun
	var session, image, errText *string
	var outcome string

	err := row.Scan(
		&run.ID, &run.Subject, &session, &run.Contrast, &outcome, &image,
		&run.SPINEPSAvailable, &run.StartedAt, &run.FinishedAt, &errText, &run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subject run: %w", err)
	}

	run.Outcome = domain.Outcome(outcome)
	run.Session = deref(session)
	run.Image = deref(image)
	run.Error = deref(errText)
	run.Tasks = make(map[string]*domain.TaskRecord)
	return &run, nil
}

func scanTask(row scanner) (*domain.TaskRecord, error) {
	var task domain.TaskRecord
	var kind, status string
	var errText *string

	err := row.Scan(
		&task.ID, &task.RunID, &task.TaskID, &kind, &status,
		&task.StartedAt, &task.FinishedAt, &errText,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task record: %w", err)
	}
	task.Kind = domain.TaskKind(kind)
	task.Status = domain.TaskStatus(status)
	task.Error = deref(errText)
	return &task, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
