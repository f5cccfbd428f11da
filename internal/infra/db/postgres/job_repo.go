package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/repository"
)

var (
	_ repository.JobRepository       = (*jobRepo)(nil)
	_ repository.ActionLogRepository = (*actionLogRepo)(nil)
)

const jobColumns = `id, status, current_phase, progress, total_cost, params, poem_id,
       error_message, broker_ref, attempts, created_at, started_at, completed_at, updated_at`

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("encode job params: %w", err)
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO jobs (id, status, current_phase, progress, total_cost, params, poem_id,
                  error_message, broker_ref, attempts, created_at, started_at, completed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  current_phase = EXCLUDED.current_phase,
  progress = EXCLUDED.progress,
  total_cost = EXCLUDED.total_cost,
  poem_id = EXCLUDED.poem_id,
  error_message = EXCLUDED.error_message,
  broker_ref = EXCLUDED.broker_ref,
  attempts = EXCLUDED.attempts,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.Status, job.CurrentPhase, job.Progress, job.TotalCost, params, nullable(job.PoemID),
		job.ErrorMessage, job.BrokerRef, job.Attempts, job.CreatedAt, job.StartedAt, job.CompletedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) UpdateProgress(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, phase string, progress int, cost float64) error {
	const q = `
UPDATE jobs SET status = $2, current_phase = $3, progress = $4, total_cost = $5, updated_at = NOW()
WHERE id = $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, phase, progress, cost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) List(ctx context.Context, tx repository.Tx, limit int) ([]*model.Job, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		j      model.Job
		params []byte
		poemID *string
		status string
	)
	err := row.Scan(&j.ID, &status, &j.CurrentPhase, &j.Progress, &j.TotalCost, &params, &poemID,
		&j.ErrorMessage, &j.BrokerRef, &j.Attempts, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	j.Status = model.JobStatus(status)
	if poemID != nil {
		j.PoemID = *poemID
	}
	if err := json.Unmarshal(params, &j.Params); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &j, nil
}

type actionLogRepo struct {
	pool *pgxpool.Pool
}

func NewActionLogRepo(pool *pgxpool.Pool) *actionLogRepo {
	return &actionLogRepo{pool: pool}
}

func (r *actionLogRepo) Append(ctx context.Context, tx repository.Tx, e *model.ActionLog) error {
	in, err := json.Marshal(e.Input)
	if err != nil {
		return fmt.Errorf("encode action input: %w", err)
	}
	out, err := json.Marshal(e.Output)
	if err != nil {
		return fmt.Errorf("encode action output: %w", err)
	}
	const q = `
INSERT INTO action_logs (id, job_id, phase, action, input, output, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`
	_, err = execSQL(ctx, r.pool, tx, q, e.ID, e.JobID, e.Phase, e.Action, in, out, e.CreatedAt)
	return err
}

func (r *actionLogRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string, limit int) ([]*model.ActionLog, error) {
	q, args, err := psql.
		Select("id", "job_id", "phase", "action", "input", "output", "created_at").
		From("action_logs").
		Where("job_id = ?", jobID).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ActionLog
	for rows.Next() {
		var (
			e       model.ActionLog
			in, res []byte
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.Phase, &e.Action, &in, &res, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if err := json.Unmarshal(in, &e.Input); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if err := json.Unmarshal(res, &e.Output); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
