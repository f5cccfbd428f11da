package repository

import (
	"context"

	"poetry-pipeline/internal/domain/model"
)

type JobRepository interface {
	// Save upserts the whole job row.
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// UpdateProgress writes status, phase, progress and cost in one statement.
	UpdateProgress(ctx context.Context, tx Tx, id string, status model.JobStatus, phase string, progress int, cost float64) error
	List(ctx context.Context, tx Tx, limit int) ([]*model.Job, error)
}

// ActionLogRepository is append-only.
type ActionLogRepository interface {
	Append(ctx context.Context, tx Tx, entry *model.ActionLog) error
	ListByJob(ctx context.Context, tx Tx, jobID string, limit int) ([]*model.ActionLog, error)
}
