package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
)

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

// CancelledMessage is stored on jobs removed from the queue before they ran.
const CancelledMessage = "cancelled"

type JobUseCase interface {
	Submit(ctx context.Context, params model.JobParams) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, limit int) ([]*model.Job, error)
	Logs(ctx context.Context, id string, limit int) ([]*model.ActionLog, error)
	Status(ctx context.Context) (adapter.QueueCounts, error)
	// Cancel removes a waiting job or flags a running one. It reports whether anything was cancelled.
	Cancel(ctx context.Context, id string) (bool, error)
	// Retry re-queues a FAILED job.
	Retry(ctx context.Context, id string) (bool, error)
	// Purge clears every job record from the broker. Job rows are kept.
	Purge(ctx context.Context) error
}

type jobUC struct {
	jobs   repository.JobRepository
	logs   repository.ActionLogRepository
	broker adapter.Broker
	log    *zerolog.Logger
}

func NewJobUseCase(jobs repository.JobRepository, logs repository.ActionLogRepository, broker adapter.Broker, logger *zerolog.Logger) *jobUC {
	return &jobUC{jobs: jobs, logs: logs, broker: broker, log: logger}
}

func (u *jobUC) Submit(ctx context.Context, params model.JobParams) (*model.Job, error) {
	job, err := model.NewJob(params)
	if err != nil {
		return nil, err
	}
	// the row exists before a worker can fetch the job
	if err := u.jobs.Save(ctx, repository.NoTX, job); err != nil {
		return nil, err
	}
	ref, err := u.broker.Add(ctx, job.ID, job.Params)
	if err != nil {
		now := time.Now()
		job.Status = model.JobStatusFailed
		job.ErrorMessage = fmt.Sprintf("enqueue: %v", err)
		job.CompletedAt = &now
		if saveErr := u.jobs.Save(ctx, repository.NoTX, job); saveErr != nil {
			u.log.Error().Err(saveErr).Str("job_id", job.ID).Msg("mark unqueued job failed")
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	job.BrokerRef = ref
	if err := u.jobs.Save(ctx, repository.NoTX, job); err != nil {
		return nil, err
	}
	u.log.Info().Str("job_id", job.ID).Str("mode", string(job.Params.AcquisitionMode)).
		Str("language", string(job.Params.Language)).Str("topic", job.Params.Topic).Msg("job submitted")
	return job, nil
}

func (u *jobUC) Get(ctx context.Context, id string) (*model.Job, error) {
	return u.jobs.FindByID(ctx, repository.NoTX, id)
}

func (u *jobUC) List(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.jobs.List(ctx, repository.NoTX, limit)
}

func (u *jobUC) Logs(ctx context.Context, id string, limit int) ([]*model.ActionLog, error) {
	if _, err := u.jobs.FindByID(ctx, repository.NoTX, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return u.logs.ListByJob(ctx, repository.NoTX, id, limit)
}

func (u *jobUC) Status(ctx context.Context) (adapter.QueueCounts, error) {
	return u.broker.Counts(ctx)
}

func (u *jobUC) Cancel(ctx context.Context, id string) (bool, error) {
	job, err := u.jobs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return false, err
	}
	if job.Status.IsTerminal() {
		return false, nil
	}
	res, err := u.broker.Cancel(ctx, id)
	if err != nil {
		return false, err
	}
	switch res {
	case adapter.CancelRemoved:
		now := time.Now()
		job.Status = model.JobStatusFailed
		job.ErrorMessage = CancelledMessage
		job.CompletedAt = &now
		job.UpdatedAt = now
		if err := u.jobs.Save(ctx, repository.NoTX, job); err != nil {
			return true, err
		}
		u.log.Info().Str("job_id", id).Msg("queued job cancelled")
		return true, nil
	case adapter.CancelFlagged:
		u.log.Info().Str("job_id", id).Msg("cancel requested for running job")
		return true, nil
	default:
		return false, nil
	}
}

func (u *jobUC) Retry(ctx context.Context, id string) (bool, error) {
	job, err := u.jobs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return false, err
	}
	if job.Status != model.JobStatusFailed {
		return false, nil
	}
	ok, err := u.broker.Retry(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		// cancelled or purged jobs are no longer known to the broker
		ref, err := u.broker.Add(ctx, id, job.Params)
		if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return false, err
		}
		if ref != "" {
			job.BrokerRef = ref
		}
	}
	job.Status = model.JobStatusQueued
	job.CurrentPhase = string(model.JobStatusQueued)
	job.Progress = 0
	job.ErrorMessage = ""
	job.CompletedAt = nil
	job.UpdatedAt = time.Now()
	if err := u.jobs.Save(ctx, repository.NoTX, job); err != nil {
		return true, err
	}
	u.log.Info().Str("job_id", id).Msg("job re-queued")
	return true, nil
}

func (u *jobUC) Purge(ctx context.Context) error {
	if err := u.broker.Obliterate(ctx); err != nil {
		return err
	}
	u.log.Warn().Msg("broker obliterated")
	return nil
}
