package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
	"poetry-pipeline/internal/infra/logging"
	"poetry-pipeline/internal/infra/metrics"
	"poetry-pipeline/internal/usecase"
)

// Queue is the broker surface the processor consumes.
type Queue interface {
	adapter.BrokerConsumer
	usecase.CancelSignal
	Counts(ctx context.Context) (adapter.QueueCounts, error)
	LockKey(jobID string) string
}

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
	IsLocked(ctx context.Context, key string) (bool, error)
}

// Runner executes the phase sequence of one job.
type Runner interface {
	Run(ctx context.Context, job *model.Job, cancel usecase.CancelSignal) (*usecase.RunResult, error)
}

// JobProcessor pulls deliveries from the broker and runs each one on the
// pool, holding a per-job lock for the whole run.
type JobProcessor struct {
	queue   Queue
	locker  Locker
	jobs    repository.JobRepository
	runner  Runner
	lockTTL time.Duration
	poll    time.Duration
	log     *zerolog.Logger
}

func NewJobProcessor(
	queue Queue,
	locker Locker,
	jobs repository.JobRepository,
	runner Runner,
	lockTTL, poll time.Duration,
	logger *zerolog.Logger,
) *JobProcessor {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}
	l := logger.With().Str("component", "job_processor").Logger()
	return &JobProcessor{
		queue:   queue,
		locker:  locker,
		jobs:    jobs,
		runner:  runner,
		lockTTL: lockTTL,
		poll:    poll,
		log:     &l,
	}
}

// Recover moves active jobs without a live executor lock back to waiting.
func (p *JobProcessor) Recover(ctx context.Context) (int, error) {
	n, err := p.queue.RecoverStalled(ctx, func(jobID string) bool {
		held, err := p.locker.IsLocked(ctx, p.queue.LockKey(jobID))
		if err != nil {
			// unknown counts as held; a wrong requeue would run the job twice
			return true
		}
		return held
	})
	if n > 0 {
		p.log.Warn().Int("jobs", n).Msg("recovered stalled jobs")
	}
	return n, err
}

// Start recovers stalled jobs and then runs the fetch loop until ctx ends.
// It never has more deliveries in flight than the pool has workers.
// This should be run in a goroutine.
func (p *JobProcessor) Start(ctx context.Context, pool *Pool) {
	if _, err := p.Recover(ctx); err != nil {
		p.log.Error().Err(err).Msg("stalled job recovery failed")
	}
	p.log.Info().Int("concurrency", pool.Size()).Msg("job processor started")

	slots := make(chan struct{}, pool.Size())
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("job processor stopping")
			return
		case slots <- struct{}{}:
		}

		d, err := p.queue.Fetch(ctx, p.poll)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				continue
			}
			p.log.Error().Err(err).Msg("fetch job")
			select {
			case <-ctx.Done():
			case <-time.After(p.poll):
			}
			continue
		}
		if d == nil {
			<-slots
			continue
		}

		delivery := d
		if err := pool.Submit(func(ctx context.Context) error {
			defer func() { <-slots }()
			p.Process(ctx, delivery)
			return nil
		}); err != nil {
			<-slots
			p.log.Error().Err(err).Str("job_id", d.JobID).Msg("submit to pool")
			_, _ = p.queue.Fail(context.Background(), d.JobID, err.Error(), true)
		}
	}
}

// Process runs one delivery to a broker outcome: complete, retry or fail.
func (p *JobProcessor) Process(ctx context.Context, d *adapter.Delivery) {
	ctx = logging.WithJobID(ctx, d.JobID)
	l := logging.With(ctx, p.log).With().Int("attempt", d.AttemptsMade).Logger()
	defer logging.TraceDuration(&l, "JobProcessor.Process")()
	lockKey := p.queue.LockKey(d.JobID)

	token, err := p.locker.TryLock(ctx, lockKey, p.lockTTL)
	if err != nil {
		l.Warn().Err(err).Msg("job is locked by another executor, handing it back")
		if _, err := p.queue.Requeue(context.Background(), d.JobID, p.relockDelay()); err != nil {
			l.Error().Err(err).Msg("requeue locked job")
		}
		return
	}
	defer func() {
		if err := p.locker.Unlock(context.Background(), lockKey, token); err != nil {
			l.Error().Err(err).Msg("unlock job")
		}
	}()

	job, err := p.jobs.FindByID(ctx, repository.NoTX, d.JobID)
	if err != nil {
		l.Error().Err(err).Msg("load job record")
		_, _ = p.queue.Fail(context.Background(), d.JobID, "load job: "+err.Error(), !errors.Is(err, domain.ErrNotFound))
		return
	}
	if job.Status == model.JobStatusCompleted {
		l.Info().Msg("job already completed, acknowledging")
		_ = p.queue.Complete(context.Background(), d.JobID)
		return
	}

	now := time.Now()
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.Attempts = d.AttemptsMade
	job.ErrorMessage = ""
	job.CompletedAt = nil
	job.UpdatedAt = now
	if err := p.jobs.Save(ctx, repository.NoTX, job); err != nil {
		l.Error().Err(err).Msg("mark job started")
		_, _ = p.queue.Fail(context.Background(), d.JobID, "mark started: "+err.Error(), true)
		return
	}

	runCtx, stopRefresh := context.WithCancel(ctx)
	go p.keepLock(runCtx, lockKey, token, &l)

	l.Info().Str("mode", string(job.Params.AcquisitionMode)).Str("language", string(job.Params.Language)).Msg("processing job")
	start := time.Now()
	res, runErr := p.runner.Run(runCtx, job, p.queue)
	stopRefresh()

	p.finish(ctx, job, res, runErr, time.Since(start), &l)
	p.refreshDepth(context.Background())
}

// relockDelay spaces out redeliveries of a job another executor still holds.
func (p *JobProcessor) relockDelay() time.Duration {
	if d := p.lockTTL / 3; d < 15*p.poll {
		return d
	}
	return 15 * p.poll
}

func (p *JobProcessor) finish(ctx context.Context, job *model.Job, res *usecase.RunResult, runErr error, took time.Duration, l *zerolog.Logger) {
	bg := context.Background()

	switch {
	case runErr == nil:
		if err := p.queue.Complete(bg, job.ID); err != nil {
			l.Error().Err(err).Msg("ack completed job")
		}
		metrics.IncJob("completed")
		l.Info().Dur("duration", took).Float64("cost_usd", res.TotalCost).Str("slug", res.Slug).Msg("job completed")

	case errors.Is(runErr, domain.ErrJobCancelled):
		p.markFailed(bg, job, usecase.CancelledMessage, l)
		if _, err := p.queue.Fail(bg, job.ID, usecase.CancelledMessage, false); err != nil {
			l.Error().Err(err).Msg("ack cancelled job")
		}
		metrics.IncJob("cancelled")
		l.Info().Str("phase", job.CurrentPhase).Msg("job cancelled")

	case ctx.Err() != nil:
		// shutdown; the unlocked job is recovered as stalled on next start
		l.Warn().Err(runErr).Str("phase", job.CurrentPhase).Msg("job interrupted by shutdown")

	default:
		phase := job.CurrentPhase
		outcome, err := p.queue.Fail(bg, job.ID, runErr.Error(), retryable(runErr))
		if err != nil {
			l.Error().Err(err).Msg("report job failure to broker")
		}
		if outcome == adapter.FailRetrying {
			job.Status = model.JobStatusQueued
			job.CurrentPhase = string(model.JobStatusQueued)
			job.ErrorMessage = runErr.Error()
			job.UpdatedAt = time.Now()
			if err := p.jobs.Save(bg, repository.NoTX, job); err != nil {
				l.Error().Err(err).Msg("save retrying job")
			}
			metrics.IncJob("retrying")
			l.Warn().Err(runErr).Str("phase", phase).Msg("job failed, retry scheduled")
			return
		}
		p.markFailed(bg, job, runErr.Error(), l)
		metrics.IncJob("failed")
		l.Error().Err(runErr).Str("phase", phase).Dur("duration", took).Msg("job failed")
	}
}

func (p *JobProcessor) markFailed(ctx context.Context, job *model.Job, msg string, l *zerolog.Logger) {
	now := time.Now()
	job.Status = model.JobStatusFailed
	job.ErrorMessage = msg
	job.CompletedAt = &now
	job.UpdatedAt = now
	if err := p.jobs.Save(ctx, repository.NoTX, job); err != nil {
		l.Error().Err(err).Msg("save failed job")
	}
}

func (p *JobProcessor) keepLock(ctx context.Context, key, token string, l *zerolog.Logger) {
	t := time.NewTicker(p.lockTTL / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ok, err := p.locker.Refresh(ctx, key, token, p.lockTTL)
			if err != nil && ctx.Err() == nil {
				l.Warn().Err(err).Msg("refresh job lock")
			} else if err == nil && !ok {
				l.Error().Msg("job lock lost")
			}
		}
	}
}

func (p *JobProcessor) refreshDepth(ctx context.Context) {
	c, err := p.queue.Counts(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("queue counts")
		return
	}
	metrics.SetQueueDepth(c.Waiting, c.Active, c.Completed, c.Failed, c.Delayed)
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	return !errors.Is(err, domain.ErrInvalidArgument)
}
