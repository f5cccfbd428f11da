package adapter

import (
	"context"
	"time"

	"poetry-pipeline/internal/domain/model"
)

// QueueCounts are broker job counts by state.
type QueueCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

type CancelResult int

const (
	CancelNotFound CancelResult = iota
	// CancelRemoved: the job was waiting or delayed and is gone from the broker.
	CancelRemoved
	// CancelFlagged: the job is active; the executor observes the flag between phases.
	CancelFlagged
)

// Broker is the submission and control side of the job queue.
type Broker interface {
	Add(ctx context.Context, jobID string, params model.JobParams) (string, error)
	Cancel(ctx context.Context, jobID string) (CancelResult, error)
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	Retry(ctx context.Context, jobID string) (bool, error)
	Counts(ctx context.Context) (QueueCounts, error)
	Obliterate(ctx context.Context) error
}

// Delivery is a job handed to one consumer.
type Delivery struct {
	JobID        string
	Params       model.JobParams
	AttemptsMade int
	MaxAttempts  int
}

type FailOutcome int

const (
	FailRetrying FailOutcome = iota
	FailTerminal
)

// BrokerConsumer is the worker side of the job queue.
type BrokerConsumer interface {
	// Fetch blocks up to timeout. It returns nil, nil when nothing arrived.
	Fetch(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Complete(ctx context.Context, jobID string) error
	// Fail schedules a retry with backoff unless retryable is false or attempts are exhausted.
	Fail(ctx context.Context, jobID, reason string, retryable bool) (FailOutcome, error)
	// Requeue hands an active delivery back after delay without spending an attempt.
	Requeue(ctx context.Context, jobID string, delay time.Duration) (bool, error)
	RecoverStalled(ctx context.Context, isLocked func(jobID string) bool) (int, error)
}
