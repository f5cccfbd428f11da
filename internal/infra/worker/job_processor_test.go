package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
	"poetry-pipeline/internal/usecase"
)

type fakeQueue struct {
	mu         sync.Mutex
	deliveries []*adapter.Delivery
	completed  []string
	failed     map[string]bool // id -> retryable
	outcome    adapter.FailOutcome
	cancelled  map[string]bool
	active     []string
	requeued   map[string]time.Duration
}

func newFakeQueue(ds ...*adapter.Delivery) *fakeQueue {
	return &fakeQueue{deliveries: ds, failed: map[string]bool{}, cancelled: map[string]bool{}, requeued: map[string]time.Duration{}, outcome: adapter.FailTerminal}
}

func (q *fakeQueue) Fetch(ctx context.Context, timeout time.Duration) (*adapter.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.deliveries) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}
	d := q.deliveries[0]
	q.deliveries = q.deliveries[1:]
	return d, nil
}

func (q *fakeQueue) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *fakeQueue) Fail(ctx context.Context, jobID, reason string, retryable bool) (adapter.FailOutcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[jobID] = retryable
	if !retryable {
		return adapter.FailTerminal, nil
	}
	return q.outcome, nil
}

func (q *fakeQueue) Requeue(ctx context.Context, jobID string, delay time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requeued[jobID] = delay
	return true, nil
}

func (q *fakeQueue) RecoverStalled(ctx context.Context, isLocked func(string) bool) (int, error) {
	n := 0
	for _, id := range q.active {
		if !isLocked(id) {
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[jobID], nil
}

func (q *fakeQueue) Counts(ctx context.Context) (adapter.QueueCounts, error) {
	return adapter.QueueCounts{}, nil
}

func (q *fakeQueue) LockKey(jobID string) string { return "lock:" + jobID }

func (q *fakeQueue) completedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.completed)
}

type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]string
	taken []string
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]string{}} }

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", errors.New("locked")
	}
	l.held[key] = "tok-" + key
	l.taken = append(l.taken, key)
	return l.held[key], nil
}

func (l *fakeLocker) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key] == token, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *fakeLocker) IsLocked(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok, nil
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newMemJobs(jobs ...*model.Job) *memJobs {
	m := &memJobs{jobs: map[string]*model.Job{}}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobs) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) UpdateProgress(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, phase string, progress int, cost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status, j.CurrentPhase, j.Progress, j.TotalCost = status, phase, progress, cost
	return nil
}

func (m *memJobs) List(ctx context.Context, tx repository.Tx, limit int) ([]*model.Job, error) {
	return nil, nil
}

type fakeRunner struct {
	mu    sync.Mutex
	err   error
	runs  int
	block chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, job *model.Job, cancel usecase.CancelSignal) (*usecase.RunResult, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &usecase.RunResult{PoemID: "p1", Slug: "quiet-hours", TotalCost: 0.05}, nil
}

func queuedJob(t *testing.T) *model.Job {
	t.Helper()
	j, err := model.NewJob(model.JobParams{Topic: "rain"})
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func newTestProcessor(q *fakeQueue, l *fakeLocker, jobs *memJobs, r Runner) *JobProcessor {
	nop := zerolog.Nop()
	return NewJobProcessor(q, l, jobs, r, time.Minute, 10*time.Millisecond, &nop)
}

func TestProcess_Success(t *testing.T) {
	job := queuedJob(t)
	q := newFakeQueue()
	locks := newFakeLocker()
	jobs := newMemJobs(job)
	p := newTestProcessor(q, locks, jobs, &fakeRunner{})

	p.Process(context.Background(), &adapter.Delivery{JobID: job.ID, AttemptsMade: 1, MaxAttempts: 3})

	if q.completedCount() != 1 {
		t.Fatalf("completed = %v", q.completed)
	}
	got, _ := jobs.FindByID(context.Background(), nil, job.ID)
	if got.StartedAt == nil || got.Attempts != 1 {
		t.Fatalf("job not marked started: %+v", got)
	}
	if held, _ := locks.IsLocked(context.Background(), "lock:"+job.ID); held {
		t.Fatal("lock not released")
	}
}

func TestProcess_RetryableFailureRequeues(t *testing.T) {
	job := queuedJob(t)
	q := newFakeQueue()
	q.outcome = adapter.FailRetrying
	jobs := newMemJobs(job)
	p := newTestProcessor(q, newFakeLocker(), jobs, &fakeRunner{err: errors.New("provider down")})

	p.Process(context.Background(), &adapter.Delivery{JobID: job.ID, AttemptsMade: 1, MaxAttempts: 3})

	if retry, ok := q.failed[job.ID]; !ok || !retry {
		t.Fatalf("failed = %v", q.failed)
	}
	got, _ := jobs.FindByID(context.Background(), nil, job.ID)
	if got.Status != model.JobStatusQueued || got.ErrorMessage != "provider down" {
		t.Fatalf("job = %s %q", got.Status, got.ErrorMessage)
	}
	if got.CompletedAt != nil {
		t.Fatal("retrying job has CompletedAt")
	}
}

func TestProcess_TerminalFailure(t *testing.T) {
	job := queuedJob(t)
	q := newFakeQueue()
	jobs := newMemJobs(job)
	p := newTestProcessor(q, newFakeLocker(), jobs, &fakeRunner{err: domain.ErrNoArtifact})

	p.Process(context.Background(), &adapter.Delivery{JobID: job.ID, AttemptsMade: 3, MaxAttempts: 3})

	got, _ := jobs.FindByID(context.Background(), nil, job.ID)
	if got.Status != model.JobStatusFailed || got.CompletedAt == nil {
		t.Fatalf("job = %+v", got)
	}
	if got.ErrorMessage != domain.ErrNoArtifact.Error() {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
}

func TestProcess_Cancelled(t *testing.T) {
	job := queuedJob(t)
	q := newFakeQueue()
	q.outcome = adapter.FailRetrying
	jobs := newMemJobs(job)
	p := newTestProcessor(q, newFakeLocker(), jobs, &fakeRunner{err: domain.ErrJobCancelled})

	p.Process(context.Background(), &adapter.Delivery{JobID: job.ID, AttemptsMade: 1, MaxAttempts: 3})

	if retry := q.failed[job.ID]; retry {
		t.Fatal("cancelled job reported as retryable")
	}
	got, _ := jobs.FindByID(context.Background(), nil, job.ID)
	if got.Status != model.JobStatusFailed || got.ErrorMessage != usecase.CancelledMessage {
		t.Fatalf("job = %s %q", got.Status, got.ErrorMessage)
	}
}

func TestProcess_LockedElsewhereIsRequeued(t *testing.T) {
	job := queuedJob(t)
	q := newFakeQueue()
	locks := newFakeLocker()
	locks.held["lock:"+job.ID] = "other"
	r := &fakeRunner{}
	p := newTestProcessor(q, locks, newMemJobs(job), r)

	p.Process(context.Background(), &adapter.Delivery{JobID: job.ID, AttemptsMade: 1})

	if r.runs != 0 {
		t.Fatal("runner ran while another executor held the lock")
	}
	if len(q.failed) != 0 || q.completedCount() != 0 {
		t.Fatal("a locked job must be neither failed nor completed")
	}
	if d, ok := q.requeued[job.ID]; !ok || d <= 0 {
		t.Fatalf("locked job should go back to the broker with a delay, requeued = %v", q.requeued)
	}
}

func TestProcess_MissingRecordFailsTerminally(t *testing.T) {
	q := newFakeQueue()
	p := newTestProcessor(q, newFakeLocker(), newMemJobs(), &fakeRunner{})

	p.Process(context.Background(), &adapter.Delivery{JobID: "ghost", AttemptsMade: 1})

	if retry, ok := q.failed["ghost"]; !ok || retry {
		t.Fatalf("failed = %v", q.failed)
	}
}

func TestProcess_AlreadyCompletedIsAcked(t *testing.T) {
	job := queuedJob(t)
	job.Status = model.JobStatusCompleted
	q := newFakeQueue()
	r := &fakeRunner{}
	p := newTestProcessor(q, newFakeLocker(), newMemJobs(job), r)

	p.Process(context.Background(), &adapter.Delivery{JobID: job.ID, AttemptsMade: 2})

	if r.runs != 0 || q.completedCount() != 1 {
		t.Fatalf("runs = %d, completed = %v", r.runs, q.completed)
	}
}

func TestProcess_ShutdownLeavesJobForRecovery(t *testing.T) {
	job := queuedJob(t)
	q := newFakeQueue()
	locks := newFakeLocker()
	r := &fakeRunner{block: make(chan struct{})}
	p := newTestProcessor(q, locks, newMemJobs(job), r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Process(ctx, &adapter.Delivery{JobID: job.ID, AttemptsMade: 1})
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if len(q.failed) != 0 || q.completedCount() != 0 {
		t.Fatal("interrupted job was acknowledged")
	}
	if held, _ := locks.IsLocked(context.Background(), "lock:"+job.ID); held {
		t.Fatal("interrupted job kept its lock")
	}
}

func TestRecover_SkipsLockedJobs(t *testing.T) {
	q := newFakeQueue()
	q.active = []string{"a", "b", "c"}
	locks := newFakeLocker()
	locks.held["lock:b"] = "x"
	p := newTestProcessor(q, locks, newMemJobs(), &fakeRunner{})

	n, err := p.Recover(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
}

func TestStart_DrainsQueue(t *testing.T) {
	j1, j2 := queuedJob(t), queuedJob(t)
	q := newFakeQueue(
		&adapter.Delivery{JobID: j1.ID, AttemptsMade: 1},
		&adapter.Delivery{JobID: j2.ID, AttemptsMade: 1},
	)
	nop := zerolog.Nop()
	pool := NewPool(2, &nop)
	p := newTestProcessor(q, newFakeLocker(), newMemJobs(j1, j2), &fakeRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	go p.Start(ctx, pool)

	deadline := time.Now().Add(2 * time.Second)
	for q.completedCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	pool.Stop()

	if q.completedCount() != 2 {
		t.Fatalf("completed = %d, want 2", q.completedCount())
	}
}
