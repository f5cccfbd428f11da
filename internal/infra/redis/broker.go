package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
)

var (
	_ adapter.Broker         = (*Broker)(nil)
	_ adapter.BrokerConsumer = (*Broker)(nil)
)

type BrokerOptions struct {
	Queue         string
	Attempts      int
	Backoff       time.Duration
	KeepCompleted int
	KeepFailed    int
	// CancelTTL bounds how long a cancel flag for an active job survives.
	CancelTTL time.Duration
}

// Broker is a Redis job queue. Every job has a hash holding its payload and
// state; its id moves between the wait and active lists and the delayed,
// completed and failed sorted sets. State transitions are Lua scripts so
// that a job is never in two places at once.
type Broker struct {
	cli    *redis.Client
	opts   BrokerOptions
	prefix string
	log    *zerolog.Logger
}

func NewBroker(c *Client, opts BrokerOptions, logger *zerolog.Logger) *Broker {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 5 * time.Second
	}
	if opts.KeepCompleted <= 0 {
		opts.KeepCompleted = 100
	}
	if opts.KeepFailed <= 0 {
		opts.KeepFailed = 200
	}
	if opts.CancelTTL <= 0 {
		opts.CancelTTL = time.Hour
	}
	return &Broker{
		cli:    c.cli,
		opts:   opts,
		prefix: "pq:" + opts.Queue + ":",
		log:    logger,
	}
}

func (b *Broker) key(s string) string        { return b.prefix + s }
func (b *Broker) jobKey(id string) string    { return b.prefix + "job:" + id }
func (b *Broker) cancelKey(id string) string { return b.prefix + "cancel:" + id }

// LockKey is the executor lock key for a job.
func (b *Broker) LockKey(jobID string) string { return b.prefix + "lock:" + jobID }

func nowMillis() int64 { return time.Now().UnixMilli() }

// KEYS: job hash, wait, ids. ARGV: id, data, maxAttempts, now.
var luaAdd = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "data", ARGV[2], "state", "waiting", "attemptsMade", 0,
	"maxAttempts", ARGV[3], "failedReason", "", "timestamp", ARGV[4])
redis.call("SADD", KEYS[3], ARGV[1])
redis.call("LPUSH", KEYS[2], ARGV[1])
return 1`)

// Add enqueues a job under the caller's id; the id is also the broker reference.
func (b *Broker) Add(ctx context.Context, jobID string, params model.JobParams) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode job params: %w", err)
	}
	n, err := luaAdd.Run(ctx, b.cli,
		[]string{b.jobKey(jobID), b.key("wait"), b.key("ids")},
		jobID, data, b.opts.Attempts, nowMillis(),
	).Int()
	if err != nil {
		return "", fmt.Errorf("add job %s: %w", jobID, err)
	}
	if n == 0 {
		return "", fmt.Errorf("job %s: %w", jobID, domain.ErrAlreadyExists)
	}
	return jobID, nil
}

// KEYS: delayed, wait, prefix. ARGV: now.
var luaPromote = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 100)
for _, id in ipairs(ids) do
	redis.call("ZREM", KEYS[1], id)
	redis.call("HSET", KEYS[3] .. "job:" .. id, "state", "waiting")
	redis.call("LPUSH", KEYS[2], id)
end
return #ids`)

// KEYS: job hash, active. ARGV: id, now.
var luaActivate = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	redis.call("LREM", KEYS[2], 0, ARGV[1])
	return false
end
redis.call("HSET", KEYS[1], "state", "active", "processedOn", ARGV[2])
local attempts = redis.call("HINCRBY", KEYS[1], "attemptsMade", 1)
local vals = redis.call("HMGET", KEYS[1], "data", "maxAttempts")
return {vals[1], attempts, vals[2]}`)

// Fetch moves the next waiting job to active. Due delayed jobs are promoted first.
func (b *Broker) Fetch(ctx context.Context, timeout time.Duration) (*adapter.Delivery, error) {
	if _, err := luaPromote.Run(ctx, b.cli,
		[]string{b.key("delayed"), b.key("wait"), b.prefix}, nowMillis()).Result(); err != nil {
		return nil, fmt.Errorf("promote delayed: %w", err)
	}

	id, err := b.cli.BRPopLPush(ctx, b.key("wait"), b.key("active"), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}

	res, err := luaActivate.Run(ctx, b.cli,
		[]string{b.jobKey(id), b.key("active")}, id, nowMillis()).Slice()
	if errors.Is(err, redis.Nil) {
		// removed between pop and activate
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("activate job %s: %w", id, err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("activate job %s: unexpected reply %v", id, res)
	}

	d := &adapter.Delivery{JobID: id}
	raw, _ := res[0].(string)
	if err := json.Unmarshal([]byte(raw), &d.Params); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	d.AttemptsMade = toInt(res[1])
	d.MaxAttempts = toInt(res[2])
	return d, nil
}

// KEYS: job hash, active, completed, prefix, ids. ARGV: id, now, keep.
var luaComplete = redis.NewScript(`
redis.call("LREM", KEYS[2], 0, ARGV[1])
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "state", "completed", "finishedOn", ARGV[2])
redis.call("ZADD", KEYS[3], ARGV[2], ARGV[1])
local keep = tonumber(ARGV[3])
local n = redis.call("ZCARD", KEYS[3])
if n > keep then
	local old = redis.call("ZRANGE", KEYS[3], 0, n - keep - 1)
	for _, id in ipairs(old) do
		redis.call("DEL", KEYS[4] .. "job:" .. id)
		redis.call("SREM", KEYS[5], id)
	end
	redis.call("ZREMRANGEBYRANK", KEYS[3], 0, n - keep - 1)
end
return 1`)

func (b *Broker) Complete(ctx context.Context, jobID string) error {
	_, err := luaComplete.Run(ctx, b.cli,
		[]string{b.jobKey(jobID), b.key("active"), b.key("completed"), b.prefix, b.key("ids")},
		jobID, nowMillis(), b.opts.KeepCompleted,
	).Result()
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	b.cli.Del(ctx, b.cancelKey(jobID))
	return nil
}

// KEYS: job hash, active, delayed, failed, prefix, ids.
// ARGV: id, reason, retryable, now, backoffMs, keep.
// Returns 0 when a retry was scheduled, 1 when the job failed for good.
var luaFail = redis.NewScript(`
redis.call("LREM", KEYS[2], 0, ARGV[1])
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 1
end
local attempts = tonumber(redis.call("HGET", KEYS[1], "attemptsMade") or "0")
local max = tonumber(redis.call("HGET", KEYS[1], "maxAttempts") or "1")
local now = tonumber(ARGV[4])
redis.call("HSET", KEYS[1], "failedReason", ARGV[2])
if ARGV[3] == "1" and attempts < max then
	local delay = tonumber(ARGV[5]) * (2 ^ (attempts - 1))
	redis.call("HSET", KEYS[1], "state", "delayed")
	redis.call("ZADD", KEYS[3], now + delay, ARGV[1])
	return 0
end
redis.call("HSET", KEYS[1], "state", "failed", "finishedOn", ARGV[4])
redis.call("ZADD", KEYS[4], now, ARGV[1])
local keep = tonumber(ARGV[6])
local n = redis.call("ZCARD", KEYS[4])
if n > keep then
	local old = redis.call("ZRANGE", KEYS[4], 0, n - keep - 1)
	for _, id in ipairs(old) do
		redis.call("DEL", KEYS[5] .. "job:" .. id)
		redis.call("SREM", KEYS[6], id)
	end
	redis.call("ZREMRANGEBYRANK", KEYS[4], 0, n - keep - 1)
end
return 1`)

func (b *Broker) Fail(ctx context.Context, jobID, reason string, retryable bool) (adapter.FailOutcome, error) {
	flag := "0"
	if retryable {
		flag = "1"
	}
	n, err := luaFail.Run(ctx, b.cli,
		[]string{b.jobKey(jobID), b.key("active"), b.key("delayed"), b.key("failed"), b.prefix, b.key("ids")},
		jobID, reason, flag, nowMillis(), b.opts.Backoff.Milliseconds(), b.opts.KeepFailed,
	).Int()
	if err != nil {
		return adapter.FailTerminal, fmt.Errorf("fail job %s: %w", jobID, err)
	}
	if n == 0 {
		return adapter.FailRetrying, nil
	}
	b.cli.Del(ctx, b.cancelKey(jobID))
	return adapter.FailTerminal, nil
}

// KEYS: job hash, active, delayed. ARGV: id, runAt.
var luaRequeue = redis.NewScript(`
if redis.call("LREM", KEYS[2], 0, ARGV[1]) == 0 then
	return 0
end
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
local attempts = tonumber(redis.call("HGET", KEYS[1], "attemptsMade") or "0")
if attempts > 0 then
	redis.call("HSET", KEYS[1], "attemptsMade", attempts - 1)
end
redis.call("HSET", KEYS[1], "state", "delayed")
redis.call("ZADD", KEYS[3], ARGV[2], ARGV[1])
return 1`)

// Requeue moves an active job to the delayed set and gives back the attempt
// Fetch charged for it. It reports false when the job is no longer active.
func (b *Broker) Requeue(ctx context.Context, jobID string, delay time.Duration) (bool, error) {
	n, err := luaRequeue.Run(ctx, b.cli,
		[]string{b.jobKey(jobID), b.key("active"), b.key("delayed")},
		jobID, nowMillis()+delay.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("requeue job %s: %w", jobID, err)
	}
	return n == 1, nil
}

// KEYS: job hash, wait, delayed, ids, cancel. ARGV: id, ttlSeconds.
var luaCancel = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if not state then
	return 0
end
if state == "waiting" or state == "delayed" then
	redis.call("LREM", KEYS[2], 0, ARGV[1])
	redis.call("ZREM", KEYS[3], ARGV[1])
	redis.call("DEL", KEYS[1])
	redis.call("SREM", KEYS[4], ARGV[1])
	return 1
end
if state == "active" then
	redis.call("SET", KEYS[5], "1", "EX", ARGV[2])
	return 2
end
return 0`)

func (b *Broker) Cancel(ctx context.Context, jobID string) (adapter.CancelResult, error) {
	ttl := int64(b.opts.CancelTTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	n, err := luaCancel.Run(ctx, b.cli,
		[]string{b.jobKey(jobID), b.key("wait"), b.key("delayed"), b.key("ids"), b.cancelKey(jobID)},
		jobID, ttl,
	).Int()
	if err != nil {
		return adapter.CancelNotFound, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return adapter.CancelResult(n), nil
}

func (b *Broker) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	n, err := b.cli.Exists(ctx, b.cancelKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// KEYS: job hash, failed, wait. ARGV: id.
var luaRetry = redis.NewScript(`
if redis.call("ZREM", KEYS[2], ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "state", "waiting", "attemptsMade", 0, "failedReason", "")
redis.call("HDEL", KEYS[1], "finishedOn", "processedOn")
redis.call("LPUSH", KEYS[3], ARGV[1])
return 1`)

// Retry moves a failed job back to the wait list with a fresh attempt budget.
// It reports false when the broker no longer knows the job as failed.
func (b *Broker) Retry(ctx context.Context, jobID string) (bool, error) {
	n, err := luaRetry.Run(ctx, b.cli,
		[]string{b.jobKey(jobID), b.key("failed"), b.key("wait")}, jobID).Int()
	if err != nil {
		return false, fmt.Errorf("retry job %s: %w", jobID, err)
	}
	return n == 1, nil
}

func (b *Broker) Counts(ctx context.Context) (adapter.QueueCounts, error) {
	pipe := b.cli.Pipeline()
	waiting := pipe.LLen(ctx, b.key("wait"))
	active := pipe.LLen(ctx, b.key("active"))
	completed := pipe.ZCard(ctx, b.key("completed"))
	failed := pipe.ZCard(ctx, b.key("failed"))
	delayed := pipe.ZCard(ctx, b.key("delayed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return adapter.QueueCounts{}, fmt.Errorf("queue counts: %w", err)
	}
	return adapter.QueueCounts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

// KEYS: ids, wait, active, delayed, completed, failed, prefix.
var luaObliterate = redis.NewScript(`
local ids = redis.call("SMEMBERS", KEYS[1])
for _, id in ipairs(ids) do
	redis.call("DEL", KEYS[7] .. "job:" .. id, KEYS[7] .. "cancel:" .. id)
end
redis.call("DEL", KEYS[1], KEYS[2], KEYS[3], KEYS[4], KEYS[5], KEYS[6])
return #ids`)

// Obliterate drops every job of the queue, active ones included.
func (b *Broker) Obliterate(ctx context.Context) error {
	n, err := luaObliterate.Run(ctx, b.cli, []string{
		b.key("ids"), b.key("wait"), b.key("active"), b.key("delayed"),
		b.key("completed"), b.key("failed"), b.prefix,
	}).Int()
	if err != nil {
		return fmt.Errorf("obliterate queue: %w", err)
	}
	b.log.Warn().Str("queue", b.opts.Queue).Int("jobs", n).Msg("queue obliterated")
	return nil
}

// RecoverStalled returns active jobs whose executor lock is gone to the wait list.
func (b *Broker) RecoverStalled(ctx context.Context, isLocked func(jobID string) bool) (int, error) {
	ids, err := b.cli.LRange(ctx, b.key("active"), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list active: %w", err)
	}
	recovered := 0
	for _, id := range ids {
		if isLocked(id) {
			continue
		}
		removed, err := b.cli.LRem(ctx, b.key("active"), 0, id).Result()
		if err != nil {
			return recovered, fmt.Errorf("recover %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}
		pipe := b.cli.TxPipeline()
		pipe.HSet(ctx, b.jobKey(id), "state", "waiting")
		pipe.RPush(ctx, b.key("wait"), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, fmt.Errorf("recover %s: %w", id, err)
		}
		recovered++
		b.log.Warn().Str("job_id", id).Msg("stalled job returned to queue")
	}
	return recovered, nil
}

func toInt(v interface{}) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	}
	return 0
}
