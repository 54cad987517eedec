// Package queue implements a durable, deduplicated job queue: jobs are
// stored in Redis with retry/backoff bookkeeping and TTL-and-count caps on
// completed/failed retention.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// State mirrors the lifecycle of one queued job entry.
type State string

const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Payload is the queue job payload.
type Payload struct {
	JobID string `json:"jobId"`
}

// Entry is the durable record the queue keeps per job, beyond the bare
// payload, to support retries and TTL reaping.
type Entry struct {
	Payload    Payload   `json:"payload"`
	State      State     `json:"state"`
	Attempts   int       `json:"attempts"`
	MaxAttempts int      `json:"maxAttempts"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Percentage int       `json:"percentage"`
}

// Options configures queue retention and retry defaults.
type Options struct {
	Attempts            int
	BaseBackoff         time.Duration
	CompletedCount      int
	FailedCount         int
	CompletedAge        time.Duration
	FailedAge           time.Duration
}

// DefaultOptions returns the documented defaults: 3 attempts, 5s base
// backoff, keep last 100 completed / 1000 failed or up to 24h / 7d.
func DefaultOptions() Options {
	return Options{
		Attempts:       3,
		BaseBackoff:    5 * time.Second,
		CompletedCount: 100,
		FailedCount:    1000,
		CompletedAge:   24 * time.Hour,
		FailedAge:      7 * 24 * time.Hour,
	}
}

const (
	keyPending   = "pipeline:queue:pending"
	keyActiveSet = "pipeline:queue:active"
	keyEntryFmt  = "pipeline:queue:entry:%s"
	keyDedupSet  = "pipeline:queue:dedup"
)

// Queue is a Redis-backed, dedup-by-job-id FIFO-ish queue.
type Queue struct {
	rdb    *redis.Client
	opts   Options
	logger *zap.Logger
}

// New wraps an established Redis client.
func New(rdb *redis.Client, opts Options, logger *zap.Logger) *Queue {
	return &Queue{rdb: rdb, opts: opts, logger: logger}
}

// Enqueue submits a job id. Enqueueing the same job id while it is already
// queued or running is a no-op.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	added, err := q.rdb.SAdd(ctx, keyDedupSet, jobID).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobID, err)
	}
	if added == 0 {
		return nil
	}

	entry := Entry{
		Payload:     Payload{JobID: jobID},
		State:       StateQueued,
		MaxAttempts: q.opts.Attempts,
		EnqueuedAt:  time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := q.saveEntry(ctx, jobID, entry); err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, keyPending, jobID).Err(); err != nil {
		return fmt.Errorf("push %s onto pending list: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks (respecting ctx) for up to blockFor waiting for a job id,
// moving it into the active set and incrementing its attempt count.
func (q *Queue) Dequeue(ctx context.Context, blockFor time.Duration) (string, bool, error) {
	res, err := q.rdb.BRPop(ctx, blockFor, keyPending).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dequeue: %w", err)
	}
	if len(res) < 2 {
		return "", false, nil
	}
	jobID := res[1]

	entry, err := q.loadEntry(ctx, jobID)
	if err != nil {
		return jobID, false, err
	}
	entry.State = StateActive
	entry.Attempts++
	entry.UpdatedAt = time.Now()
	if err := q.saveEntry(ctx, jobID, entry); err != nil {
		return jobID, false, err
	}
	if err := q.rdb.SAdd(ctx, keyActiveSet, jobID).Err(); err != nil {
		return jobID, false, fmt.Errorf("mark %s active: %w", jobID, err)
	}
	return jobID, true, nil
}

// Complete marks jobID completed, evicts it from the dedup/active sets (it
// can be re-enqueued only as a fresh job from here on), and schedules its
// entry for eventual TTL reaping.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	return q.finish(ctx, jobID, StateCompleted)
}

// Fail either re-queues jobID for retry (attempts remaining) or marks it
// terminally failed.
func (q *Queue) Fail(ctx context.Context, jobID string, cause error) error {
	entry, err := q.loadEntry(ctx, jobID)
	if err != nil {
		return err
	}
	if entry.Attempts < entry.MaxAttempts {
		entry.State = StateQueued
		entry.UpdatedAt = time.Now()
		if err := q.saveEntry(ctx, jobID, entry); err != nil {
			return err
		}
		q.rdb.SRem(ctx, keyActiveSet, jobID)

		delay := backoffDelay(q.opts.BaseBackoff, entry.Attempts)
		go q.requeueAfter(jobID, delay)
		return nil
	}
	return q.finish(ctx, jobID, StateFailed)
}

func (q *Queue) requeueAfter(jobID string, delay time.Duration) {
	time.Sleep(delay)
	ctx := context.Background()
	if err := q.rdb.LPush(ctx, keyPending, jobID).Err(); err != nil && q.logger != nil {
		q.logger.Warn("failed to requeue job after backoff", zap.String("job_id", jobID), zap.Error(err))
	}
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (q *Queue) finish(ctx context.Context, jobID string, state State) error {
	entry, err := q.loadEntry(ctx, jobID)
	if err != nil {
		return err
	}
	entry.State = state
	entry.UpdatedAt = time.Now()
	if err := q.saveEntry(ctx, jobID, entry); err != nil {
		return err
	}
	q.rdb.SRem(ctx, keyActiveSet, jobID)
	q.rdb.SRem(ctx, keyDedupSet, jobID)
	return nil
}

// UpdateProgress records the current percentage on the queue-job entry; the
// worker calls this from its progress callback.
func (q *Queue) UpdateProgress(ctx context.Context, jobID string, percentage int) error {
	entry, err := q.loadEntry(ctx, jobID)
	if err != nil {
		return err
	}
	entry.Percentage = percentage
	entry.UpdatedAt = time.Now()
	return q.saveEntry(ctx, jobID, entry)
}

func (q *Queue) saveEntry(ctx context.Context, jobID string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal queue entry %s: %w", jobID, err)
	}
	return q.rdb.Set(ctx, fmt.Sprintf(keyEntryFmt, jobID), payload, 0).Err()
}

func (q *Queue) loadEntry(ctx context.Context, jobID string) (Entry, error) {
	raw, err := q.rdb.Get(ctx, fmt.Sprintf(keyEntryFmt, jobID)).Bytes()
	if err != nil {
		return Entry{}, fmt.Errorf("load queue entry %s: %w", jobID, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("unmarshal queue entry %s: %w", jobID, err)
	}
	return entry, nil
}
