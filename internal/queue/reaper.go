package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunReaper periodically expires entries whose state is terminal and whose
// age exceeds the configured retention window, keeping at most
// CompletedCount/FailedCount of the newest entries regardless of age. It
// blocks until ctx is cancelled; callers run it in its own goroutine.
func (q *Queue) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.reapOnce(ctx); err != nil && q.logger != nil {
				q.logger.Warn("queue reaper pass failed", zap.Error(err))
			}
		}
	}
}

// reapOnce is a single TTL-and-count sweep. The active/dedup sets are the
// source of truth for in-flight jobs; this only prunes terminal entries, so
// it never touches a job that could still be retried or is mid-run.
func (q *Queue) reapOnce(ctx context.Context) error {
	active, err := q.rdb.SMembers(ctx, keyActiveSet).Result()
	if err != nil {
		return err
	}
	activeSet := make(map[string]bool, len(active))
	for _, id := range active {
		activeSet[id] = true
	}

	keys, err := q.rdb.Keys(ctx, "pipeline:queue:entry:*").Result()
	if err != nil {
		return err
	}

	var completed, failed []entryWithID
	for _, k := range keys {
		jobID := k[len("pipeline:queue:entry:"):]
		if activeSet[jobID] {
			continue
		}
		entry, err := q.loadEntry(ctx, jobID)
		if err != nil {
			continue
		}
		switch entry.State {
		case StateCompleted:
			completed = append(completed, entryWithID{jobID, entry})
		case StateFailed:
			failed = append(failed, entryWithID{jobID, entry})
		}
	}

	q.pruneBucket(ctx, completed, q.opts.CompletedCount, q.opts.CompletedAge)
	q.pruneBucket(ctx, failed, q.opts.FailedCount, q.opts.FailedAge)
	return nil
}

type entryWithID struct {
	jobID string
	entry Entry
}

func (q *Queue) pruneBucket(ctx context.Context, entries []entryWithID, keepCount int, maxAge time.Duration) {
	sortNewestFirst(entries)

	now := time.Now()
	for i, e := range entries {
		expiredByAge := maxAge > 0 && now.Sub(e.entry.UpdatedAt) > maxAge
		expiredByCount := keepCount > 0 && i >= keepCount
		if expiredByAge || expiredByCount {
			q.rdb.Del(ctx, "pipeline:queue:entry:"+e.jobID)
		}
	}
}

func sortNewestFirst(entries []entryWithID) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].entry.UpdatedAt.After(entries[j-1].entry.UpdatedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
