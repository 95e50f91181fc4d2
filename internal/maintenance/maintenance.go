// Package maintenance runs the storage-stats/prune job on an operator
// configured cron schedule, logging a snapshot before every prune.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/Cyberlandslaget/angrepa/internal/store"
	"github.com/Cyberlandslaget/angrepa/internal/validate"
)

// Job periodically prunes rows older than KeepDays from every storage
// resource, logging the stats snapshot taken just before each prune.
type Job struct {
	store    *store.Store
	cron     string
	keepDays int64
	now      func() time.Time
}

// New builds a maintenance Job. cron must already have passed
// validate.CronExpression.
func New(st *store.Store, cron string, keepDays int64) *Job {
	return &Job{store: st, cron: cron, keepDays: keepDays, now: func() time.Time { return time.Now().UTC() }}
}

// Run blocks until ctx is cancelled, firing once at every cron occurrence.
func (j *Job) Run(ctx context.Context) {
	sched, err := validate.ParseCron(j.cron)
	if err != nil {
		slog.Error("maintenance: invalid cron expression, job disabled", "cron", j.cron, "error", err)
		return
	}

	for {
		next := sched.Next(j.now())
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Job) runOnce(ctx context.Context) {
	stats, err := j.store.GetStorageStats(ctx)
	if err != nil {
		slog.Warn("maintenance: storage stats failed", "error", err)
	} else {
		for _, r := range stats.Resources {
			slog.Info("maintenance: storage snapshot", "resource", r.Resource, "rows", r.Rows, "approx_bytes", r.ApproxBytes)
		}
	}

	keepSince := j.now().AddDate(0, 0, -int(j.keepDays))
	results, err := j.store.FlushStorageResource(ctx, store.StorageResourceAll, keepSince)
	if err != nil {
		slog.Warn("maintenance: prune failed", "error", err)
		return
	}
	for _, r := range results {
		slog.Info("maintenance: pruned", "resource", r.Resource, "removed_rows", r.RemovedRows)
	}
}
