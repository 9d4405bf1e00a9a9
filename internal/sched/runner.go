// Package sched runs synchronization cycles on a cron schedule.
package sched

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner wraps a cron scheduler whose jobs receive a shared base context,
// so cancelling that context stops in-flight cycles gracefully.
type Runner struct {
	cron    *cron.Cron
	log     *zap.Logger
	baseCtx context.Context
}

// New creates a runner. Cron expressions include a seconds field.
func New(log *zap.Logger, baseCtx context.Context) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		log:     log,
		baseCtx: baseCtx,
	}
}

// Add schedules job under the given cron spec.
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

// Next returns the earliest upcoming run time, or the zero time when
// nothing is scheduled.
func (r *Runner) Next() time.Time {
	var next time.Time
	for _, entry := range r.cron.Entries() {
		if next.IsZero() || (!entry.Next.IsZero() && entry.Next.Before(next)) {
			next = entry.Next
		}
	}
	return next
}

// Start begins dispatching scheduled jobs.
func (r *Runner) Start() {
	r.log.Info("scheduler started")
	r.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("scheduler stopped")
}

// IsWorkday reports whether t falls on a weekday. Scheduled cycles skip
// weekends; explicit one-shot runs do not consult this.
func IsWorkday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// WorkdaysOnly wraps job so it only runs on weekdays.
func WorkdaysOnly(log *zap.Logger, job func(context.Context)) func(context.Context) {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context) {
		if !IsWorkday(time.Now()) {
			log.Info("skipping scheduled cycle on weekend")
			return
		}
		job(ctx)
	}
}
