// Package scheduler drives recurring runs from cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/ports"
)

// CronScheduler runs registered jobs on standard five-field cron specs,
// evaluated in the configured location.
type CronScheduler struct {
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler; nil location means UTC.
func NewCronScheduler(loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	opts := []cron.Option{cron.WithLocation(loc)}
	if logger != nil {
		opts = append(opts, cron.WithChain(cron.Recover(cronLogger{log: logger})))
	}
	return &CronScheduler{cron: cron.New(opts...)}
}

// Schedule registers a job for the given cron spec.
func (c *CronScheduler) Schedule(spec string, job func(time.Time)) error {
	if job == nil {
		return fmt.Errorf("nil job for spec %q", spec)
	}
	if _, err := c.cron.AddFunc(spec, func() { job(time.Now()) }); err != nil {
		return fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return nil
}

// Start begins firing scheduled jobs in the background.
func (c *CronScheduler) Start(_ context.Context) error {
	c.cron.Start()
	return nil
}

// Stop halts scheduling and waits for in-flight jobs, bounded by ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	select {
	case <-c.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to the cron logging interface used by the
// panic-recovery wrapper.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
