package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/ports"
)

// Scheduler wires the cron driver to recurring engine runs.
type Scheduler struct {
	driver ports.Scheduler
	engine *Engine
	log    *slog.Logger
}

// NewScheduler returns a helper to start/stop the recurring runs.
func NewScheduler(driver ports.Scheduler, engine *Engine, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, engine: engine, log: logger}
}

// Start registers the daily and weekly jobs and begins the schedule.
func (s *Scheduler) Start(ctx context.Context, dailySpec, weeklySpec string) error {
	if s.driver == nil || s.engine == nil {
		return nil
	}
	if err := s.register(ctx, domain.RunDaily, dailySpec); err != nil {
		return err
	}
	if err := s.register(ctx, domain.RunWeekly, weeklySpec); err != nil {
		return err
	}
	return s.driver.Start(ctx)
}

func (s *Scheduler) register(ctx context.Context, runType domain.RunType, spec string) error {
	err := s.driver.Schedule(spec, func(trigger time.Time) {
		run := domain.NewRunContext(runType, trigger)
		if _, err := s.engine.Run(ctx, run); err != nil {
			s.log.Error("scheduled run failed",
				"run_type", runType, "run_id", run.RunID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s run: %w", runType, err)
	}
	return nil
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
