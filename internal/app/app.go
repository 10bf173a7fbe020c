// Package app wires configuration to adapters and use cases.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/config"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/infrastructure/fetch"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/infrastructure/mailgun"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/infrastructure/psi"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/infrastructure/scheduler"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/infrastructure/storage"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/logging"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/ports"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/retry"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/usecase"
)

const stopGrace = 30 * time.Second

// Application owns the store handle and the assembled use cases.
type Application struct {
	cfg       config.Config
	log       *slog.Logger
	store     *storage.Store
	engine    *usecase.Engine
	retention *usecase.Retention
}

// New builds a runnable application instance. PSI and Mailgun stay
// disabled until their API keys are configured.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	httpClient := &http.Client{
		Timeout: time.Duration(cfg.Crawl.RequestTimeoutSeconds) * time.Second,
	}
	fetcher := fetch.New(httpClient, cfg.Crawl.UserAgent, cfg.Crawl.MaxContentBytes)

	var psiClient ports.PSIClient
	if cfg.PSI.APIKey != "" {
		psiClient = psi.NewClient(cfg.PSI.Endpoint, cfg.PSI.APIKey, cfg.PSI.Strategy)
	}

	var reporter ports.Reporter
	if cfg.Mailgun.APIKey != "" {
		reporter = mailgun.NewNotifier(
			cfg.Mailgun.Endpoint,
			cfg.Mailgun.Domain,
			cfg.Mailgun.APIKey,
			cfg.Mailgun.From,
			cfg.Mailgun.OperatorEmail,
		)
	}

	engine := usecase.NewEngine(usecase.EngineDeps{
		Stores: usecase.Stores{
			Customers:     store,
			Snapshots:     store,
			Artifacts:     store,
			PSI:           store,
			Confirmations: store,
			Findings:      store,
			RunStats:      store,
		},
		Fetcher:         fetcher,
		Artifacts:       fetcher,
		PSI:             psiClient,
		Reporter:        reporter,
		Logger:          baseLogger.With("component", "engine"),
		Defaults:        cfg.ClassificationDefaults(),
		WeeklyBudget:    cfg.Crawl.WeeklyBudget,
		CustomerWorkers: cfg.Crawl.CustomerWorkers,
		URLWorkers:      cfg.Crawl.URLWorkers,
		LinkAuditLimit:  cfg.Crawl.LinkAuditLimit,
		Retry: retry.Config{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: time.Duration(cfg.Retry.InitialBackoffSeconds) * time.Second,
		},
	})

	retention := usecase.NewRetention(
		store, store, cfg.Retention.Days, baseLogger.With("component", "retention"))

	return &Application{
		cfg:       cfg,
		log:       baseLogger,
		store:     store,
		engine:    engine,
		retention: retention,
	}, nil
}

// RunOnce executes a single monitoring run of the given type and returns
// its summary.
func (a *Application) RunOnce(ctx context.Context, runType domain.RunType) (domain.RunResult, error) {
	run := domain.NewRunContext(runType, time.Now().In(a.cfg.Scheduler.Location()))
	return a.engine.Run(ctx, run)
}

// RunSchedule blocks running the daily and weekly cron jobs until the
// context is cancelled.
func (a *Application) RunSchedule(ctx context.Context) error {
	driver := scheduler.NewCronScheduler(
		a.cfg.Scheduler.Location(), a.log.With("component", "cron"))
	sched := usecase.NewScheduler(driver, a.engine, a.log.With("component", "scheduler"))

	if err := sched.Start(ctx, a.cfg.Scheduler.DailyCron, a.cfg.Scheduler.WeeklyCron); err != nil {
		return fmt.Errorf("start schedule: %w", err)
	}
	a.log.Info("schedule started",
		"daily", a.cfg.Scheduler.DailyCron,
		"weekly", a.cfg.Scheduler.WeeklyCron,
		"timezone", a.cfg.Scheduler.Location().String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Purge removes data of customers cancelled past the retention window.
func (a *Application) Purge(ctx context.Context) (int, error) {
	return a.retention.Purge(ctx)
}

// Close releases the store handle.
func (a *Application) Close() error {
	return a.store.Close()
}
