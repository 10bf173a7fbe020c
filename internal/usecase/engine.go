package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/classify"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/confirm"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/diff"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/normalize"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/ports"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/retry"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/sample"
)

const (
	defaultCustomerWorkers = 4
	defaultURLWorkers      = 4
	defaultLinkAuditLimit  = 200
)

// Stores groups the persistence ports the engine consumes.
type Stores struct {
	Customers     ports.CustomerStore
	Snapshots     ports.SnapshotStore
	Artifacts     ports.ArtifactStore
	PSI           ports.PSIStore
	Confirmations ports.ConfirmationStateStore
	Findings      ports.FindingStore
	RunStats      ports.RunStatsStore
}

// EngineDeps wires all driven adapters into the monitoring engine.
type EngineDeps struct {
	Stores    Stores
	Fetcher   ports.PageFetcher
	Artifacts ports.ArtifactFetcher
	// PSI may be nil, which disables performance monitoring.
	PSI      ports.PSIClient
	Reporter ports.Reporter
	Logger   *slog.Logger

	// Defaults are the product thresholds; customer settings override them
	// per run.
	Defaults        domain.ClassificationConfig
	WeeklyBudget    int
	CustomerWorkers int
	URLWorkers      int
	LinkAuditLimit  int
	Retry           retry.Config
}

// Engine executes one monitoring run across all active customers. One
// customer failing never stops the others.
type Engine struct {
	stores          Stores
	fetcher         ports.PageFetcher
	artifacts       ports.ArtifactFetcher
	psi             ports.PSIClient
	reporter        ports.Reporter
	log             *slog.Logger
	defaults        domain.ClassificationConfig
	weeklyBudget    int
	customerWorkers int
	urlWorkers      int
	linkAuditLimit  int
	retry           retry.Config
	now             func() time.Time
}

// NewEngine constructs the orchestration component, filling unset knobs
// with defaults.
func NewEngine(deps EngineDeps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.CustomerWorkers <= 0 {
		deps.CustomerWorkers = defaultCustomerWorkers
	}
	if deps.URLWorkers <= 0 {
		deps.URLWorkers = defaultURLWorkers
	}
	if deps.WeeklyBudget <= 0 {
		deps.WeeklyBudget = sample.DefaultWeeklyBudget
	}
	if deps.LinkAuditLimit <= 0 {
		deps.LinkAuditLimit = defaultLinkAuditLimit
	}
	return &Engine{
		stores:          deps.Stores,
		fetcher:         deps.Fetcher,
		artifacts:       deps.Artifacts,
		psi:             deps.PSI,
		reporter:        deps.Reporter,
		log:             deps.Logger,
		defaults:        deps.Defaults,
		weeklyBudget:    deps.WeeklyBudget,
		customerWorkers: deps.CustomerWorkers,
		urlWorkers:      deps.URLWorkers,
		linkAuditLimit:  deps.LinkAuditLimit,
		retry:           deps.Retry,
		now:             time.Now,
	}
}

// Run processes every active customer for one trigger. It returns an error
// only when the run could not start at all; per-customer failures are
// reported in the result and alerted to the operator.
func (e *Engine) Run(ctx context.Context, run domain.RunContext) (domain.RunResult, error) {
	result := domain.RunResult{
		RunID:              run.RunID,
		RunType:            run.RunType,
		FindingsBySeverity: map[domain.Severity]int{},
	}

	customers, err := e.stores.Customers.ListActiveCustomers(ctx)
	if err != nil {
		return result, fmt.Errorf("list active customers: %w", err)
	}
	result.Processed = len(customers)
	e.log.Info("run started",
		"run_id", run.RunID, "run_type", run.RunType, "customers", len(customers))

	type outcome struct {
		customerID string
		findings   []domain.Finding
		err        error
	}

	jobs := make(chan domain.Customer)
	outcomes := make(chan outcome, len(customers))

	var wg sync.WaitGroup
	for i := 0; i < e.customerWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for customer := range jobs {
				findings, err := e.processCustomer(ctx, run, customer)
				outcomes <- outcome{customerID: customer.ID, findings: findings, err: err}
			}
		}()
	}

	submitted := 0
feed:
	for _, customer := range customers {
		select {
		case jobs <- customer:
			submitted++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	for _, customer := range customers[submitted:] {
		outcomes <- outcome{customerID: customer.ID, err: ctx.Err()}
	}
	wg.Wait()
	close(outcomes)

	for out := range outcomes {
		if out.err != nil {
			result.Failed++
			result.FailedCustomerIDs = append(result.FailedCustomerIDs, out.customerID)
			e.log.Error("customer run failed",
				"run_id", run.RunID, "customer_id", out.customerID, "error", out.err)
			continue
		}
		result.Succeeded++
		for sev, n := range domain.CountBySeverity(out.findings) {
			result.FindingsBySeverity[sev] += n
		}
	}
	sort.Strings(result.FailedCustomerIDs)

	if result.Failed > 0 && e.reporter != nil {
		if err := e.reporter.SendOperatorAlert(ctx, result); err != nil {
			e.log.Error("operator alert failed", "run_id", run.RunID, "error", err)
		}
	}

	e.log.Info("run finished",
		"run_id", run.RunID, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// processCustomer shields the run from a panicking customer job.
func (e *Engine) processCustomer(ctx context.Context, run domain.RunContext, customer domain.Customer) (findings []domain.Finding, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("customer %s panicked: %v", customer.ID, r)
		}
	}()
	return e.runCustomer(ctx, run, customer)
}

// pageCapture pairs one stored snapshot with the changes detected against
// its predecessor.
type pageCapture struct {
	snap    *domain.Snapshot
	changes []domain.RawChange
}

func (e *Engine) runCustomer(ctx context.Context, run domain.RunContext, customer domain.Customer) ([]domain.Finding, error) {
	targets, err := e.stores.Customers.ListTargets(ctx, customer.ID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	cfg := e.defaults.WithOverrides(customer.Settings)

	keyURLs := make(map[string]bool)
	for _, t := range targets {
		if t.IsKey {
			keyURLs[t.URL] = true
		}
	}
	keyList := make([]string, 0, len(keyURLs))
	for u := range keyURLs {
		keyList = append(keyList, u)
	}
	sort.Strings(keyList)

	captures, err := e.crawlPages(ctx, run, customer, e.selectURLs(run, targets, customer.Settings))
	if err != nil {
		return nil, err
	}

	var changes []domain.RawChange
	for _, c := range captures {
		changes = append(changes, c.changes...)
	}

	if run.RunType == domain.RunWeekly {
		artifactChanges, err := e.checkArtifacts(ctx, run, customer, keyList)
		if err != nil {
			return nil, err
		}
		changes = append(changes, artifactChanges...)
	}

	var transitions []domain.StateTransition
	if run.RunType == domain.RunDaily {
		transitions, err = e.checkPerformance(ctx, run, customer, cfg, keyList)
		if err != nil {
			return nil, err
		}
	}

	stats, err := e.buildRunStats(ctx, run, customer, captures)
	if err != nil {
		return nil, err
	}
	priorStats, err := e.stores.RunStats.PriorRunStats(ctx, customer.ID, run.RunType, run.RunID)
	if err != nil {
		return nil, fmt.Errorf("load prior run stats: %w", err)
	}

	findings := classify.New(cfg).Classify(classify.Input{
		CustomerID:  customer.ID,
		Run:         run,
		Changes:     changes,
		Transitions: transitions,
		KeyURLs:     keyURLs,
		Stats:       stats,
		PriorStats:  priorStats,
	})
	for _, f := range findings {
		if _, err := e.stores.Findings.PersistIfNew(ctx, f); err != nil {
			return nil, fmt.Errorf("persist finding %q: %w", f.Title, err)
		}
	}
	if err := e.stores.RunStats.SaveRunStats(ctx, stats); err != nil {
		return nil, fmt.Errorf("save run stats: %w", err)
	}

	// The digest is built from the committed rows, not the in-memory set,
	// so an interrupted run resumes with the same email content.
	committed, err := e.stores.Findings.ListFindings(ctx, customer.ID, run.RunType, run.Date())
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	if len(committed) > 0 && e.reporter != nil {
		if err := e.reporter.SendFindings(ctx, customer, run, committed); err != nil {
			return nil, fmt.Errorf("send digest: %w", err)
		}
	}
	return committed, nil
}

// selectURLs picks the crawl set: key URLs daily, the budgeted sample
// weekly.
func (e *Engine) selectURLs(run domain.RunContext, targets []domain.Target, settings domain.Settings) []string {
	if run.RunType == domain.RunDaily {
		seen := map[string]struct{}{}
		var urls []string
		for _, t := range targets {
			if !t.IsKey {
				continue
			}
			if _, ok := seen[t.URL]; ok {
				continue
			}
			seen[t.URL] = struct{}{}
			urls = append(urls, t.URL)
		}
		sort.Strings(urls)
		return urls
	}

	budget := e.weeklyBudget
	if settings.WeeklyBudget != nil && *settings.WeeklyBudget > 0 {
		budget = *settings.WeeklyBudget
	}
	return sample.SelectWeeklySample(targets, budget, run.WeekSeed())
}

// crawlPages fetches, persists and diffs every selected URL. Fetch failures
// become failed snapshots; only storage errors fail the customer.
func (e *Engine) crawlPages(ctx context.Context, run domain.RunContext, customer domain.Customer, urls []string) ([]pageCapture, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	jobs := make(chan string)
	results := make(chan pageCapture, len(urls))
	errs := make(chan error, len(urls))

	workers := e.urlWorkers
	if workers > len(urls) {
		workers = len(urls)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pageURL := range jobs {
				capture, err := e.processURL(ctx, run, customer, pageURL)
				if err != nil {
					errs <- err
					continue
				}
				results <- capture
			}
		}()
	}
	for _, pageURL := range urls {
		jobs <- pageURL
	}
	close(jobs)
	wg.Wait()
	close(results)
	close(errs)

	if err := <-errs; err != nil {
		return nil, err
	}

	captures := make([]pageCapture, 0, len(urls))
	for capture := range results {
		captures = append(captures, capture)
	}
	sort.Slice(captures, func(i, j int) bool { return captures[i].snap.URL < captures[j].snap.URL })
	return captures, nil
}

func (e *Engine) processURL(ctx context.Context, run domain.RunContext, customer domain.Customer, pageURL string) (pageCapture, error) {
	prior, err := e.stores.Snapshots.PriorSnapshot(ctx, customer.ID, pageURL, run.RunType, run.RunID)
	if err != nil {
		return pageCapture{}, fmt.Errorf("load prior snapshot for %s: %w", pageURL, err)
	}

	snap := e.fetchSnapshot(ctx, run, customer, pageURL)
	if err := e.stores.Snapshots.SaveSnapshot(ctx, snap); err != nil {
		return pageCapture{}, fmt.Errorf("save snapshot for %s: %w", pageURL, err)
	}
	return pageCapture{snap: snap, changes: diff.Snapshots(prior, snap)}, nil
}

// fetchSnapshot fetches one page with retries and always produces a
// snapshot. Server errors are retried but the last response is still
// recorded as a status; only transport failures yield a failed snapshot.
func (e *Engine) fetchSnapshot(ctx context.Context, run domain.RunContext, customer domain.Customer, pageURL string) *domain.Snapshot {
	var result domain.FetchResult
	err := retry.Do(ctx, e.retry, func() error {
		result = domain.FetchResult{}
		res, err := e.fetcher.FetchPage(ctx, pageURL)
		if err != nil {
			return err
		}
		result = res
		if res.StatusCode >= 500 {
			return &domain.FetchError{
				Type:       domain.ErrorHTTP,
				StatusCode: res.StatusCode,
				Err:        fmt.Errorf("fetch %s: status %d", pageURL, res.StatusCode),
			}
		}
		return nil
	})

	snap := &domain.Snapshot{
		CustomerID: customer.ID,
		URL:        pageURL,
		RunType:    run.RunType,
		RunID:      run.RunID,
		FetchedAt:  e.now().UTC(),
	}

	if err != nil && result.StatusCode == 0 {
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) {
			snap.ErrorType = string(fetchErr.Type)
		} else {
			snap.ErrorType = string(domain.ErrorConnection)
		}
		snap.Error = err.Error()
		return snap
	}

	snap.StatusCode = result.StatusCode
	snap.FinalURL = result.FinalURL
	snap.RedirectChain = domain.StringList(result.RedirectChain)
	snap.Title = result.Title
	snap.Canonical = result.Canonical
	snap.MetaRobots = result.MetaRobots
	snap.InternalLinks = domain.StringList(result.InternalLinks)
	if result.HTML != "" {
		snap.ContentHash = normalize.Hash(result.HTML)
	}
	return snap
}

// checkArtifacts captures robots.txt and the sitemap and diffs them against
// the prior weekly capture. A failed fetch skips the comparison for that
// artifact; absence is only believed when the server said so.
func (e *Engine) checkArtifacts(ctx context.Context, run domain.RunContext, customer domain.Customer, keyURLs []string) ([]domain.RawChange, error) {
	var changes []domain.RawChange
	for _, typ := range []domain.ArtifactType{domain.ArtifactRobots, domain.ArtifactSitemap} {
		prior, err := e.stores.Artifacts.PriorArtifact(ctx, customer.ID, typ, run.RunID)
		if err != nil {
			return nil, fmt.Errorf("load prior %s: %w", typ, err)
		}

		payload, err := e.fetchArtifact(ctx, typ, customer.Domain)
		if err != nil {
			e.log.Warn("artifact fetch failed, keeping prior state",
				"customer_id", customer.ID, "artifact", typ, "error", err)
			continue
		}

		art := &domain.Artifact{
			CustomerID: customer.ID,
			Type:       typ,
			RunID:      run.RunID,
			FetchedAt:  e.now().UTC(),
			Content:    payload.Content,
		}
		if payload.Content != "" {
			sum := sha256.Sum256([]byte(payload.Content))
			art.SHA256 = hex.EncodeToString(sum[:])
		}
		if typ == domain.ArtifactSitemap {
			art.SetURLCount(payload.URLCount)
		}
		if err := e.stores.Artifacts.SaveArtifact(ctx, art); err != nil {
			return nil, fmt.Errorf("save %s: %w", typ, err)
		}
		changes = append(changes, diff.Artifacts(prior, art, keyURLs)...)
	}
	return changes, nil
}

func (e *Engine) fetchArtifact(ctx context.Context, typ domain.ArtifactType, siteDomain string) (domain.ArtifactPayload, error) {
	var payload domain.ArtifactPayload
	err := retry.Do(ctx, e.retry, func() error {
		var err error
		if typ == domain.ArtifactRobots {
			payload, err = e.artifacts.FetchRobots(ctx, siteDomain)
		} else {
			payload, err = e.artifacts.FetchSitemap(ctx, siteDomain)
		}
		return err
	})
	return payload, err
}

// checkPerformance measures key URLs and advances the confirmation state
// machine. A failed measurement skips the URL and leaves its chain intact.
func (e *Engine) checkPerformance(ctx context.Context, run domain.RunContext, customer domain.Customer, cfg domain.ClassificationConfig, keyURLs []string) ([]domain.StateTransition, error) {
	if e.psi == nil {
		return nil, nil
	}

	confirmer := confirm.New(cfg)
	var transitions []domain.StateTransition
	for _, pageURL := range keyURLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := e.measurePSI(ctx, pageURL)
		if err != nil {
			e.log.Warn("psi measurement failed",
				"customer_id", customer.ID, "url", pageURL, "error", err)
			continue
		}
		current.CustomerID = customer.ID
		current.RunID = run.RunID

		prior, err := e.stores.PSI.PriorPSISample(ctx, customer.ID, pageURL, run.RunID)
		if err != nil {
			return nil, fmt.Errorf("load prior psi sample for %s: %w", pageURL, err)
		}
		if err := e.stores.PSI.SavePSISample(ctx, &current); err != nil {
			return nil, fmt.Errorf("save psi sample for %s: %w", pageURL, err)
		}
		if prior == nil {
			// First measurement is the baseline.
			continue
		}

		for _, obs := range metricObservations(prior, &current) {
			state, err := e.stores.Confirmations.ConfirmationState(ctx, customer.ID, pageURL, obs.Metric)
			if err != nil {
				return nil, fmt.Errorf("load confirmation state for %s: %w", pageURL, err)
			}
			next, transition := confirmer.Apply(state, obs, run.RunID)
			if state == nil && next.ConsecutiveBreaches == 0 {
				// Never tracked and still clean: nothing worth a row.
				continue
			}
			next.CustomerID = customer.ID
			if err := e.stores.Confirmations.SaveConfirmationState(ctx, &next); err != nil {
				return nil, fmt.Errorf("save confirmation state for %s: %w", pageURL, err)
			}
			transitions = append(transitions, transition)
		}
	}
	return transitions, nil
}

func (e *Engine) measurePSI(ctx context.Context, pageURL string) (domain.PSISample, error) {
	var current domain.PSISample
	err := retry.Do(ctx, e.retry, func() error {
		var err error
		current, err = e.psi.Measure(ctx, pageURL)
		return err
	})
	return current, err
}

// metricObservations pairs the current sample with the prior one for both
// monitored metrics; the confirmer judges the breach.
func metricObservations(prior, current *domain.PSISample) []confirm.Observation {
	return []confirm.Observation{
		{
			URL:        current.URL,
			Metric:     domain.MetricPerformance,
			PriorRunID: prior.RunID,
			PriorValue: prior.PerformanceScore,
			Current:    current.PerformanceScore,
		},
		{
			URL:        current.URL,
			Metric:     domain.MetricLCP,
			PriorRunID: prior.RunID,
			PriorValue: prior.LCPMillis,
			Current:    current.LCPMillis,
		},
	}
}

// buildRunStats aggregates the crawl for run-over-run comparisons. The link
// audit only runs weekly; daily runs keep the counter at zero so daily
// comparisons stay quiet.
func (e *Engine) buildRunStats(ctx context.Context, run domain.RunContext, customer domain.Customer, captures []pageCapture) (*domain.RunStats, error) {
	stats := &domain.RunStats{
		CustomerID:          customer.ID,
		RunType:             run.RunType,
		RunID:               run.RunID,
		PagesCrawled:        len(captures),
		DuplicateTitleCount: duplicateTitleCount(captures),
		FinishedAt:          e.now().UTC(),
	}
	if run.RunType == domain.RunWeekly {
		broken, err := e.auditLinks(ctx, captures)
		if err != nil {
			return nil, err
		}
		stats.BrokenLinkCount = broken
	}
	return stats, nil
}

// duplicateTitleCount counts pages that share a title with at least one
// other successfully crawled page.
func duplicateTitleCount(captures []pageCapture) int {
	byTitle := map[string]int{}
	for _, c := range captures {
		s := c.snap
		if s.Failed() || s.ErrorStatus() {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(s.Title))
		if title == "" {
			continue
		}
		byTitle[title]++
	}
	total := 0
	for _, n := range byTitle {
		if n >= 2 {
			total += n
		}
	}
	return total
}

// auditLinks probes the distinct internal links found during the crawl and
// counts the broken ones. Links to pages already crawled reuse the crawl's
// status instead of a second request.
func (e *Engine) auditLinks(ctx context.Context, captures []pageCapture) (int, error) {
	statusByURL := make(map[string]int, len(captures))
	for _, c := range captures {
		if !c.snap.Failed() {
			statusByURL[c.snap.URL] = c.snap.StatusCode
		}
	}

	seen := map[string]struct{}{}
	var links []string
	for _, c := range captures {
		for _, link := range c.snap.InternalLinks {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
		}
	}
	sort.Strings(links)
	if len(links) > e.linkAuditLimit {
		links = links[:e.linkAuditLimit]
	}

	broken := 0
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		status, ok := statusByURL[link]
		if !ok {
			probed, err := e.checkLink(ctx, link)
			if err != nil {
				if ctx.Err() != nil {
					return 0, ctx.Err()
				}
				// Unreachable after retries counts as broken.
				broken++
				continue
			}
			status = probed
		}
		if status >= 400 {
			broken++
		}
	}
	return broken, nil
}

func (e *Engine) checkLink(ctx context.Context, link string) (int, error) {
	var status int
	err := retry.Do(ctx, e.retry, func() error {
		var err error
		status, err = e.fetcher.CheckLink(ctx, link)
		return err
	})
	return status, err
}
