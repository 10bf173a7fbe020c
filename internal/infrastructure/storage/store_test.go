package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(InMemory)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedCustomer(t *testing.T, store *Store, id string) {
	t.Helper()
	err := store.UpsertCustomer(context.Background(), domain.Customer{
		ID:     id,
		Name:   "Acme " + id,
		Domain: "example.com",
		Email:  id + "@example.com",
		Status: domain.CustomerActive,
	})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
}

func TestPersistIfNewDeduplicates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	finding := domain.Finding{
		CustomerID: "cust-1",
		RunType:    domain.RunDaily,
		Severity:   domain.SeverityCritical,
		Category:   domain.CategoryIndexability,
		Title:      "Key page set to noindex",
		Details:    "meta robots changed",
		URL:        "https://example.com/pricing",
		Date:       "2026-03-02",
	}

	created, err := store.PersistIfNew(ctx, finding)
	if err != nil {
		t.Fatalf("first persist: %v", err)
	}
	if !created {
		t.Fatal("first persist should create a row")
	}

	created, err = store.PersistIfNew(ctx, finding)
	if err != nil {
		t.Fatalf("second persist: %v", err)
	}
	if created {
		t.Fatal("identical key should be a no-op")
	}

	// Severity and details are not part of the identity.
	finding.Severity = domain.SeverityInfo
	finding.Details = "different details"
	created, err = store.PersistIfNew(ctx, finding)
	if err != nil {
		t.Fatalf("third persist: %v", err)
	}
	if created {
		t.Fatal("severity must not extend the idempotency key")
	}

	listed, err := store.ListFindings(ctx, "cust-1", domain.RunDaily, "2026-03-02")
	if err != nil {
		t.Fatalf("list findings: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one stored finding, got %d", len(listed))
	}
	if listed[0].Severity != domain.SeverityCritical {
		t.Fatalf("first write should win: %+v", listed[0])
	}
}

func TestPersistIfNewSeparatesDates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	finding := domain.Finding{
		CustomerID: "cust-1",
		RunType:    domain.RunDaily,
		Severity:   domain.SeverityWarning,
		Category:   domain.CategoryContent,
		Title:      "Title changed on key page",
		URL:        "https://example.com/",
		Date:       "2026-03-02",
	}
	if _, err := store.PersistIfNew(ctx, finding); err != nil {
		t.Fatalf("persist day one: %v", err)
	}

	finding.Date = "2026-03-03"
	created, err := store.PersistIfNew(ctx, finding)
	if err != nil {
		t.Fatalf("persist day two: %v", err)
	}
	if !created {
		t.Fatal("a new date is a new finding")
	}
}

func TestPriorSnapshotLookups(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	fetchedAt := time.Date(2026, time.March, 2, 6, 0, 0, 0, time.UTC)

	prior, err := store.PriorSnapshot(ctx, "cust-1", "https://example.com/", domain.RunDaily, "run-1")
	if err != nil {
		t.Fatalf("lookup on empty store: %v", err)
	}
	if prior != nil {
		t.Fatalf("expected nil for never-seen URL, got %+v", prior)
	}

	first := &domain.Snapshot{
		CustomerID:    "cust-1",
		URL:           "https://example.com/",
		RunType:       domain.RunDaily,
		RunID:         "run-1",
		FetchedAt:     fetchedAt,
		StatusCode:    200,
		FinalURL:      "https://example.com/",
		RedirectChain: domain.StringList{},
		Title:         "Home",
		Canonical:     "https://example.com/",
		MetaRobots:    "index,follow",
		ContentHash:   "hash-1",
		InternalLinks: domain.StringList{"https://example.com/a", "https://example.com/b"},
	}
	if err := store.SaveSnapshot(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second := *first
	second.RunID = "run-2"
	second.FetchedAt = fetchedAt.Add(24 * time.Hour)
	second.Title = "Home v2"
	if err := store.SaveSnapshot(ctx, &second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	prior, err = store.PriorSnapshot(ctx, "cust-1", "https://example.com/", domain.RunDaily, "run-2")
	if err != nil {
		t.Fatalf("prior lookup: %v", err)
	}
	if prior == nil || prior.RunID != "run-1" {
		t.Fatalf("expected run-1 as prior, got %+v", prior)
	}
	if prior.Title != "Home" || prior.ContentHash != "hash-1" {
		t.Fatalf("prior fields mangled: %+v", prior)
	}
	if len(prior.InternalLinks) != 2 || prior.InternalLinks[0] != "https://example.com/a" {
		t.Fatalf("internal links did not round-trip: %+v", prior.InternalLinks)
	}

	// A different run type never sees daily snapshots.
	prior, err = store.PriorSnapshot(ctx, "cust-1", "https://example.com/", domain.RunWeekly, "run-3")
	if err != nil {
		t.Fatalf("weekly lookup: %v", err)
	}
	if prior != nil {
		t.Fatalf("weekly lookup leaked a daily snapshot: %+v", prior)
	}
}

func TestSaveSnapshotRerunReplacesOwnRecord(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	snap := &domain.Snapshot{
		CustomerID: "cust-1",
		URL:        "https://example.com/",
		RunType:    domain.RunDaily,
		RunID:      "run-1",
		FetchedAt:  time.Now().UTC(),
		StatusCode: 500,
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("first save: %v", err)
	}
	snap.StatusCode = 200
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("re-run save: %v", err)
	}

	got, err := store.PriorSnapshot(ctx, "cust-1", "https://example.com/", domain.RunDaily, "other-run")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || got.StatusCode != 200 {
		t.Fatalf("re-run should replace its own record: %+v", got)
	}
}

func TestFailedSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	snap := &domain.Snapshot{
		CustomerID: "cust-1",
		URL:        "https://example.com/down",
		RunType:    domain.RunDaily,
		RunID:      "run-1",
		FetchedAt:  time.Now().UTC(),
		ErrorType:  "timeout",
		Error:      "context deadline exceeded",
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.PriorSnapshot(ctx, "cust-1", "https://example.com/down", domain.RunDaily, "run-2")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil || !got.Failed() || got.StatusCode != 0 || got.ContentHash != "" {
		t.Fatalf("failure shape lost: %+v", got)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	art := &domain.Artifact{
		CustomerID: "cust-1",
		Type:       domain.ArtifactSitemap,
		RunID:      "run-1",
		FetchedAt:  time.Now().UTC(),
		SHA256:     "abc",
		Content:    "<urlset/>",
	}
	art.SetURLCount(321)
	if err := store.SaveArtifact(ctx, art); err != nil {
		t.Fatalf("save artifact: %v", err)
	}

	got, err := store.PriorArtifact(ctx, "cust-1", domain.ArtifactSitemap, "run-2")
	if err != nil {
		t.Fatalf("prior artifact: %v", err)
	}
	if got == nil || got.URLCount() != 321 {
		t.Fatalf("meta did not round-trip: %+v", got)
	}

	// Robots and sitemap histories are independent.
	robots, err := store.PriorArtifact(ctx, "cust-1", domain.ArtifactRobots, "run-2")
	if err != nil {
		t.Fatalf("robots lookup: %v", err)
	}
	if robots != nil {
		t.Fatalf("type filter leaked: %+v", robots)
	}
}

func TestConfirmationStateRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	state, err := store.ConfirmationState(ctx, "cust-1", "https://example.com/", domain.MetricLCP)
	if err != nil {
		t.Fatalf("lookup unseen: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil for unseen pair, got %+v", state)
	}

	save := &domain.ConfirmationState{
		CustomerID:          "cust-1",
		URL:                 "https://example.com/",
		Metric:              domain.MetricLCP,
		ConsecutiveBreaches: 1,
		LastBreachRunID:     "run-9",
		ReferenceValue:      2150,
	}
	if err := store.SaveConfirmationState(ctx, save); err != nil {
		t.Fatalf("save: %v", err)
	}

	save.ConsecutiveBreaches = 2
	save.LastBreachRunID = "run-10"
	if err := store.SaveConfirmationState(ctx, save); err != nil {
		t.Fatalf("update: %v", err)
	}

	state, err = store.ConfirmationState(ctx, "cust-1", "https://example.com/", domain.MetricLCP)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if state == nil || state.ConsecutiveBreaches != 2 || state.LastBreachRunID != "run-10" {
		t.Fatalf("state did not round-trip: %+v", state)
	}
	if state.ReferenceValue != 2150 {
		t.Fatalf("reference value lost: %+v", state)
	}

	// The performance metric for the same URL is separate state.
	perf, err := store.ConfirmationState(ctx, "cust-1", "https://example.com/", domain.MetricPerformance)
	if err != nil {
		t.Fatalf("perf lookup: %v", err)
	}
	if perf != nil {
		t.Fatalf("metric filter leaked: %+v", perf)
	}
}

func TestPSISampleAndRunStatsPriors(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	sample := &domain.PSISample{
		CustomerID:       "cust-1",
		URL:              "https://example.com/",
		RunID:            "run-1",
		FetchedAt:        time.Now().UTC(),
		PerformanceScore: 91,
		LCPMillis:        1900,
	}
	if err := store.SavePSISample(ctx, sample); err != nil {
		t.Fatalf("save sample: %v", err)
	}

	prior, err := store.PriorPSISample(ctx, "cust-1", "https://example.com/", "run-2")
	if err != nil {
		t.Fatalf("prior sample: %v", err)
	}
	if prior == nil || prior.PerformanceScore != 91 || prior.LCPMillis != 1900 {
		t.Fatalf("sample did not round-trip: %+v", prior)
	}

	stats := &domain.RunStats{
		CustomerID:          "cust-1",
		RunType:             domain.RunWeekly,
		RunID:               "run-1",
		PagesCrawled:        80,
		DuplicateTitleCount: 4,
		BrokenLinkCount:     2,
		FinishedAt:          time.Now().UTC(),
	}
	if err := store.SaveRunStats(ctx, stats); err != nil {
		t.Fatalf("save stats: %v", err)
	}

	priorStats, err := store.PriorRunStats(ctx, "cust-1", domain.RunWeekly, "run-2")
	if err != nil {
		t.Fatalf("prior stats: %v", err)
	}
	if priorStats == nil || priorStats.DuplicateTitleCount != 4 {
		t.Fatalf("stats did not round-trip: %+v", priorStats)
	}

	if priorDaily, _ := store.PriorRunStats(ctx, "cust-1", domain.RunDaily, "run-2"); priorDaily != nil {
		t.Fatalf("run type filter leaked: %+v", priorDaily)
	}
}

func TestCustomerLifecycleAndPurge(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	seedCustomer(t, store, "cust-1")
	seedCustomer(t, store, "cust-2")

	if err := store.UpsertTarget(ctx, domain.Target{CustomerID: "cust-1", URL: "https://example.com/", IsKey: true}); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	active, err := store.ListActiveCustomers(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected two active customers, got %d", len(active))
	}

	cancelledAt := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	cancelled := active[0]
	cancelled.Status = domain.CustomerCancelled
	cancelled.CancelledAt = &cancelledAt
	if err := store.UpsertCustomer(ctx, cancelled); err != nil {
		t.Fatalf("cancel customer: %v", err)
	}

	active, err = store.ListActiveCustomers(ctx)
	if err != nil {
		t.Fatalf("list active after cancel: %v", err)
	}
	if len(active) != 1 || active[0].ID != "cust-2" {
		t.Fatalf("cancelled customer still active: %+v", active)
	}

	// Not yet past the cutoff.
	expired, err := store.ListCancelledBefore(ctx, cancelledAt.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list cancelled: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("customer not yet expired: %+v", expired)
	}

	expired, err = store.ListCancelledBefore(ctx, cancelledAt.Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("list cancelled: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "cust-1" {
		t.Fatalf("expected cust-1 expired, got %+v", expired)
	}

	// Seed rows across the data tables, then purge.
	if err := store.SaveSnapshot(ctx, &domain.Snapshot{
		CustomerID: "cust-1", URL: "https://example.com/", RunType: domain.RunDaily,
		RunID: "run-1", FetchedAt: time.Now().UTC(), StatusCode: 200,
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	if _, err := store.PersistIfNew(ctx, domain.Finding{
		CustomerID: "cust-1", RunType: domain.RunDaily, Severity: domain.SeverityInfo,
		Category: domain.CategoryContent, Title: "Content changed", Date: "2026-03-02",
	}); err != nil {
		t.Fatalf("seed finding: %v", err)
	}

	if err := store.PurgeCustomerData(ctx, "cust-1"); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if snap, _ := store.PriorSnapshot(ctx, "cust-1", "https://example.com/", domain.RunDaily, "x"); snap != nil {
		t.Fatalf("snapshot survived purge: %+v", snap)
	}
	findings, err := store.ListFindings(ctx, "cust-1", domain.RunDaily, "2026-03-02")
	if err != nil {
		t.Fatalf("list findings after purge: %v", err)
	}
	if len(findings) != 0 {
		t.Fatalf("findings survived purge: %+v", findings)
	}
	targets, err := store.ListTargets(ctx, "cust-1")
	if err != nil {
		t.Fatalf("list targets after purge: %v", err)
	}
	if len(targets) != 0 {
		t.Fatalf("targets survived purge: %+v", targets)
	}
	expired, err = store.ListCancelledBefore(ctx, cancelledAt.Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("list cancelled after purge: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("customer row survived purge: %+v", expired)
	}

	// The other tenant is untouched.
	if _, err := store.ListTargets(ctx, "cust-2"); err != nil {
		t.Fatalf("cust-2 read after purge: %v", err)
	}
}

func TestCustomerSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	perfDrop := 15.0
	confirmRuns := 3
	err := store.UpsertCustomer(ctx, domain.Customer{
		ID:     "cust-1",
		Name:   "Acme",
		Domain: "example.com",
		Email:  "owner@example.com",
		Status: domain.CustomerActive,
		Settings: domain.Settings{
			PSIPerfDropThreshold: &perfDrop,
			PSIConfirmRuns:       &confirmRuns,
		},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	customers, err := store.ListActiveCustomers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(customers) != 1 {
		t.Fatalf("expected one customer, got %d", len(customers))
	}
	got := customers[0].Settings
	if got.PSIPerfDropThreshold == nil || *got.PSIPerfDropThreshold != 15 {
		t.Fatalf("perf threshold lost: %+v", got)
	}
	if got.PSIConfirmRuns == nil || *got.PSIConfirmRuns != 3 {
		t.Fatalf("confirm runs lost: %+v", got)
	}
	if got.PSILCPIncreaseThresholdMS != nil || got.WeeklyBudget != nil {
		t.Fatalf("unset settings should stay nil: %+v", got)
	}
}
