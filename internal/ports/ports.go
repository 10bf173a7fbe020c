package ports

import (
	"context"
	"time"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

// PageFetcher retrieves customer pages and produces raw snapshot payloads.
// Error statuses (4xx/5xx) are results, not errors; only transport-level
// failures return an error.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (domain.FetchResult, error)
	// CheckLink is a lightweight reachability probe for the link audit.
	CheckLink(ctx context.Context, url string) (int, error)
}

// ArtifactFetcher retrieves the site-level files tracked run over run.
type ArtifactFetcher interface {
	FetchRobots(ctx context.Context, siteDomain string) (domain.ArtifactPayload, error)
	FetchSitemap(ctx context.Context, siteDomain string) (domain.ArtifactPayload, error)
}

// PSIClient measures page performance for key URLs.
type PSIClient interface {
	Measure(ctx context.Context, url string) (domain.PSISample, error)
}

// Reporter delivers finding digests to customers and alerts to operators.
type Reporter interface {
	SendFindings(ctx context.Context, customer domain.Customer, run domain.RunContext, findings []domain.Finding) error
	SendOperatorAlert(ctx context.Context, result domain.RunResult) error
}

// CustomerStore reads tenants and their monitored targets.
type CustomerStore interface {
	ListActiveCustomers(ctx context.Context) ([]domain.Customer, error)
	ListCancelledBefore(ctx context.Context, cutoff time.Time) ([]domain.Customer, error)
	ListTargets(ctx context.Context, customerID string) ([]domain.Target, error)
}

// SnapshotStore persists fetch results and serves prior-run lookups.
// Prior lookups return (nil, nil) when no earlier capture exists.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error
	PriorSnapshot(ctx context.Context, customerID, url string, runType domain.RunType, excludeRunID string) (*domain.Snapshot, error)
}

// ArtifactStore persists robots and sitemap captures per run.
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, art *domain.Artifact) error
	PriorArtifact(ctx context.Context, customerID string, typ domain.ArtifactType, excludeRunID string) (*domain.Artifact, error)
}

// PSIStore persists performance samples.
type PSIStore interface {
	SavePSISample(ctx context.Context, sample *domain.PSISample) error
	PriorPSISample(ctx context.Context, customerID, url, excludeRunID string) (*domain.PSISample, error)
}

// ConfirmationStateStore persists the per-metric breach counters.
// Lookup returns (nil, nil) for a URL/metric never seen before.
type ConfirmationStateStore interface {
	ConfirmationState(ctx context.Context, customerID, url string, metric domain.PSIMetric) (*domain.ConfirmationState, error)
	SaveConfirmationState(ctx context.Context, state *domain.ConfirmationState) error
}

// FindingStore persists findings at most once per idempotency key.
type FindingStore interface {
	// PersistIfNew inserts the finding and reports whether a row was
	// created; an existing key makes it a no-op.
	PersistIfNew(ctx context.Context, f domain.Finding) (bool, error)
	ListFindings(ctx context.Context, customerID string, runType domain.RunType, date string) ([]domain.Finding, error)
}

// RunStatsStore persists per-run aggregates for run-over-run rules.
type RunStatsStore interface {
	SaveRunStats(ctx context.Context, stats *domain.RunStats) error
	PriorRunStats(ctx context.Context, customerID string, runType domain.RunType, excludeRunID string) (*domain.RunStats, error)
}

// Purger removes all stored data of one customer.
type Purger interface {
	PurgeCustomerData(ctx context.Context, customerID string) error
}

// Scheduler drives recurring runs in schedule mode.
type Scheduler interface {
	Schedule(spec string, job func(time.Time)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
