// Package classify maps detected changes and confirmation transitions onto
// severity-tagged findings. Rules are ordered per change type and the first
// match wins, so no change ever produces two findings at different
// severities.
package classify

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

// Fallback thresholds for a zero-valued config.
const (
	defaultDrasticDropRatio = 0.30
	defaultStatusSpikeCount = 3
)

// Classifier applies one customer's thresholds to a run's evidence.
type Classifier struct {
	cfg domain.ClassificationConfig
}

// New builds a classifier, filling unset thresholds with defaults.
func New(cfg domain.ClassificationConfig) *Classifier {
	if cfg.SitemapDrasticDropRatio <= 0 {
		cfg.SitemapDrasticDropRatio = defaultDrasticDropRatio
	}
	if cfg.StatusSpikeCount <= 0 {
		cfg.StatusSpikeCount = defaultStatusSpikeCount
	}
	return &Classifier{cfg: cfg}
}

// Input is everything one run gathered for one customer.
type Input struct {
	CustomerID  string
	Run         domain.RunContext
	Changes     []domain.RawChange
	Transitions []domain.StateTransition
	KeyURLs     map[string]bool
	// Stats and PriorStats enable the run-over-run aggregate rules; either
	// may be nil.
	Stats      *domain.RunStats
	PriorStats *domain.RunStats
}

// Classify turns the run's evidence into findings. Output text depends only
// on the inputs, never on the clock, and ordering is deterministic:
// critical first, then warning, then info.
func (c *Classifier) Classify(in Input) []domain.Finding {
	var findings []domain.Finding
	add := func(sev domain.Severity, cat domain.Category, title, details, url string) {
		findings = append(findings, domain.Finding{
			CustomerID: in.CustomerID,
			RunType:    in.Run.RunType,
			Severity:   sev,
			Category:   cat,
			Title:      title,
			Details:    details,
			URL:        url,
			Date:       in.Run.Date(),
		})
	}

	// The spike rule consumes its member changes so they never double as
	// individual info findings.
	spikeCount, suppressed := c.statusSpike(in)
	if spikeCount > 0 {
		add(domain.SeverityCritical, domain.CategoryCrawlability,
			"Error status spike on key pages",
			fmt.Sprintf("%d key pages changed to an error status in one run", spikeCount), "")
	}

	for i, change := range in.Changes {
		if suppressed[i] {
			continue
		}
		sev, cat, title, details := c.classifyChange(change, in.KeyURLs[change.URL])
		if title == "" {
			continue
		}
		add(sev, cat, title, details, change.URL)
	}

	for _, transition := range in.Transitions {
		sev, cat, title, details := classifyTransition(transition)
		if title == "" {
			continue
		}
		add(sev, cat, title, details, transition.URL)
	}

	if in.Stats != nil && in.PriorStats != nil {
		if in.Stats.DuplicateTitleCount > in.PriorStats.DuplicateTitleCount {
			add(domain.SeverityWarning, domain.CategoryContent,
				"Duplicate titles increased",
				fmt.Sprintf("pages sharing a title went from %d to %d", in.PriorStats.DuplicateTitleCount, in.Stats.DuplicateTitleCount), "")
		}
		if in.Stats.BrokenLinkCount > in.PriorStats.BrokenLinkCount {
			add(domain.SeverityWarning, domain.CategoryLinks,
				"Broken internal links increased",
				fmt.Sprintf("broken internal links went from %d to %d", in.PriorStats.BrokenLinkCount, in.Stats.BrokenLinkCount), "")
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.URL < b.URL
	})
	return findings
}

// classifyChange ranks one change. An empty title means no finding.
func (c *Classifier) classifyChange(ch domain.RawChange, key bool) (domain.Severity, domain.Category, string, string) {
	switch ch.Type {
	case domain.MetaRobotsChanged:
		if ch.NoindexAdded && key {
			return domain.SeverityCritical, domain.CategoryIndexability,
				"Key page set to noindex",
				fmt.Sprintf("meta robots changed from %q to %q", ch.Old, ch.New)
		}
		if ch.NoindexAdded {
			return domain.SeverityInfo, domain.CategoryIndexability,
				"Page set to noindex",
				fmt.Sprintf("meta robots changed from %q to %q", ch.Old, ch.New)
		}
		if ch.NoindexRemoved {
			return domain.SeverityInfo, domain.CategoryIndexability,
				"Noindex removed",
				fmt.Sprintf("meta robots changed from %q to %q", ch.Old, ch.New)
		}
		return domain.SeverityInfo, domain.CategoryIndexability,
			"Meta robots changed",
			fmt.Sprintf("meta robots changed from %q to %q", ch.Old, ch.New)

	case domain.CanonicalChanged:
		if ch.CanonicalRemoved {
			return domain.SeverityCritical, domain.CategoryIndexability,
				"Canonical tag removed",
				fmt.Sprintf("canonical was %q and is now absent", ch.Old)
		}
		if ch.CanonicalOffDomain {
			return domain.SeverityCritical, domain.CategoryIndexability,
				"Canonical points off-domain",
				fmt.Sprintf("canonical changed from %q to %q", ch.Old, ch.New)
		}
		return domain.SeverityInfo, domain.CategoryIndexability,
			"Canonical changed",
			fmt.Sprintf("canonical changed from %q to %q", ch.Old, ch.New)

	case domain.RobotsBlocksKeyPath:
		return domain.SeverityCritical, domain.CategoryCrawlability,
			"robots.txt blocks key page",
			"a new robots.txt rule disallows this page for Googlebot"

	case domain.SitemapDisappeared:
		return domain.SeverityCritical, domain.CategoryCrawlability,
			"Sitemap disappeared",
			fmt.Sprintf("sitemap with %s URLs is no longer reachable", ch.Old)

	case domain.SitemapCountDropped:
		pct := int(math.Round(ch.DropRatio * 100))
		details := fmt.Sprintf("sitemap URL count fell from %s to %s", ch.Old, ch.New)
		if ch.DropRatio >= c.cfg.SitemapDrasticDropRatio {
			return domain.SeverityCritical, domain.CategoryCrawlability,
				fmt.Sprintf("Sitemap URL count dropped %d%%", pct), details
		}
		return domain.SeverityInfo, domain.CategoryCrawlability,
			fmt.Sprintf("Sitemap URL count dipped %d%%", pct), details

	case domain.TitleChanged:
		details := fmt.Sprintf("title changed from %q to %q", ch.Old, ch.New)
		if key {
			return domain.SeverityWarning, domain.CategoryContent, "Title changed on key page", details
		}
		return domain.SeverityInfo, domain.CategoryContent, "Title changed", details

	case domain.RedirectTargetChanged:
		return domain.SeverityWarning, domain.CategoryCrawlability,
			"Redirect target changed",
			fmt.Sprintf("final URL changed from %s to %s", ch.Old, ch.New)

	case domain.StatusChanged:
		return domain.SeverityInfo, domain.CategoryCrawlability,
			"HTTP status changed",
			fmt.Sprintf("HTTP status went from %s to %s", ch.Old, ch.New)

	case domain.ContentHashChanged:
		return domain.SeverityInfo, domain.CategoryContent,
			"Content changed",
			"normalized page content differs from the previous capture"

	case domain.FetchFailed:
		return domain.SeverityInfo, domain.CategoryCrawlability,
			"Page fetch failed",
			fmt.Sprintf("fetch failed with %s after retries", ch.New)

	case domain.RobotsDisappeared:
		return domain.SeverityInfo, domain.CategoryCrawlability,
			"robots.txt disappeared",
			"robots.txt is no longer reachable; crawlers treat this as allow-all"
	}
	return "", "", "", ""
}

// classifyTransition ranks one confirmer step. Critical fires only on the
// edge into confirmed; a regression that stays confirmed is not re-raised.
func classifyTransition(tr domain.StateTransition) (domain.Severity, domain.Category, string, string) {
	perf := tr.Metric == domain.MetricPerformance
	switch {
	case tr.To == domain.ConfirmConfirmed && tr.From != domain.ConfirmConfirmed:
		if perf {
			return domain.SeverityCritical, domain.CategoryPerformance,
				"Performance score drop confirmed",
				fmt.Sprintf("score fell from %.0f to %.0f and stayed down across consecutive runs", tr.Old, tr.New)
		}
		return domain.SeverityCritical, domain.CategoryPerformance,
			"LCP regression confirmed",
			fmt.Sprintf("largest contentful paint rose from %.0fms to %.0fms and stayed up across consecutive runs", tr.Old, tr.New)

	case tr.To == domain.ConfirmSuspected:
		if perf {
			return domain.SeverityInfo, domain.CategoryPerformance,
				"Performance score drop suspected",
				fmt.Sprintf("score fell from %.0f to %.0f; awaiting confirmation on the next run", tr.Old, tr.New)
		}
		return domain.SeverityInfo, domain.CategoryPerformance,
			"LCP increase suspected",
			fmt.Sprintf("largest contentful paint rose from %.0fms to %.0fms; awaiting confirmation on the next run", tr.Old, tr.New)

	case tr.To == domain.ConfirmClean && tr.From != domain.ConfirmClean:
		if perf {
			return domain.SeverityInfo, domain.CategoryPerformance,
				"Performance score recovered",
				fmt.Sprintf("score is back within threshold at %.0f", tr.New)
		}
		return domain.SeverityInfo, domain.CategoryPerformance,
			"LCP recovered",
			fmt.Sprintf("largest contentful paint is back within threshold at %.0fms", tr.New)
	}
	return "", "", "", ""
}

// statusSpike finds key pages that newly answer 4xx/5xx and, past the
// configured count, reports them as one aggregate. The member indexes are
// returned so the caller can drop their individual info findings.
func (c *Classifier) statusSpike(in Input) (int, map[int]bool) {
	var hits []int
	for i, ch := range in.Changes {
		if ch.Type != domain.StatusChanged || !in.KeyURLs[ch.URL] {
			continue
		}
		if code, err := strconv.Atoi(ch.New); err == nil && code >= 400 {
			hits = append(hits, i)
		}
	}
	if len(hits) < c.cfg.StatusSpikeCount {
		return 0, nil
	}
	suppressed := make(map[int]bool, len(hits))
	for _, i := range hits {
		suppressed[i] = true
	}
	return len(hits), suppressed
}
