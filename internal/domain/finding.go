package domain

// Severity ranks findings for reporting.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank orders severities with critical first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Category groups findings by the site dimension they affect.
type Category string

const (
	CategoryIndexability Category = "indexability"
	CategoryCrawlability Category = "crawlability"
	CategoryLinks        Category = "links"
	CategoryContent      Category = "content"
	CategoryPerformance  Category = "performance"
)

// Finding is a classified observation surfaced to the customer. The tuple
// (customer, run type, category, title, url, date) identifies a finding;
// persisting the same tuple twice is a no-op.
type Finding struct {
	ID         int64    `db:"id"`
	CustomerID string   `db:"customer_id"`
	RunType    RunType  `db:"run_type"`
	Severity   Severity `db:"severity"`
	Category   Category `db:"category"`
	Title      string   `db:"title"`
	Details    string   `db:"details"`
	URL        string   `db:"url"`
	// Date is the run's calendar date in UTC, YYYY-MM-DD.
	Date string `db:"date"`
}

// CountBySeverity tallies findings for summary lines.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, 3)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
