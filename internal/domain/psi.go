package domain

import "time"

// PSIMetric names a monitored performance metric.
type PSIMetric string

const (
	MetricPerformance PSIMetric = "performance"
	MetricLCP         PSIMetric = "lcp"
)

// PSISample is one performance measurement of a key URL in one run.
type PSISample struct {
	ID         int64     `db:"id"`
	CustomerID string    `db:"customer_id"`
	URL        string    `db:"url"`
	RunID      string    `db:"run_id"`
	FetchedAt  time.Time `db:"fetched_at"`
	// PerformanceScore is the 0-100 category score.
	PerformanceScore float64 `db:"performance_score"`
	LCPMillis        float64 `db:"lcp_ms"`
}

// ConfirmationStatus is how far a metric has moved through the
// confirmation window.
type ConfirmationStatus string

const (
	ConfirmClean     ConfirmationStatus = "clean"
	ConfirmSuspected ConfirmationStatus = "suspected"
	ConfirmConfirmed ConfirmationStatus = "confirmed"
)

// ConfirmationState is the only mutable cross-run memory the pipeline
// keeps: the count of consecutive threshold breaches per URL and metric.
// ReferenceValue is the metric level measured just before the breach chain
// started; every run in the chain is judged against it, so a drop that
// holds steady still confirms.
type ConfirmationState struct {
	CustomerID          string    `db:"customer_id"`
	URL                 string    `db:"url"`
	Metric              PSIMetric `db:"metric"`
	ConsecutiveBreaches int       `db:"consecutive_breaches"`
	LastBreachRunID     string    `db:"last_breach_run_id"`
	ReferenceValue      float64   `db:"reference_value"`
}

// StateTransition records one confirmer step for classification. Old and
// New carry the compared metric values.
type StateTransition struct {
	URL    string
	Metric PSIMetric
	From   ConfirmationStatus
	To     ConfirmationStatus
	Old    float64
	New    float64
}
