package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunType selects the crawl cadence. Daily runs cover key URLs only;
// weekly runs crawl the sampled universe plus site-level artifacts.
type RunType string

const (
	RunDaily  RunType = "daily"
	RunWeekly RunType = "weekly"
)

// Valid reports whether the value is a known run type.
func (t RunType) Valid() bool {
	return t == RunDaily || t == RunWeekly
}

// RunContext identifies one engine execution. It is passed by value into
// every stage so nothing reads the clock or process globals directly.
type RunContext struct {
	RunID       string
	RunType     RunType
	TriggeredAt time.Time
}

// NewRunContext stamps a fresh run identifier for a trigger time.
func NewRunContext(runType RunType, triggeredAt time.Time) RunContext {
	return RunContext{
		RunID:       uuid.NewString(),
		RunType:     runType,
		TriggeredAt: triggeredAt,
	}
}

// Date returns the run's calendar date in UTC, used in finding identity.
func (r RunContext) Date() string {
	return r.TriggeredAt.UTC().Format("2006-01-02")
}

// WeekSeed returns the ISO year-week token that drives the rotating part
// of the weekly sample.
func (r RunContext) WeekSeed() string {
	year, week := r.TriggeredAt.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// RunStats aggregates one customer's crawl so the next run of the same type
// can compare against it.
type RunStats struct {
	ID                  int64     `db:"id"`
	CustomerID          string    `db:"customer_id"`
	RunType             RunType   `db:"run_type"`
	RunID               string    `db:"run_id"`
	PagesCrawled        int       `db:"pages_crawled"`
	DuplicateTitleCount int       `db:"duplicate_title_count"`
	BrokenLinkCount     int       `db:"broken_link_count"`
	FinishedAt          time.Time `db:"finished_at"`
}

// RunResult summarizes one batch execution for operator visibility.
type RunResult struct {
	RunID              string
	RunType            RunType
	Processed          int
	Succeeded          int
	Failed             int
	FailedCustomerIDs  []string
	FindingsBySeverity map[Severity]int
}
