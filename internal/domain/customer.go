package domain

import "time"

// CustomerStatus gates whether a customer participates in runs.
type CustomerStatus string

const (
	CustomerActive    CustomerStatus = "active"
	CustomerCancelled CustomerStatus = "cancelled"
)

// Customer is a monitored tenant: one site, one report recipient.
type Customer struct {
	ID          string
	Name        string
	Domain      string
	Email       string
	Status      CustomerStatus
	CancelledAt *time.Time
	Settings    Settings
}

// Settings holds per-customer overrides of the product defaults. Nil fields
// fall back to the configured defaults at run time.
type Settings struct {
	PSIPerfDropThreshold      *float64
	PSILCPIncreaseThresholdMS *float64
	PSIConfirmRuns            *int
	WeeklyBudget              *int
}

// Target is one customer URL under watch. Key targets are crawled every day
// and carry performance monitoring; the rest enter the weekly sample pool.
type Target struct {
	CustomerID string `db:"customer_id"`
	URL        string `db:"url"`
	IsKey      bool   `db:"is_key"`
}

// ClassificationConfig bundles the thresholds the differ, confirmer and
// classifier consult when judging one customer's run.
type ClassificationConfig struct {
	// PSIPerfDropThreshold is the performance-score drop (in points) that
	// counts as a breach.
	PSIPerfDropThreshold float64
	// PSILCPIncreaseThresholdMS is the LCP increase (in milliseconds) that
	// counts as a breach.
	PSILCPIncreaseThresholdMS float64
	// PSIConfirmRuns is how many consecutive breaching runs confirm a
	// performance regression.
	PSIConfirmRuns int
	// SitemapDrasticDropRatio separates a critical sitemap shrink from
	// ordinary churn.
	SitemapDrasticDropRatio float64
	// StatusSpikeCount is the number of key pages newly answering 4xx/5xx
	// in one run that counts as a spike.
	StatusSpikeCount int
}

// WithOverrides applies a customer's settings on top of the defaults.
func (c ClassificationConfig) WithOverrides(s Settings) ClassificationConfig {
	out := c
	if s.PSIPerfDropThreshold != nil {
		out.PSIPerfDropThreshold = *s.PSIPerfDropThreshold
	}
	if s.PSILCPIncreaseThresholdMS != nil {
		out.PSILCPIncreaseThresholdMS = *s.PSILCPIncreaseThresholdMS
	}
	if s.PSIConfirmRuns != nil {
		out.PSIConfirmRuns = *s.PSIConfirmRuns
	}
	return out
}
