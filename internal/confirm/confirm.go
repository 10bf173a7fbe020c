// Package confirm tracks consecutive performance-threshold breaches so a
// single noisy measurement never raises an alert by itself.
package confirm

import "github.com/jonathanavis96/ranksentinel-sub002/internal/domain"

// DefaultConfirmRuns is how many consecutive breaching runs confirm a
// regression.
const DefaultConfirmRuns = 2

// Confirmer advances per-URL, per-metric breach counters. A regression is
// confirmed only after confirmRuns consecutive breaching runs.
//
// The first breach is measured against the prior run's sample and records
// that sample as the chain's reference; later runs breach when they are
// still past the threshold relative to the same reference. A run back
// within threshold resets the chain, and so does a gap between the runs
// that observed the breaches. Re-executing the run that recorded the last
// breach judges the same reference again in place.
type Confirmer struct {
	confirmRuns      int
	perfDrop         float64
	lcpIncreaseMilli float64
}

// New builds a Confirmer from the customer's effective thresholds.
func New(cfg domain.ClassificationConfig) *Confirmer {
	runs := cfg.PSIConfirmRuns
	if runs < 1 {
		runs = DefaultConfirmRuns
	}
	return &Confirmer{
		confirmRuns:      runs,
		perfDrop:         cfg.PSIPerfDropThreshold,
		lcpIncreaseMilli: cfg.PSILCPIncreaseThresholdMS,
	}
}

// Observation is one metric reading paired with the prior run's reading.
// PriorRunID names the run the prior reading came from, which lets the
// confirmer notice gaps in the breach chain.
type Observation struct {
	URL        string
	Metric     domain.PSIMetric
	PriorRunID string
	PriorValue float64
	Current    float64
}

// Apply advances the stored state by one observation and reports the
// resulting transition. state may be nil for a URL and metric never seen
// before. The counter saturates at confirmRuns, so a sustained regression
// reports confirmed -> confirmed and is never re-raised until it clears.
func (c *Confirmer) Apply(state *domain.ConfirmationState, obs Observation, runID string) (domain.ConfirmationState, domain.StateTransition) {
	prev := domain.ConfirmationState{URL: obs.URL, Metric: obs.Metric}
	if state != nil {
		prev = *state
	}
	from := c.status(prev.ConsecutiveBreaches)

	// A chain is alive when the prior reading came from the run that
	// recorded the last breach, or when that run itself is executing again;
	// anything else restarts from scratch. A re-executed run re-judges the
	// stored reference without advancing the counter, so replaying it can
	// neither confirm a regression early nor clear one.
	replay := prev.ConsecutiveBreaches > 0 && prev.LastBreachRunID == runID
	chainAlive := replay || (prev.ConsecutiveBreaches > 0 && prev.LastBreachRunID == obs.PriorRunID)
	reference := obs.PriorValue
	if chainAlive {
		reference = prev.ReferenceValue
	}

	next := prev
	switch {
	case !c.breached(obs.Metric, reference, obs.Current):
		next.ConsecutiveBreaches = 0
		next.LastBreachRunID = ""
		next.ReferenceValue = 0
	case chainAlive:
		if !replay && next.ConsecutiveBreaches < c.confirmRuns {
			next.ConsecutiveBreaches++
		}
		next.LastBreachRunID = runID
	default:
		next.ConsecutiveBreaches = 1
		next.LastBreachRunID = runID
		next.ReferenceValue = reference
	}

	return next, domain.StateTransition{
		URL:    obs.URL,
		Metric: obs.Metric,
		From:   from,
		To:     c.status(next.ConsecutiveBreaches),
		Old:    reference,
		New:    obs.Current,
	}
}

func (c *Confirmer) breached(metric domain.PSIMetric, reference, current float64) bool {
	switch metric {
	case domain.MetricPerformance:
		return reference-current >= c.perfDrop
	case domain.MetricLCP:
		return current-reference >= c.lcpIncreaseMilli
	default:
		return false
	}
}

func (c *Confirmer) status(breaches int) domain.ConfirmationStatus {
	switch {
	case breaches <= 0:
		return domain.ConfirmClean
	case breaches < c.confirmRuns:
		return domain.ConfirmSuspected
	default:
		return domain.ConfirmConfirmed
	}
}
