package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

var snapshotColumns = []string{
	"id", "customer_id", "url", "run_type", "run_id", "fetched_at",
	"status_code", "final_url", "redirect_chain", "title", "canonical",
	"meta_robots", "normalized_content_hash", "internal_links",
	"error_type", "error",
}

// SaveSnapshot appends one fetch record. Snapshots are immutable between
// runs; the upsert only replaces a record when the same run re-executes.
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	const query = `INSERT INTO snapshots
	(customer_id, url, run_type, run_id, fetched_at, status_code, final_url,
	 redirect_chain, title, canonical, meta_robots, normalized_content_hash,
	 internal_links, error_type, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (customer_id, url, run_id) DO UPDATE SET
	fetched_at = excluded.fetched_at,
	status_code = excluded.status_code,
	final_url = excluded.final_url,
	redirect_chain = excluded.redirect_chain,
	title = excluded.title,
	canonical = excluded.canonical,
	meta_robots = excluded.meta_robots,
	normalized_content_hash = excluded.normalized_content_hash,
	internal_links = excluded.internal_links,
	error_type = excluded.error_type,
	error = excluded.error`

	_, err := s.db.ExecContext(ctx, query,
		snap.CustomerID,
		snap.URL,
		snap.RunType,
		snap.RunID,
		snap.FetchedAt,
		snap.StatusCode,
		snap.FinalURL,
		snap.RedirectChain,
		snap.Title,
		snap.Canonical,
		snap.MetaRobots,
		snap.ContentHash,
		snap.InternalLinks,
		snap.ErrorType,
		snap.Error,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// PriorSnapshot returns the most recent capture of url before the given
// run, or (nil, nil) when the URL has never been seen. Excluding the
// current run keeps re-executions comparing against the same baseline.
func (s *Store) PriorSnapshot(ctx context.Context, customerID, url string, runType domain.RunType, excludeRunID string) (*domain.Snapshot, error) {
	query, args, err := qb.Select(snapshotColumns...).
		From("snapshots").
		Where(sq.Eq{"customer_id": customerID, "url": url, "run_type": runType}).
		Where(sq.NotEq{"run_id": excludeRunID}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prior snapshot query: %w", err)
	}

	var snap domain.Snapshot
	if err := s.db.GetContext(ctx, &snap, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load prior snapshot: %w", err)
	}
	return &snap, nil
}

var artifactColumns = []string{
	"id", "customer_id", "artifact_type", "run_id", "fetched_at",
	"sha256", "content", "meta",
}

// SaveArtifact appends one robots or sitemap capture.
func (s *Store) SaveArtifact(ctx context.Context, art *domain.Artifact) error {
	const query = `INSERT INTO artifacts
	(customer_id, artifact_type, run_id, fetched_at, sha256, content, meta)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (customer_id, artifact_type, run_id) DO UPDATE SET
	fetched_at = excluded.fetched_at,
	sha256 = excluded.sha256,
	content = excluded.content,
	meta = excluded.meta`

	_, err := s.db.ExecContext(ctx, query,
		art.CustomerID,
		art.Type,
		art.RunID,
		art.FetchedAt,
		art.SHA256,
		art.Content,
		art.Meta,
	)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// PriorArtifact returns the most recent earlier capture of the given type,
// or (nil, nil) when none exists.
func (s *Store) PriorArtifact(ctx context.Context, customerID string, typ domain.ArtifactType, excludeRunID string) (*domain.Artifact, error) {
	query, args, err := qb.Select(artifactColumns...).
		From("artifacts").
		Where(sq.Eq{"customer_id": customerID, "artifact_type": typ}).
		Where(sq.NotEq{"run_id": excludeRunID}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prior artifact query: %w", err)
	}

	var art domain.Artifact
	if err := s.db.GetContext(ctx, &art, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load prior artifact: %w", err)
	}
	return &art, nil
}

// SavePSISample appends one performance measurement.
func (s *Store) SavePSISample(ctx context.Context, sample *domain.PSISample) error {
	const query = `INSERT INTO psi_samples
	(customer_id, url, run_id, fetched_at, performance_score, lcp_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (customer_id, url, run_id) DO UPDATE SET
	fetched_at = excluded.fetched_at,
	performance_score = excluded.performance_score,
	lcp_ms = excluded.lcp_ms`

	_, err := s.db.ExecContext(ctx, query,
		sample.CustomerID,
		sample.URL,
		sample.RunID,
		sample.FetchedAt,
		sample.PerformanceScore,
		sample.LCPMillis,
	)
	if err != nil {
		return fmt.Errorf("save psi sample: %w", err)
	}
	return nil
}

// PriorPSISample returns the most recent earlier measurement of url, or
// (nil, nil) when this is the first one.
func (s *Store) PriorPSISample(ctx context.Context, customerID, url, excludeRunID string) (*domain.PSISample, error) {
	query, args, err := qb.Select("id", "customer_id", "url", "run_id", "fetched_at", "performance_score", "lcp_ms").
		From("psi_samples").
		Where(sq.Eq{"customer_id": customerID, "url": url}).
		Where(sq.NotEq{"run_id": excludeRunID}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prior sample query: %w", err)
	}

	var sample domain.PSISample
	if err := s.db.GetContext(ctx, &sample, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load prior psi sample: %w", err)
	}
	return &sample, nil
}

// ConfirmationState loads the breach counter for one URL and metric, or
// (nil, nil) when the pair has never breached before.
func (s *Store) ConfirmationState(ctx context.Context, customerID, url string, metric domain.PSIMetric) (*domain.ConfirmationState, error) {
	query, args, err := qb.Select("customer_id", "url", "metric", "consecutive_breaches", "last_breach_run_id", "reference_value").
		From("psi_confirmation_state").
		Where(sq.Eq{"customer_id": customerID, "url": url, "metric": metric}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build confirmation query: %w", err)
	}

	var state domain.ConfirmationState
	if err := s.db.GetContext(ctx, &state, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load confirmation state: %w", err)
	}
	return &state, nil
}

// SaveConfirmationState upserts the breach counter for one URL and metric.
func (s *Store) SaveConfirmationState(ctx context.Context, state *domain.ConfirmationState) error {
	const query = `INSERT INTO psi_confirmation_state
	(customer_id, url, metric, consecutive_breaches, last_breach_run_id, reference_value)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (customer_id, url, metric) DO UPDATE SET
	consecutive_breaches = excluded.consecutive_breaches,
	last_breach_run_id = excluded.last_breach_run_id,
	reference_value = excluded.reference_value`

	_, err := s.db.ExecContext(ctx, query,
		state.CustomerID,
		state.URL,
		state.Metric,
		state.ConsecutiveBreaches,
		state.LastBreachRunID,
		state.ReferenceValue,
	)
	if err != nil {
		return fmt.Errorf("save confirmation state: %w", err)
	}
	return nil
}

// SaveRunStats upserts one run's aggregates for a customer.
func (s *Store) SaveRunStats(ctx context.Context, stats *domain.RunStats) error {
	const query = `INSERT INTO run_stats
	(customer_id, run_type, run_id, pages_crawled, duplicate_title_count,
	 broken_link_count, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (customer_id, run_type, run_id) DO UPDATE SET
	pages_crawled = excluded.pages_crawled,
	duplicate_title_count = excluded.duplicate_title_count,
	broken_link_count = excluded.broken_link_count,
	finished_at = excluded.finished_at`

	_, err := s.db.ExecContext(ctx, query,
		stats.CustomerID,
		stats.RunType,
		stats.RunID,
		stats.PagesCrawled,
		stats.DuplicateTitleCount,
		stats.BrokenLinkCount,
		stats.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save run stats: %w", err)
	}
	return nil
}

// PriorRunStats returns the previous run's aggregates for the same run
// type, or (nil, nil) when none exist.
func (s *Store) PriorRunStats(ctx context.Context, customerID string, runType domain.RunType, excludeRunID string) (*domain.RunStats, error) {
	query, args, err := qb.Select("id", "customer_id", "run_type", "run_id", "pages_crawled",
		"duplicate_title_count", "broken_link_count", "finished_at").
		From("run_stats").
		Where(sq.Eq{"customer_id": customerID, "run_type": runType}).
		Where(sq.NotEq{"run_id": excludeRunID}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build prior stats query: %w", err)
	}

	var stats domain.RunStats
	if err := s.db.GetContext(ctx, &stats, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load prior run stats: %w", err)
	}
	return &stats, nil
}
