// Package storage implements every persistence port on a single SQLite
// database, which keeps a whole deployment inside one file.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/ports"
)

// InMemory is the path for an ephemeral database, used by tests.
const InMemory = ":memory:"

var qb = sq.StatementBuilder

// schema bootstraps the database. Every statement is idempotent so opening
// an existing file is safe.
const schema = `
CREATE TABLE IF NOT EXISTS customers (
	id                            TEXT PRIMARY KEY,
	name                          TEXT NOT NULL,
	domain                        TEXT NOT NULL,
	email                         TEXT NOT NULL,
	status                        TEXT NOT NULL DEFAULT 'active',
	cancelled_at                  TIMESTAMP,
	psi_perf_drop_threshold       REAL,
	psi_lcp_increase_threshold_ms REAL,
	psi_confirm_runs              INTEGER,
	weekly_budget                 INTEGER
);

CREATE TABLE IF NOT EXISTS targets (
	customer_id TEXT NOT NULL REFERENCES customers(id),
	url         TEXT NOT NULL,
	is_key      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (customer_id, url)
);

CREATE TABLE IF NOT EXISTS snapshots (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id             TEXT NOT NULL,
	url                     TEXT NOT NULL,
	run_type                TEXT NOT NULL,
	run_id                  TEXT NOT NULL,
	fetched_at              TIMESTAMP NOT NULL,
	status_code             INTEGER NOT NULL DEFAULT 0,
	final_url               TEXT NOT NULL DEFAULT '',
	redirect_chain          TEXT NOT NULL DEFAULT '[]',
	title                   TEXT NOT NULL DEFAULT '',
	canonical               TEXT NOT NULL DEFAULT '',
	meta_robots             TEXT NOT NULL DEFAULT '',
	normalized_content_hash TEXT NOT NULL DEFAULT '',
	internal_links          TEXT NOT NULL DEFAULT '[]',
	error_type              TEXT NOT NULL DEFAULT '',
	error                   TEXT NOT NULL DEFAULT '',
	UNIQUE (customer_id, url, run_id)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_prior
	ON snapshots (customer_id, url, run_type, id);

CREATE TABLE IF NOT EXISTS artifacts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id   TEXT NOT NULL,
	artifact_type TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	fetched_at    TIMESTAMP NOT NULL,
	sha256        TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	meta          TEXT NOT NULL DEFAULT '{}',
	UNIQUE (customer_id, artifact_type, run_id)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_prior
	ON artifacts (customer_id, artifact_type, id);

CREATE TABLE IF NOT EXISTS psi_samples (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id       TEXT NOT NULL,
	url               TEXT NOT NULL,
	run_id            TEXT NOT NULL,
	fetched_at        TIMESTAMP NOT NULL,
	performance_score REAL NOT NULL DEFAULT 0,
	lcp_ms            REAL NOT NULL DEFAULT 0,
	UNIQUE (customer_id, url, run_id)
);

CREATE TABLE IF NOT EXISTS psi_confirmation_state (
	customer_id          TEXT NOT NULL,
	url                  TEXT NOT NULL,
	metric               TEXT NOT NULL,
	consecutive_breaches INTEGER NOT NULL DEFAULT 0,
	last_breach_run_id   TEXT NOT NULL DEFAULT '',
	reference_value      REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (customer_id, url, metric)
);

CREATE TABLE IF NOT EXISTS findings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id TEXT NOT NULL,
	run_type    TEXT NOT NULL,
	severity    TEXT NOT NULL,
	category    TEXT NOT NULL,
	title       TEXT NOT NULL,
	details     TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	date        TEXT NOT NULL,
	UNIQUE (customer_id, run_type, category, title, url, date)
);

CREATE TABLE IF NOT EXISTS run_stats (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id           TEXT NOT NULL,
	run_type              TEXT NOT NULL,
	run_id                TEXT NOT NULL,
	pages_crawled         INTEGER NOT NULL DEFAULT 0,
	duplicate_title_count INTEGER NOT NULL DEFAULT 0,
	broken_link_count     INTEGER NOT NULL DEFAULT 0,
	finished_at           TIMESTAMP NOT NULL,
	UNIQUE (customer_id, run_type, run_id)
);
`

// Store implements the persistence ports on one SQLite handle.
type Store struct {
	db *sqlx.DB
}

var (
	_ ports.CustomerStore          = (*Store)(nil)
	_ ports.SnapshotStore          = (*Store)(nil)
	_ ports.ArtifactStore          = (*Store)(nil)
	_ ports.PSIStore               = (*Store)(nil)
	_ ports.ConfirmationStateStore = (*Store)(nil)
	_ ports.FindingStore           = (*Store)(nil)
	_ ports.RunStatsStore          = (*Store)(nil)
	_ ports.Purger                 = (*Store)(nil)
)

// Open connects to the SQLite database at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open database: empty path")
	}

	dsn := path
	if path != InMemory {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == InMemory {
		// An in-memory database lives on a single connection; a second one
		// would see an empty schema.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// customerRow flattens the nullable settings columns for scanning.
type customerRow struct {
	ID           string          `db:"id"`
	Name         string          `db:"name"`
	Domain       string          `db:"domain"`
	Email        string          `db:"email"`
	Status       string          `db:"status"`
	CancelledAt  sql.NullTime    `db:"cancelled_at"`
	PerfDrop     sql.NullFloat64 `db:"psi_perf_drop_threshold"`
	LCPIncrease  sql.NullFloat64 `db:"psi_lcp_increase_threshold_ms"`
	ConfirmRuns  sql.NullInt64   `db:"psi_confirm_runs"`
	WeeklyBudget sql.NullInt64   `db:"weekly_budget"`
}

var customerColumns = []string{
	"id", "name", "domain", "email", "status", "cancelled_at",
	"psi_perf_drop_threshold", "psi_lcp_increase_threshold_ms",
	"psi_confirm_runs", "weekly_budget",
}

func (r customerRow) toDomain() domain.Customer {
	customer := domain.Customer{
		ID:     r.ID,
		Name:   r.Name,
		Domain: r.Domain,
		Email:  r.Email,
		Status: domain.CustomerStatus(r.Status),
	}
	if r.CancelledAt.Valid {
		t := r.CancelledAt.Time
		customer.CancelledAt = &t
	}
	if r.PerfDrop.Valid {
		v := r.PerfDrop.Float64
		customer.Settings.PSIPerfDropThreshold = &v
	}
	if r.LCPIncrease.Valid {
		v := r.LCPIncrease.Float64
		customer.Settings.PSILCPIncreaseThresholdMS = &v
	}
	if r.ConfirmRuns.Valid {
		v := int(r.ConfirmRuns.Int64)
		customer.Settings.PSIConfirmRuns = &v
	}
	if r.WeeklyBudget.Valid {
		v := int(r.WeeklyBudget.Int64)
		customer.Settings.WeeklyBudget = &v
	}
	return customer
}

// ListActiveCustomers returns the tenants that participate in runs.
func (s *Store) ListActiveCustomers(ctx context.Context) ([]domain.Customer, error) {
	query, args, err := qb.Select(customerColumns...).
		From("customers").
		Where(sq.Eq{"status": domain.CustomerActive}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build customers query: %w", err)
	}

	var rows []customerRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list active customers: %w", err)
	}

	customers := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		customers = append(customers, row.toDomain())
	}
	return customers, nil
}

// ListCancelledBefore returns customers cancelled at or before cutoff,
// the retention task's input.
func (s *Store) ListCancelledBefore(ctx context.Context, cutoff time.Time) ([]domain.Customer, error) {
	query, args, err := qb.Select(customerColumns...).
		From("customers").
		Where(sq.Eq{"status": domain.CustomerCancelled}).
		Where(sq.NotEq{"cancelled_at": nil}).
		Where(sq.LtOrEq{"cancelled_at": cutoff}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cancelled query: %w", err)
	}

	var rows []customerRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list cancelled customers: %w", err)
	}

	customers := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		customers = append(customers, row.toDomain())
	}
	return customers, nil
}

// ListTargets returns one customer's monitored URLs.
func (s *Store) ListTargets(ctx context.Context, customerID string) ([]domain.Target, error) {
	query, args, err := qb.Select("customer_id", "url", "is_key").
		From("targets").
		Where(sq.Eq{"customer_id": customerID}).
		OrderBy("url").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build targets query: %w", err)
	}

	var targets []domain.Target
	if err := s.db.SelectContext(ctx, &targets, query, args...); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return targets, nil
}

// UpsertCustomer creates or updates a tenant. Onboarding and cancellation
// happen outside the run pipeline; this is their write path.
func (s *Store) UpsertCustomer(ctx context.Context, customer domain.Customer) error {
	const query = `INSERT INTO customers
	(id, name, domain, email, status, cancelled_at,
	 psi_perf_drop_threshold, psi_lcp_increase_threshold_ms, psi_confirm_runs, weekly_budget)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	domain = excluded.domain,
	email = excluded.email,
	status = excluded.status,
	cancelled_at = excluded.cancelled_at,
	psi_perf_drop_threshold = excluded.psi_perf_drop_threshold,
	psi_lcp_increase_threshold_ms = excluded.psi_lcp_increase_threshold_ms,
	psi_confirm_runs = excluded.psi_confirm_runs,
	weekly_budget = excluded.weekly_budget`

	_, err := s.db.ExecContext(ctx, query,
		customer.ID,
		customer.Name,
		customer.Domain,
		customer.Email,
		customer.Status,
		customer.CancelledAt,
		customer.Settings.PSIPerfDropThreshold,
		customer.Settings.PSILCPIncreaseThresholdMS,
		customer.Settings.PSIConfirmRuns,
		customer.Settings.WeeklyBudget,
	)
	if err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

// UpsertTarget creates or updates one monitored URL.
func (s *Store) UpsertTarget(ctx context.Context, target domain.Target) error {
	const query = `INSERT INTO targets (customer_id, url, is_key)
VALUES (?, ?, ?)
ON CONFLICT (customer_id, url) DO UPDATE SET is_key = excluded.is_key`

	if _, err := s.db.ExecContext(ctx, query, target.CustomerID, target.URL, target.IsKey); err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

// PurgeCustomerData deletes every stored record belonging to the customer,
// then the customer row itself.
func (s *Store) PurgeCustomerData(ctx context.Context, customerID string) error {
	tables := []string{
		"snapshots", "artifacts", "psi_samples",
		"psi_confirmation_state", "findings", "run_stats",
		"targets", "customers",
	}
	for _, table := range tables {
		column := "customer_id"
		if table == "customers" {
			column = "id"
		}
		query, args, err := qb.Delete(table).Where(sq.Eq{column: customerID}).ToSql()
		if err != nil {
			return fmt.Errorf("build purge for %s: %w", table, err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	return nil
}
