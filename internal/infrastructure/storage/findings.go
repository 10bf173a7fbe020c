package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

// PersistIfNew inserts the finding unless its idempotency key already
// exists. The decision rides on the unique index rather than a read-check,
// so concurrent re-runs cannot double-insert.
func (s *Store) PersistIfNew(ctx context.Context, f domain.Finding) (bool, error) {
	const query = `INSERT INTO findings
	(customer_id, run_type, severity, category, title, details, url, date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (customer_id, run_type, category, title, url, date) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		f.CustomerID,
		f.RunType,
		f.Severity,
		f.Category,
		f.Title,
		f.Details,
		f.URL,
		f.Date,
	)
	if err != nil {
		return false, fmt.Errorf("insert finding: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finding rows affected: %w", err)
	}
	return inserted > 0, nil
}

// ListFindings returns one customer's findings for a run type and date,
// ordered critical-first for rendering.
func (s *Store) ListFindings(ctx context.Context, customerID string, runType domain.RunType, date string) ([]domain.Finding, error) {
	query, args, err := qb.Select("id", "customer_id", "run_type", "severity", "category", "title", "details", "url", "date").
		From("findings").
		Where(sq.Eq{"customer_id": customerID, "run_type": runType, "date": date}).
		OrderBy(`CASE severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 ELSE 2 END`, "category", "title", "url").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build findings query: %w", err)
	}

	var findings []domain.Finding
	if err := s.db.SelectContext(ctx, &findings, query, args...); err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	return findings, nil
}
