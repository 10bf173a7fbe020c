package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList stores a []string as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	default:
		return fmt.Errorf("unsupported string list source %T", src)
	}
}

// Snapshot is one fetch result for one URL in one run. Rows are append-only;
// comparisons always pair the newest snapshot with the most recent earlier
// one for the same customer, URL and run type.
type Snapshot struct {
	ID            int64      `db:"id"`
	CustomerID    string     `db:"customer_id"`
	URL           string     `db:"url"`
	RunType       RunType    `db:"run_type"`
	RunID         string     `db:"run_id"`
	FetchedAt     time.Time  `db:"fetched_at"`
	StatusCode    int        `db:"status_code"`
	FinalURL      string     `db:"final_url"`
	RedirectChain StringList `db:"redirect_chain"`
	Title         string     `db:"title"`
	Canonical     string     `db:"canonical"`
	MetaRobots    string     `db:"meta_robots"`
	ContentHash   string     `db:"normalized_content_hash"`
	InternalLinks StringList `db:"internal_links"`
	ErrorType     string     `db:"error_type"`
	Error         string     `db:"error"`
}

// Failed reports whether the fetch never produced an HTTP response. Error
// statuses like 404 or 503 are responses, not failures.
func (s *Snapshot) Failed() bool {
	return s.ErrorType != ""
}

// ErrorStatus reports whether the response carried a 4xx or 5xx status.
// Fields are never extracted from such pages, so only their status is
// comparable.
func (s *Snapshot) ErrorStatus() bool {
	return s.StatusCode >= 400
}

// FetchResult is the raw payload of one page fetch, before normalization
// and persistence.
type FetchResult struct {
	URL           string
	StatusCode    int
	FinalURL      string
	RedirectChain []string
	Title         string
	Canonical     string
	MetaRobots    string
	HTML          string
	InternalLinks []string
}
