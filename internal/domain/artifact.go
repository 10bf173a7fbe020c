package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ArtifactType distinguishes the site-level files tracked run over run.
type ArtifactType string

const (
	ArtifactRobots  ArtifactType = "robots"
	ArtifactSitemap ArtifactType = "sitemap"
)

// MetaMap stores artifact metadata as a JSON text column.
type MetaMap map[string]string

// Value implements driver.Valuer.
func (m MetaMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, fmt.Errorf("marshal meta map: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (m *MetaMap) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), (*map[string]string)(m))
	case []byte:
		return json.Unmarshal(v, (*map[string]string)(m))
	default:
		return fmt.Errorf("unsupported meta map source %T", src)
	}
}

const metaURLCount = "url_count"

// Artifact is one capture of a customer's robots.txt or sitemap. An empty
// Content marks the artifact as absent at fetch time.
type Artifact struct {
	ID         int64        `db:"id"`
	CustomerID string       `db:"customer_id"`
	Type       ArtifactType `db:"artifact_type"`
	RunID      string       `db:"run_id"`
	FetchedAt  time.Time    `db:"fetched_at"`
	SHA256     string       `db:"sha256"`
	Content    string       `db:"content"`
	Meta       MetaMap      `db:"meta"`
}

// Missing reports whether the capture found no usable content.
func (a *Artifact) Missing() bool {
	return a == nil || strings.TrimSpace(a.Content) == ""
}

// URLCount reads the parsed sitemap entry count from the metadata.
func (a *Artifact) URLCount() int {
	if a == nil || a.Meta == nil {
		return 0
	}
	n, err := strconv.Atoi(a.Meta[metaURLCount])
	if err != nil {
		return 0
	}
	return n
}

// SetURLCount records the parsed sitemap entry count.
func (a *Artifact) SetURLCount(n int) {
	if a.Meta == nil {
		a.Meta = MetaMap{}
	}
	a.Meta[metaURLCount] = strconv.Itoa(n)
}

// ArtifactPayload is the raw outcome of a robots or sitemap fetch. A fetch
// that finds nothing (404) yields an empty payload rather than an error.
type ArtifactPayload struct {
	Content  string
	URLCount int
}
