// Package mailgun delivers finding digests and operator alerts over the
// Mailgun messages API.
package mailgun

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/ports"
)

// DefaultEndpoint is the Mailgun API base for US-region domains.
const DefaultEndpoint = "https://api.mailgun.net/v3"

// Notifier sends plain-text email through a Mailgun sending domain.
type Notifier struct {
	endpoint      string
	domain        string
	apiKey        string
	from          string
	operatorEmail string
	client        *http.Client
}

var _ ports.Reporter = (*Notifier)(nil)

// NewNotifier registers the sending domain and credentials.
func NewNotifier(endpoint, domain, apiKey, from, operatorEmail string) *Notifier {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Notifier{
		endpoint:      endpoint,
		domain:        domain,
		apiKey:        apiKey,
		from:          from,
		operatorEmail: operatorEmail,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// SendFindings emails the run digest to the customer. No findings means no
// email.
func (n *Notifier) SendFindings(ctx context.Context, customer domain.Customer, run domain.RunContext, findings []domain.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	subject := fmt.Sprintf("RankSentinel %s report for %s: %s",
		run.RunType, customer.Domain, summaryLine(findings))
	return n.send(ctx, customer.Email, subject, RenderDigest(customer, run, findings))
}

// SendOperatorAlert emails the operator when a run left customers
// unprocessed. A fully successful run sends nothing.
func (n *Notifier) SendOperatorAlert(ctx context.Context, result domain.RunResult) error {
	if n.operatorEmail == "" || result.Failed == 0 {
		return nil
	}

	subject := fmt.Sprintf("RankSentinel %s run %s: %d of %d customers failed",
		result.RunType, result.RunID, result.Failed, result.Processed)

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s) processed %d customers: %d succeeded, %d failed.\n\n",
		result.RunID, result.RunType, result.Processed, result.Succeeded, result.Failed)
	b.WriteString("Failed customers:\n")
	for _, id := range result.FailedCustomerIDs {
		fmt.Fprintf(&b, "  - %s\n", id)
	}
	return n.send(ctx, n.operatorEmail, subject, b.String())
}

func (n *Notifier) send(ctx context.Context, to, subject, body string) error {
	if n.domain == "" || n.apiKey == "" {
		return fmt.Errorf("mailgun notifier misconfigured")
	}
	if to == "" {
		return fmt.Errorf("no recipient address")
	}

	form := url.Values{}
	form.Set("from", n.from)
	form.Set("to", to)
	form.Set("subject", subject)
	form.Set("text", body)

	endpoint := fmt.Sprintf("%s/%s/messages", strings.TrimSuffix(n.endpoint, "/"), n.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mailgun error: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// RenderDigest formats the plain-text digest body, findings grouped by
// severity with critical first.
func RenderDigest(customer domain.Customer, run domain.RunContext, findings []domain.Finding) string {
	sorted := make([]domain.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() < sorted[j].Severity.Rank()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "RankSentinel %s report for %s (%s)\n", run.RunType, customer.Name, customer.Domain)
	fmt.Fprintf(&b, "Run date %s: %s\n", run.Date(), summaryLine(sorted))

	var current domain.Severity
	for _, f := range sorted {
		if f.Severity != current {
			current = f.Severity
			fmt.Fprintf(&b, "\n%s\n", strings.ToUpper(string(current)))
		}
		fmt.Fprintf(&b, "- [%s] %s\n", f.Category, f.Title)
		if f.URL != "" {
			fmt.Fprintf(&b, "  %s\n", f.URL)
		}
		if f.Details != "" {
			fmt.Fprintf(&b, "  %s\n", f.Details)
		}
	}
	return b.String()
}

func summaryLine(findings []domain.Finding) string {
	counts := domain.CountBySeverity(findings)
	return fmt.Sprintf("%d critical, %d warning, %d info",
		counts[domain.SeverityCritical], counts[domain.SeverityWarning], counts[domain.SeverityInfo])
}
