// Package psi talks to the Google PageSpeed Insights v5 API.
package psi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/ports"
)

const (
	// DefaultEndpoint is the public runPagespeed endpoint.
	DefaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"
	lcpAuditID      = "largest-contentful-paint"
)

// Client measures page performance through PageSpeed Insights.
type Client struct {
	endpoint string
	apiKey   string
	strategy string
	http     *http.Client
	now      func() time.Time
}

var _ ports.PSIClient = (*Client)(nil)

// NewClient creates a reusable API client. Empty endpoint or strategy fall
// back to the public endpoint and the mobile strategy.
func NewClient(endpoint, apiKey, strategy string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if strategy == "" {
		strategy = "mobile"
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		strategy: strategy,
		http:     &http.Client{Timeout: 90 * time.Second},
		now:      time.Now,
	}
}

type pagespeedResponse struct {
	LighthouseResult struct {
		Categories struct {
			Performance struct {
				Score float64 `json:"score"`
			} `json:"performance"`
		} `json:"categories"`
		Audits map[string]struct {
			NumericValue float64 `json:"numericValue"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

// Measure runs one PageSpeed analysis and returns the performance score
// (0-100) and the LCP in milliseconds.
func (c *Client) Measure(ctx context.Context, pageURL string) (domain.PSISample, error) {
	query := url.Values{}
	query.Set("url", pageURL)
	query.Set("strategy", c.strategy)
	query.Set("category", "performance")
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return domain.PSISample{}, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.PSISample{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PSISample{}, &domain.FetchError{
			Type:       domain.ErrorHTTP,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("pagespeed: unexpected status %s", resp.Status),
		}
	}

	var decoded pagespeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.PSISample{}, fmt.Errorf("decode response: %w", err)
	}

	sample := domain.PSISample{
		URL:              pageURL,
		FetchedAt:        c.now().UTC(),
		PerformanceScore: decoded.LighthouseResult.Categories.Performance.Score * 100,
	}
	if audit, ok := decoded.LighthouseResult.Audits[lcpAuditID]; ok {
		sample.LCPMillis = audit.NumericValue
	}
	return sample, nil
}
