// Package fetch implements the page and artifact retrieval boundary over
// plain HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/ports"
)

const (
	defaultUserAgent    = "RankSentinelBot/1.0 (+https://ranksentinel.io/bot)"
	defaultMaxBodyBytes = 2 << 20 // 2 MiB
	maxRedirects        = 10
	maxInternalLinks    = 200
)

// Fetcher retrieves pages, robots.txt files and sitemaps for the engine.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

var (
	_ ports.PageFetcher     = (*Fetcher)(nil)
	_ ports.ArtifactFetcher = (*Fetcher)(nil)
)

// New wires an HTTP client; nil gets a default with a 20s timeout.
func New(client *http.Client, userAgent string, maxBodyBytes int64) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Fetcher{client: client, userAgent: userAgent, maxBodyBytes: maxBodyBytes}
}

// FetchPage GETs one page and extracts the snapshot fields. Any HTTP
// response is a result, whatever its status; only transport-level failures
// return an error, always a *domain.FetchError.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (domain.FetchResult, error) {
	if _, err := url.ParseRequestURI(pageURL); err != nil {
		return domain.FetchResult{}, &domain.FetchError{Type: domain.ErrorInvalidURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.FetchResult{}, &domain.FetchError{Type: domain.ErrorInvalidURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	// A shallow client copy gives each request its own redirect recorder.
	var chain []string
	client := *f.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return http.ErrUseLastResponse
		}
		chain = append(chain, req.URL.String())
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return domain.FetchResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return domain.FetchResult{}, classifyTransportError(err)
	}

	result := domain.FetchResult{
		URL:           pageURL,
		StatusCode:    resp.StatusCode,
		FinalURL:      resp.Request.URL.String(),
		RedirectChain: chain,
	}
	if resp.StatusCode < http.StatusBadRequest {
		// Error pages are all noise; their fields never feed comparisons.
		extractFields(&result, body)
	}
	return result, nil
}

// CheckLink probes a URL with HEAD, falling back to GET for servers that
// reject HEAD. It returns the status code; transport failures return a
// *domain.FetchError.
func (f *Fetcher) CheckLink(ctx context.Context, linkURL string) (int, error) {
	status, err := f.probe(ctx, http.MethodHead, linkURL)
	if err != nil {
		return 0, err
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		return f.probe(ctx, http.MethodGet, linkURL)
	}
	return status, nil
}

func (f *Fetcher) probe(ctx context.Context, method, linkURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, linkURL, nil)
	if err != nil {
		return 0, &domain.FetchError{Type: domain.ErrorInvalidURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, classifyTransportError(err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<14))
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

// FetchRobots retrieves https://<domain>/robots.txt. A 404 yields an empty
// payload: the file being gone is a state, not an error.
func (f *Fetcher) FetchRobots(ctx context.Context, siteDomain string) (domain.ArtifactPayload, error) {
	content, err := f.fetchArtifact(ctx, artifactURL(siteDomain, "/robots.txt"))
	if err != nil {
		return domain.ArtifactPayload{}, err
	}
	return domain.ArtifactPayload{Content: content}, nil
}

// FetchSitemap retrieves https://<domain>/sitemap.xml and counts its
// entries. Sitemap index files count their child sitemaps.
func (f *Fetcher) FetchSitemap(ctx context.Context, siteDomain string) (domain.ArtifactPayload, error) {
	content, err := f.fetchArtifact(ctx, artifactURL(siteDomain, "/sitemap.xml"))
	if err != nil {
		return domain.ArtifactPayload{}, err
	}
	return domain.ArtifactPayload{
		Content:  content,
		URLCount: strings.Count(content, "<loc>"),
	}, nil
}

func (f *Fetcher) fetchArtifact(ctx context.Context, fileURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", &domain.FetchError{Type: domain.ErrorInvalidURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", nil
	case resp.StatusCode >= http.StatusBadRequest:
		return "", &domain.FetchError{
			Type:       domain.ErrorHTTP,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("fetch %s: status %d", fileURL, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return "", classifyTransportError(err)
	}
	return string(body), nil
}

func artifactURL(siteDomain, path string) string {
	if strings.Contains(siteDomain, "://") {
		return strings.TrimSuffix(siteDomain, "/") + path
	}
	return "https://" + strings.TrimSuffix(siteDomain, "/") + path
}

// extractFields pulls the monitored head fields and the same-host link set
// out of a page body.
func extractFields(result *domain.FetchResult, body []byte) {
	result.HTML = string(body)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML))
	if err != nil {
		return
	}

	result.Title = strings.TrimSpace(doc.Find("title").First().Text())

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		result.Canonical = strings.TrimSpace(href)
	}
	if content, ok := doc.Find(`meta[name="robots"]`).First().Attr("content"); ok {
		result.MetaRobots = strings.TrimSpace(content)
	}

	base, err := url.Parse(result.FinalURL)
	if err != nil {
		return
	}
	seen := map[string]struct{}{}
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		link := resolveInternalLink(base, href)
		if link == "" {
			return true
		}
		if _, ok := seen[link]; ok {
			return true
		}
		seen[link] = struct{}{}
		result.InternalLinks = append(result.InternalLinks, link)
		return len(result.InternalLinks) < maxInternalLinks
	})
	sort.Strings(result.InternalLinks)
}

// resolveInternalLink resolves href against the page URL and returns it
// without its fragment when it stays on the same host; anything else
// yields "".
func resolveInternalLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	if !strings.EqualFold(trimWWW(resolved.Host), trimWWW(base.Host)) {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// classifyTransportError maps a transport failure onto the stored error
// taxonomy. The result is always a *domain.FetchError.
func classifyTransportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &domain.FetchError{Type: domain.ErrorDNS, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.FetchError{Type: domain.ErrorTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.FetchError{Type: domain.ErrorTimeout, Err: err}
	}

	return &domain.FetchError{Type: domain.ErrorConnection, Err: err}
}
