// Package diff detects structural changes between consecutive captures of
// the same URL or site artifact. It attaches no severity; ranking changes
// is the classifier's job.
package diff

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

// Snapshots compares the current snapshot against the most recent prior
// one. A nil prior is a baseline: nothing to regress against, no changes.
// A failed current fetch yields a single FetchFailed change since field
// comparisons are meaningless without a response, and a 4xx/5xx on either
// side reduces the comparison to status alone.
func Snapshots(prior, current *domain.Snapshot) []domain.RawChange {
	if current == nil || prior == nil {
		return nil
	}

	if current.Failed() {
		return []domain.RawChange{{
			Type: domain.FetchFailed,
			URL:  current.URL,
			Old:  strconv.Itoa(prior.StatusCode),
			New:  current.ErrorType,
		}}
	}

	if prior.Failed() {
		// Only the recovery is notable; the prior carries no comparable
		// fields.
		return []domain.RawChange{{
			Type: domain.StatusChanged,
			URL:  current.URL,
			Old:  "0",
			New:  strconv.Itoa(current.StatusCode),
		}}
	}

	// Error pages carry no extracted fields, so against them only the
	// status is an honest comparison.
	if prior.ErrorStatus() || current.ErrorStatus() {
		if prior.StatusCode == current.StatusCode {
			return nil
		}
		return []domain.RawChange{{
			Type: domain.StatusChanged,
			URL:  current.URL,
			Old:  strconv.Itoa(prior.StatusCode),
			New:  strconv.Itoa(current.StatusCode),
		}}
	}

	var changes []domain.RawChange

	if prior.StatusCode != current.StatusCode {
		changes = append(changes, domain.RawChange{
			Type: domain.StatusChanged,
			URL:  current.URL,
			Old:  strconv.Itoa(prior.StatusCode),
			New:  strconv.Itoa(current.StatusCode),
		})
	}

	if prior.FinalURL != current.FinalURL {
		changes = append(changes, domain.RawChange{
			Type: domain.RedirectTargetChanged,
			URL:  current.URL,
			Old:  prior.FinalURL,
			New:  current.FinalURL,
		})
	}

	if prior.Title != current.Title {
		changes = append(changes, domain.RawChange{
			Type: domain.TitleChanged,
			URL:  current.URL,
			Old:  prior.Title,
			New:  current.Title,
		})
	}

	if prior.Canonical != current.Canonical {
		changes = append(changes, domain.RawChange{
			Type:               domain.CanonicalChanged,
			URL:                current.URL,
			Old:                prior.Canonical,
			New:                current.Canonical,
			CanonicalRemoved:   prior.Canonical != "" && current.Canonical == "",
			CanonicalOffDomain: offDomain(current.Canonical, current.URL),
		})
	}

	if normalizeDirectives(prior.MetaRobots) != normalizeDirectives(current.MetaRobots) {
		priorNoindex := hasNoindex(prior.MetaRobots)
		currentNoindex := hasNoindex(current.MetaRobots)
		changes = append(changes, domain.RawChange{
			Type:           domain.MetaRobotsChanged,
			URL:            current.URL,
			Old:            prior.MetaRobots,
			New:            current.MetaRobots,
			NoindexAdded:   !priorNoindex && currentNoindex,
			NoindexRemoved: priorNoindex && !currentNoindex,
		})
	}

	if prior.ContentHash != "" && current.ContentHash != "" && prior.ContentHash != current.ContentHash {
		changes = append(changes, domain.RawChange{
			Type: domain.ContentHashChanged,
			URL:  current.URL,
			Old:  prior.ContentHash,
			New:  current.ContentHash,
		})
	}

	return changes
}

// hasNoindex reports whether a meta robots value forbids indexing. The
// "none" directive is shorthand for noindex,nofollow.
func hasNoindex(metaRobots string) bool {
	for _, directive := range strings.Split(strings.ToLower(metaRobots), ",") {
		switch strings.TrimSpace(directive) {
		case "noindex", "none":
			return true
		}
	}
	return false
}

// normalizeDirectives canonicalizes a meta robots value so case and spacing
// churn never reads as a change.
func normalizeDirectives(metaRobots string) string {
	parts := strings.Split(strings.ToLower(metaRobots), ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

// offDomain reports whether a canonical URL points at a different host than
// the page it came from. Relative canonicals stay on-domain; a www prefix
// does not count as a move.
func offDomain(canonical, pageURL string) bool {
	host := hostOf(canonical)
	if host == "" {
		return false
	}
	return host != hostOf(pageURL)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
