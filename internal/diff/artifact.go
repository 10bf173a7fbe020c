package diff

import (
	"net/url"
	"strconv"

	"github.com/temoto/robotstxt"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

// crawlerAgent is the user agent robots rules are evaluated for. Blocking
// Google is the regression the product exists to catch.
const crawlerAgent = "Googlebot"

// Artifacts compares the latest two captures of a robots.txt or sitemap.
// keyURLs feed the robots path checks. A nil prior is a baseline.
func Artifacts(prior, current *domain.Artifact, keyURLs []string) []domain.RawChange {
	if current == nil || prior == nil {
		return nil
	}
	switch current.Type {
	case domain.ArtifactRobots:
		return robotsChanges(prior, current, keyURLs)
	case domain.ArtifactSitemap:
		return sitemapChanges(prior, current)
	default:
		return nil
	}
}

func robotsChanges(prior, current *domain.Artifact, keyURLs []string) []domain.RawChange {
	if current.Missing() {
		if prior.Missing() {
			return nil
		}
		// An absent robots.txt allows everything; the disappearance itself
		// is worth a note but blocks nothing.
		return []domain.RawChange{{
			Type: domain.RobotsDisappeared,
			Old:  "present",
			New:  "missing",
		}}
	}

	priorRules := parseRobots(prior)
	currentRules := parseRobots(current)

	var changes []domain.RawChange
	for _, keyURL := range keyURLs {
		path := pathOf(keyURL)
		if allowed(priorRules, path) && !allowed(currentRules, path) {
			changes = append(changes, domain.RawChange{
				Type: domain.RobotsBlocksKeyPath,
				URL:  keyURL,
				Old:  "allowed",
				New:  "disallowed",
			})
		}
	}
	return changes
}

func sitemapChanges(prior, current *domain.Artifact) []domain.RawChange {
	if current.Missing() {
		if prior.Missing() {
			return nil
		}
		return []domain.RawChange{{
			Type: domain.SitemapDisappeared,
			Old:  strconv.Itoa(prior.URLCount()),
			New:  "missing",
		}}
	}
	if prior.Missing() {
		return nil
	}

	priorCount, currentCount := prior.URLCount(), current.URLCount()
	if priorCount <= 0 || currentCount >= priorCount {
		return nil
	}
	return []domain.RawChange{{
		Type:      domain.SitemapCountDropped,
		Old:       strconv.Itoa(priorCount),
		New:       strconv.Itoa(currentCount),
		DropRatio: float64(priorCount-currentCount) / float64(priorCount),
	}}
}

// parseRobots returns nil for missing or unparseable content, which the
// checks below treat as allow-all.
func parseRobots(art *domain.Artifact) *robotstxt.RobotsData {
	if art.Missing() {
		return nil
	}
	data, err := robotstxt.FromString(art.Content)
	if err != nil {
		return nil
	}
	return data
}

func allowed(rules *robotstxt.RobotsData, path string) bool {
	if rules == nil {
		return true
	}
	return rules.TestAgent(path, crawlerAgent)
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
