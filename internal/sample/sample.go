// Package sample selects which URLs a weekly run crawls while staying
// inside a per-customer budget.
package sample

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

// DefaultWeeklyBudget caps how many URLs one weekly run crawls per customer.
const DefaultWeeklyBudget = 100

// SelectWeeklySample returns the weekly crawl set for one customer: every
// key URL, a stable slice of the remaining universe that repeats each week,
// and a rotating slice driven by weekSeed. Key URLs are never dropped, even
// when they alone exceed the budget. The output is deterministic for a
// given universe, budget and seed.
func SelectWeeklySample(universe []domain.Target, budget int, weekSeed string) []string {
	if budget <= 0 {
		budget = DefaultWeeklyBudget
	}

	var selected, pool []string
	seen := make(map[string]struct{}, len(universe))
	for _, target := range universe {
		if _, ok := seen[target.URL]; ok {
			continue
		}
		seen[target.URL] = struct{}{}
		if target.IsKey {
			selected = append(selected, target.URL)
		} else {
			pool = append(pool, target.URL)
		}
	}
	sort.Strings(selected)

	remaining := budget - len(selected)
	if remaining <= 0 || len(pool) == 0 {
		return selected
	}
	if remaining > len(pool) {
		remaining = len(pool)
	}

	// Half the slack is hash-stable so the same pages recur every week;
	// the other half rotates with the seed so coverage spreads over time.
	// A shrinking universe fills from whatever is left instead of failing.
	stableCount := remaining / 2
	rotatingCount := remaining - stableCount

	stable := topByDigest(pool, stableCount, "")
	taken := make(map[string]struct{}, len(stable))
	for _, u := range stable {
		taken[u] = struct{}{}
	}
	leftover := make([]string, 0, len(pool)-len(stable))
	for _, u := range pool {
		if _, ok := taken[u]; !ok {
			leftover = append(leftover, u)
		}
	}
	rotating := topByDigest(leftover, rotatingCount, weekSeed)

	selected = append(selected, stable...)
	selected = append(selected, rotating...)
	return selected
}

// topByDigest orders urls by the hex digest of url (or url|seed) and
// returns the first n. Equal digests fall back to URL order, which keeps
// the result total even in the face of collisions.
func topByDigest(urls []string, n int, seed string) []string {
	if n <= 0 || len(urls) == 0 {
		return nil
	}
	type ranked struct {
		url    string
		digest string
	}
	rankedURLs := make([]ranked, 0, len(urls))
	for _, u := range urls {
		key := u
		if seed != "" {
			key = u + "|" + seed
		}
		rankedURLs = append(rankedURLs, ranked{url: u, digest: hexDigest(key)})
	}
	sort.Slice(rankedURLs, func(i, j int) bool {
		if rankedURLs[i].digest != rankedURLs[j].digest {
			return rankedURLs[i].digest < rankedURLs[j].digest
		}
		return rankedURLs[i].url < rankedURLs[j].url
	})
	if n > len(rankedURLs) {
		n = len(rankedURLs)
	}
	out := make([]string, 0, n)
	for _, r := range rankedURLs[:n] {
		out = append(out, r.url)
	}
	return out
}

func hexDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
