package sample

import (
	"fmt"
	"testing"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

func makeUniverse(keys, others int) []domain.Target {
	var universe []domain.Target
	for i := 0; i < keys; i++ {
		universe = append(universe, domain.Target{
			URL:   fmt.Sprintf("https://example.com/key/%03d", i),
			IsKey: true,
		})
	}
	for i := 0; i < others; i++ {
		universe = append(universe, domain.Target{
			URL: fmt.Sprintf("https://example.com/page/%03d", i),
		})
	}
	return universe
}

func asSet(urls []string) map[string]bool {
	set := make(map[string]bool, len(urls))
	for _, u := range urls {
		set[u] = true
	}
	return set
}

func TestSelectWeeklySampleDeterministic(t *testing.T) {
	t.Parallel()

	universe := makeUniverse(5, 200)
	first := SelectWeeklySample(universe, 50, "2026-W08")
	second := SelectWeeklySample(universe, 50, "2026-W08")

	if len(first) != len(second) {
		t.Fatalf("different sizes: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("position %d differs: %s vs %s", i, first[i], second[i])
		}
	}
	if len(first) != 50 {
		t.Fatalf("expected full budget 50, got %d", len(first))
	}
}

func TestSelectWeeklySampleAlwaysIncludesKeyURLs(t *testing.T) {
	t.Parallel()

	universe := makeUniverse(10, 500)
	got := asSet(SelectWeeklySample(universe, 40, "2026-W01"))

	for _, target := range universe {
		if target.IsKey && !got[target.URL] {
			t.Fatalf("key URL %s missing from sample", target.URL)
		}
	}
}

func TestSelectWeeklySampleKeyURLsExceedBudget(t *testing.T) {
	t.Parallel()

	universe := makeUniverse(20, 100)
	got := SelectWeeklySample(universe, 10, "2026-W01")

	if len(got) != 20 {
		t.Fatalf("expected all 20 key URLs despite budget 10, got %d", len(got))
	}
	set := asSet(got)
	for _, target := range universe {
		if target.IsKey && !set[target.URL] {
			t.Fatalf("key URL %s dropped", target.URL)
		}
	}
}

func TestSelectWeeklySampleStableSliceRepeats(t *testing.T) {
	t.Parallel()

	universe := makeUniverse(2, 300)
	week1 := asSet(SelectWeeklySample(universe, 40, "2026-W01"))
	week2 := asSet(SelectWeeklySample(universe, 40, "2026-W02"))

	// Keys (2) plus the stable half of the slack (19) recur every week.
	shared := 0
	for u := range week1 {
		if week2[u] {
			shared++
		}
	}
	wantStable := 2 + (40-2)/2
	if shared < wantStable {
		t.Fatalf("expected at least %d shared URLs across weeks, got %d", wantStable, shared)
	}
	if shared == len(week1) {
		t.Fatal("rotating slice did not rotate between weeks")
	}
}

func TestSelectWeeklySampleShrunkUniverse(t *testing.T) {
	t.Parallel()

	universe := makeUniverse(3, 10)
	got := SelectWeeklySample(universe, 100, "2026-W05")

	if len(got) != 13 {
		t.Fatalf("expected every URL when universe fits the budget, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, u := range got {
		if seen[u] {
			t.Fatalf("duplicate URL in sample: %s", u)
		}
		seen[u] = true
	}
}

func TestSelectWeeklySampleDefaultBudget(t *testing.T) {
	t.Parallel()

	universe := makeUniverse(0, 400)
	got := SelectWeeklySample(universe, 0, "2026-W05")

	if len(got) != DefaultWeeklyBudget {
		t.Fatalf("expected default budget %d, got %d", DefaultWeeklyBudget, len(got))
	}
}
