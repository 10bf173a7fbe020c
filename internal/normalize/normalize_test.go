package normalize

import (
	"strings"
	"testing"
)

func TestNormalizeStripsNonContent(t *testing.T) {
	t.Parallel()

	html := `
	<html>
	<head><title>Page</title><style>body { color: red; }</style></head>
	<body>
	  <header>Site Header</header>
	  <nav>Home | About</nav>
	  <script>var tracker = "beacon";</script>
	  <noscript>enable javascript</noscript>
	  <main>Product description here.</main>
	  <footer>All rights reserved</footer>
	</body>
	</html>`

	got := Normalize(html)

	for _, banned := range []string{"color: red", "tracker", "Site Header", "Home | About", "enable javascript", "All rights reserved"} {
		if strings.Contains(got, banned) {
			t.Fatalf("normalized text still contains %q: %s", banned, got)
		}
	}
	if !strings.Contains(got, "Product description here.") {
		t.Fatalf("normalized text lost the content: %s", got)
	}
}

func TestNormalizeDropsCookieBanners(t *testing.T) {
	t.Parallel()

	html := `
	<body>
	  <div id="cookie-banner">We use cookies to improve your experience.</div>
	  <div class="GdprConsent">Accept all</div>
	  <p>Actual article text.</p>
	</body>`

	got := Normalize(html)

	if strings.Contains(got, "We use cookies") || strings.Contains(got, "Accept all") {
		t.Fatalf("banner text survived normalization: %s", got)
	}
	if !strings.Contains(got, "Actual article text.") {
		t.Fatalf("content lost: %s", got)
	}
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	got := Normalize("<p>one\n\n   two\tthree</p>")
	if got != "one two three" {
		t.Fatalf("expected collapsed text, got %q", got)
	}
}

func TestNormalizeReplacesTimestamps(t *testing.T) {
	t.Parallel()

	cases := []string{
		"<p>Updated 2025-11-08T13:37:00Z just now</p>",
		"<p>Updated 2025-11-08 13:37 just now</p>",
		"<p>Updated 8 Nov 2025 just now</p>",
		"<p>Updated November 8, 2025 just now</p>",
		"<p>Updated 08/11/2025 just now</p>",
		"<p>Updated at 13:37 just now</p>",
	}
	for _, html := range cases {
		got := Normalize(html)
		if !strings.Contains(got, timestampToken) {
			t.Fatalf("timestamp not tokenized in %q: got %q", html, got)
		}
		if strings.Contains(got, "2025") || strings.Contains(got, "13:37") {
			t.Fatalf("timestamp fragments survived in %q: got %q", html, got)
		}
	}
}

func TestHashIgnoresCosmeticChurn(t *testing.T) {
	t.Parallel()

	before := `<body><script>var v=1;</script><p>Stable   text. Updated 7 Nov 2025.</p></body>`
	after := `<body><script>var v=999;</script><p>Stable text.
	Updated 8 Nov 2025.</p></body>`

	if Hash(before) != Hash(after) {
		t.Fatalf("cosmetic churn changed the hash:\n%q\n%q", Normalize(before), Normalize(after))
	}
}

func TestHashDetectsRealChanges(t *testing.T) {
	t.Parallel()

	if Hash("<p>old copy</p>") == Hash("<p>new copy</p>") {
		t.Fatal("distinct content hashed equal")
	}
}

func TestNormalizeMalformedInput(t *testing.T) {
	t.Parallel()

	got := Normalize("<div><p>broken markup")
	if !strings.Contains(got, "broken markup") {
		t.Fatalf("malformed input lost content: %q", got)
	}
	if Normalize("") != "" {
		t.Fatal("empty input should normalize to empty")
	}
}
