// Package normalize reduces raw page HTML to a stable text form so that
// cosmetic churn never registers as content drift.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// timestampToken stands in for date and time strings in normalized output.
const timestampToken = "<ts>"

// strippedSelectors removes non-content and chrome elements wholesale. The
// head goes too: titles and meta tags are tracked as snapshot fields, not
// as page content.
const strippedSelectors = "head, script, style, noscript, nav, header, footer"

var (
	noisePattern = regexp.MustCompile(`(?i)cookie|consent|gdpr`)

	// Ordered from most to least specific so a full ISO timestamp never
	// leaves a half-replaced clock behind.
	timestampPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}([Tt ]\d{2}:\d{2}(:\d{2}(\.\d+)?)?([Zz]|[+-]\d{2}:?\d{2})?)?`),
		regexp.MustCompile(`\d{1,2} [A-Z][a-z]{2,8} \d{4}`),
		regexp.MustCompile(`[A-Z][a-z]{2,8} \d{1,2}, \d{4}`),
		regexp.MustCompile(`\d{1,2}[./]\d{1,2}[./]\d{4}`),
		regexp.MustCompile(`\d{1,2}:\d{2}(:\d{2})?`),
	}

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalize extracts comparable text from raw HTML. Scripts, styles and
// page chrome are dropped, as are elements whose id or class marks them as
// cookie/consent banners. Whitespace collapses to single spaces and
// timestamp-shaped substrings become a fixed token. Malformed input
// degrades to best-effort text; Normalize never errors.
func Normalize(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return collapse(scrubTimestamps(rawHTML))
	}

	doc.Find(strippedSelectors).Remove()
	doc.Find("[id],[class]").Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("id")
		class, _ := sel.Attr("class")
		if noisePattern.MatchString(id) || noisePattern.MatchString(class) {
			sel.Remove()
		}
	})

	return collapse(scrubTimestamps(doc.Text()))
}

// Hash returns the hex SHA-256 of the normalized text. Snapshots store this
// hash instead of the raw content.
func Hash(rawHTML string) string {
	sum := sha256.Sum256([]byte(Normalize(rawHTML)))
	return hex.EncodeToString(sum[:])
}

func scrubTimestamps(text string) string {
	for _, pattern := range timestampPatterns {
		text = pattern.ReplaceAllString(text, timestampToken)
	}
	return text
}

func collapse(text string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
