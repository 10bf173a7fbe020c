package domain

// ChangeType labels a structural difference between two captures of the
// same URL or artifact. Changes carry no severity; classification happens
// in a separate pass.
type ChangeType string

const (
	StatusChanged         ChangeType = "status_changed"
	RedirectTargetChanged ChangeType = "redirect_target_changed"
	TitleChanged          ChangeType = "title_changed"
	CanonicalChanged      ChangeType = "canonical_changed"
	MetaRobotsChanged     ChangeType = "meta_robots_changed"
	ContentHashChanged    ChangeType = "content_hash_changed"
	FetchFailed           ChangeType = "fetch_failed"
	RobotsDisappeared     ChangeType = "robots_disappeared"
	RobotsBlocksKeyPath   ChangeType = "robots_blocks_key_path"
	SitemapDisappeared    ChangeType = "sitemap_disappeared"
	SitemapCountDropped   ChangeType = "sitemap_count_dropped"
)

// RawChange is one detected difference with its old and new values. The
// qualifier fields refine a subset of change types so the classifier never
// re-parses values.
type RawChange struct {
	Type ChangeType
	// URL is empty for site-level artifact changes.
	URL string
	Old string
	New string

	// MetaRobotsChanged: which way the noindex directive moved.
	NoindexAdded   bool
	NoindexRemoved bool

	// CanonicalChanged qualifiers.
	CanonicalRemoved   bool
	CanonicalOffDomain bool

	// SitemapCountDropped: fraction of URLs lost, in (0, 1].
	DropRatio float64
}
