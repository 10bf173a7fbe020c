package diff

import (
	"testing"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
)

func robotsArtifact(content string) *domain.Artifact {
	return &domain.Artifact{
		CustomerID: "cust-1",
		Type:       domain.ArtifactRobots,
		Content:    content,
	}
}

func sitemapArtifact(urlCount int) *domain.Artifact {
	art := &domain.Artifact{
		CustomerID: "cust-1",
		Type:       domain.ArtifactSitemap,
		Content:    "<urlset/>",
	}
	art.SetURLCount(urlCount)
	return art
}

func TestArtifactsBaseline(t *testing.T) {
	t.Parallel()

	if got := Artifacts(nil, robotsArtifact("User-agent: *\nAllow: /"), nil); got != nil {
		t.Fatalf("baseline produced changes: %+v", got)
	}
}

func TestRobotsBlocksKeyPath(t *testing.T) {
	t.Parallel()

	prior := robotsArtifact("User-agent: *\nDisallow: /admin/\n")
	current := robotsArtifact("User-agent: *\nDisallow: /admin/\nDisallow: /pricing\n")
	keyURLs := []string{"https://example.com/pricing", "https://example.com/about"}

	changes := Artifacts(prior, current, keyURLs)
	if len(changes) != 1 {
		t.Fatalf("expected exactly one block, got %+v", changes)
	}
	if changes[0].Type != domain.RobotsBlocksKeyPath || changes[0].URL != "https://example.com/pricing" {
		t.Fatalf("wrong change: %+v", changes[0])
	}
}

func TestRobotsUnchangedRulesProduceNothing(t *testing.T) {
	t.Parallel()

	content := "User-agent: *\nDisallow: /private/\n"
	changes := Artifacts(robotsArtifact(content), robotsArtifact(content), []string{"https://example.com/pricing"})
	if len(changes) != 0 {
		t.Fatalf("unchanged robots produced changes: %+v", changes)
	}
}

func TestRobotsDisappeared(t *testing.T) {
	t.Parallel()

	prior := robotsArtifact("User-agent: *\nDisallow: /admin/\n")
	current := robotsArtifact("")

	changes := Artifacts(prior, current, []string{"https://example.com/pricing"})
	if len(changes) != 1 || changes[0].Type != domain.RobotsDisappeared {
		t.Fatalf("expected RobotsDisappeared, got %+v", changes)
	}
}

func TestRobotsUnparseablePriorTreatedAsAllowAll(t *testing.T) {
	t.Parallel()

	// Whatever the prior looked like, a new rule that blocks a key page
	// must surface.
	prior := robotsArtifact("\x00\x01garbage")
	current := robotsArtifact("User-agent: *\nDisallow: /\n")

	changes := Artifacts(prior, current, []string{"https://example.com/pricing"})
	if len(changes) != 1 || changes[0].Type != domain.RobotsBlocksKeyPath {
		t.Fatalf("expected RobotsBlocksKeyPath, got %+v", changes)
	}
}

func TestSitemapDisappeared(t *testing.T) {
	t.Parallel()

	changes := Artifacts(sitemapArtifact(120), &domain.Artifact{Type: domain.ArtifactSitemap}, nil)
	if len(changes) != 1 || changes[0].Type != domain.SitemapDisappeared {
		t.Fatalf("expected SitemapDisappeared, got %+v", changes)
	}
	if changes[0].Old != "120" {
		t.Fatalf("expected prior count in Old, got %+v", changes[0])
	}
}

func TestSitemapCountDropped(t *testing.T) {
	t.Parallel()

	changes := Artifacts(sitemapArtifact(200), sitemapArtifact(90), nil)
	if len(changes) != 1 || changes[0].Type != domain.SitemapCountDropped {
		t.Fatalf("expected SitemapCountDropped, got %+v", changes)
	}
	if changes[0].DropRatio != 0.55 {
		t.Fatalf("wrong drop ratio: %v", changes[0].DropRatio)
	}
}

func TestSitemapGrowthProducesNothing(t *testing.T) {
	t.Parallel()

	if changes := Artifacts(sitemapArtifact(100), sitemapArtifact(150), nil); len(changes) != 0 {
		t.Fatalf("sitemap growth produced changes: %+v", changes)
	}
}
