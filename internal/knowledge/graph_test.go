package knowledge

import (
	"reflect"
	"testing"
	"time"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/models"
)

func testVocabulary() config.Vocabulary {
	return config.Vocabulary{
		Entities: map[string][]string{
			"eu": {"european union"},
		},
		Topics: map[string][]string{
			"ai_regulation": {"ai regulation", "ai act"},
			"fintech":       {"fintech", "payments"},
			"gardening":     {"tomato"},
		},
	}
}

func item(id, text string, cred float64, domains ...models.Domain) models.ContentItem {
	return models.ContentItem{
		ID:          id,
		SourceID:    "src-" + id,
		Body:        models.ContentBody{Kind: models.ContentKindText, Text: text},
		PublishedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		DomainTags:  domains,
		Credibility: cred,
	}
}

func TestBuildLinksNodesBySharedTags(t *testing.T) {
	b := NewBuilder(testVocabulary())
	g := b.Build([]models.ContentItem{
		item("a", "The European Union drafts AI regulation for banks", 0.9, models.DomainPolitics),
		item("b", "Fintech startups brace for the AI Act", 0.8, models.DomainFinance),
		item("c", "How to grow a tomato on a balcony", 0.5, models.DomainProduct),
	})

	if len(g.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(g.Nodes))
	}
	if len(g.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %+v", g.Edges)
	}
	e := g.Edges[0]
	if e.A != "a" || e.B != "b" || e.Weight != 1 {
		t.Fatalf("unexpected edge %+v", e)
	}
	if e.Shared[0] != "ai_regulation" {
		t.Fatalf("unexpected shared tags %v", e.Shared)
	}
}

func TestBuildRetainsIsolatedNodes(t *testing.T) {
	b := NewBuilder(testVocabulary())
	g := b.Build([]models.ContentItem{
		item("solo", "tomato season is here", 0.95),
	})
	if len(g.Nodes) != 1 || len(g.Edges) != 0 {
		t.Fatalf("isolated node must survive: nodes=%d edges=%d", len(g.Nodes), len(g.Edges))
	}
	if n, ok := g.Node("solo"); !ok || n.Topics[0] != "gardening" {
		t.Fatalf("node lookup failed: %+v ok=%v", n, ok)
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	items := []models.ContentItem{
		item("a", "european union ai regulation and payments", 0.9),
		item("b", "fintech payments under the ai act", 0.7),
		item("c", "ai regulation timeline", 0.6),
	}
	b := NewBuilder(testVocabulary())
	first := b.Build(items)
	second := b.Build(items)

	if !reflect.DeepEqual(first.Nodes, second.Nodes) {
		t.Fatal("node sets differ between identical rebuilds")
	}
	if !reflect.DeepEqual(first.Edges, second.Edges) {
		t.Fatal("edge sets differ between identical rebuilds")
	}
}

func TestBuildEdgeWeightCountsOverlap(t *testing.T) {
	b := NewBuilder(testVocabulary())
	g := b.Build([]models.ContentItem{
		item("a", "european union ai regulation hits payments firms", 0.9),
		item("b", "european union weighs ai act impact on fintech", 0.8),
	})
	if len(g.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(g.Edges))
	}
	// shared: eu entity + ai_regulation + fintech topics
	if g.Edges[0].Weight != 3 {
		t.Fatalf("expected weight 3, got %+v", g.Edges[0])
	}
}

func TestNodeCredibilityInheritedFromItem(t *testing.T) {
	b := NewBuilder(testVocabulary())
	g := b.Build([]models.ContentItem{item("a", "ai regulation", 0.42)})
	if g.Nodes[0].Credibility != 0.42 {
		t.Fatalf("credibility not inherited: %v", g.Nodes[0].Credibility)
	}
}
