package synth

import (
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/knowledge"
	"github.com/mohammad-safakhou/prosora/models"
)

func buildGraph(t *testing.T, items []models.ContentItem) *knowledge.Graph {
	t.Helper()
	vocab := config.Vocabulary{Topics: map[string][]string{
		"ai_regulation": {"ai regulation"},
		"fintech":       {"fintech"},
		"niche":         {"quantum gardening"},
	}}
	return knowledge.NewBuilder(vocab).Build(items)
}

func item(id, text string, cred float64, published time.Time, domains ...models.Domain) models.ContentItem {
	return models.ContentItem{
		ID:          id,
		SourceID:    "src-" + id,
		Body:        models.ContentBody{Kind: models.ContentKindText, Text: text},
		PublishedAt: published,
		DomainTags:  domains,
		Credibility: cred,
	}
}

func newSynth() *Synthesizer {
	return New(config.PipelineConfig{}, nil, nil)
}

func tiers(insights []models.Insight) map[models.InsightTier]int {
	out := make(map[models.InsightTier]int)
	for _, in := range insights {
		out[in.Tier]++
	}
	return out
}

func TestSynthesizePremiumAndCrossDomain(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	g := buildGraph(t, []models.ContentItem{
		item("tech1", "new ai regulation framework for models", 0.9, now, models.DomainTech),
		item("fin1", "fintech lenders respond to ai regulation", 0.85, now, models.DomainFinance),
		item("weak", "fintech roundup", 0.4, now, models.DomainFinance),
	})

	got := newSynth().Synthesize(g, models.QueryProfile{Complexity: models.ComplexityCrossDomain})
	byTier := tiers(got)
	if byTier[models.InsightTierPremium] < 1 {
		t.Fatalf("expected at least one premium insight, got %+v", byTier)
	}
	if byTier[models.InsightTierCrossDomain] < 1 {
		t.Fatalf("expected at least one cross_domain insight, got %+v", byTier)
	}
	for _, in := range got {
		if in.Confidence < 0 || in.Confidence > 1 {
			t.Fatalf("confidence out of range: %+v", in)
		}
		if in.Tier != models.InsightTierPremium && in.Tier != models.InsightTierCrossDomain && in.Tier != models.InsightTierContrarian {
			t.Fatalf("unknown tier %q", in.Tier)
		}
	}
}

func TestPremiumPassRespectsThresholdAndCap(t *testing.T) {
	now := time.Now()
	var items []models.ContentItem
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		items = append(items, item(id, "ai regulation note "+id, 0.9, now, models.DomainTech))
	}
	items = append(items, item("below", "ai regulation afterthought", 0.79, now, models.DomainTech))
	g := buildGraph(t, items)

	got := New(config.PipelineConfig{MaxPremiumInsights: 5}, nil, nil).Synthesize(g, models.QueryProfile{})
	premium := 0
	for _, in := range got {
		if in.Tier != models.InsightTierPremium {
			continue
		}
		premium++
		if in.SupportingNodes[0] == "below" {
			t.Fatal("node under premium threshold must not produce a premium insight")
		}
	}
	if premium != 5 {
		t.Fatalf("premium cap not enforced: got %d", premium)
	}
}

func TestCrossDomainRequiresDisjointTags(t *testing.T) {
	now := time.Now()
	g := buildGraph(t, []models.ContentItem{
		item("a", "ai regulation story", 0.6, now, models.DomainTech, models.DomainFinance),
		item("b", "ai regulation follow-up", 0.6, now, models.DomainFinance),
	})
	got := newSynth().Synthesize(g, models.QueryProfile{})
	if n := tiers(got)[models.InsightTierCrossDomain]; n != 0 {
		t.Fatalf("overlapping domain sets must not yield cross_domain insights, got %d", n)
	}
}

func TestTieBreakEarlierPublishWins(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g := buildGraph(t, []models.ContentItem{
		item("late", "ai regulation take", 0.9, now.Add(time.Hour), models.DomainTech),
		item("early", "ai regulation scoop", 0.9, now, models.DomainTech),
	})
	got := New(config.PipelineConfig{MaxPremiumInsights: 1}, nil, nil).Synthesize(g, models.QueryProfile{})
	var premium *models.Insight
	for i := range got {
		if got[i].Tier == models.InsightTierPremium {
			premium = &got[i]
			break
		}
	}
	if premium == nil || premium.SupportingNodes[0] != "early" {
		t.Fatalf("equal credibility should prefer the earlier publish, got %+v", premium)
	}
}

func TestContrarianPassFlagsRareTopics(t *testing.T) {
	now := time.Now()
	items := []models.ContentItem{
		item("rare", "a case for quantum gardening in portfolios", 0.6, now, models.DomainFinance),
	}
	for i := 0; i < 9; i++ {
		items = append(items, item("m"+strings.Repeat("x", i+1), "ai regulation coverage", 0.5, now, models.DomainTech))
	}
	g := buildGraph(t, items)

	got := newSynth().Synthesize(g, models.QueryProfile{Complexity: models.ComplexityContrarian})
	found := false
	for _, in := range got {
		if in.Tier == models.InsightTierContrarian && in.SupportingNodes[0] == "rare" {
			found = true
			if !strings.Contains(in.Text, "Contrarian") {
				t.Fatalf("contrarian framing missing: %q", in.Text)
			}
		}
	}
	if !found {
		t.Fatalf("rare-topic node not surfaced as contrarian: %+v", got)
	}
}

type fixedPatterns map[string]models.LearnedPattern

func (f fixedPatterns) Pattern(patternType, descriptor string) (models.LearnedPattern, bool) {
	p, ok := f[patternType+":"+descriptor]
	return p, ok
}

func TestPatternCorrelationBiasesConfidence(t *testing.T) {
	now := time.Now()
	items := []models.ContentItem{item("a", "ai regulation report", 0.9, now, models.DomainTech)}
	g := buildGraph(t, items)

	plain := newSynth().Synthesize(g, models.QueryProfile{})
	boosted := New(config.PipelineConfig{}, fixedPatterns{
		"insight_tier:premium": {PatternType: "insight_tier", Descriptor: "premium", Correlation: 1},
	}, nil).Synthesize(g, models.QueryProfile{})

	if !(boosted[0].Confidence > plain[0].Confidence) {
		t.Fatalf("positive correlation should lift confidence: %v vs %v", boosted[0].Confidence, plain[0].Confidence)
	}
	if boosted[0].Confidence > 1 {
		t.Fatalf("confidence escaped [0,1]: %v", boosted[0].Confidence)
	}
}
