// Package synth turns a knowledge graph into tiered insights. Three
// bounded passes run per query: premium nodes, cross-domain edges and
// contrarian rare-topic nodes. Ordering is stable: higher credibility
// wins ties, then the earlier publish timestamp.
package synth

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/knowledge"
	"github.com/mohammad-safakhou/prosora/models"
)

// PatternReader exposes learned correlations to bias confidence. A nil
// reader means no learning state yet.
type PatternReader interface {
	Pattern(patternType, descriptor string) (models.LearnedPattern, bool)
}

// Synthesizer ranks graph regions into insights.
type Synthesizer struct {
	premiumThreshold float64
	rarityThreshold  float64
	maxPremium       int
	maxCrossDomain   int
	maxContrarian    int
	patterns         PatternReader
	logger           *log.Logger
}

// New builds a synthesizer from pipeline bounds. Zero-valued caps fall
// back to 5/3/2 and the thresholds to 0.8/0.2.
func New(cfg config.PipelineConfig, patterns PatternReader, logger *log.Logger) *Synthesizer {
	s := &Synthesizer{
		premiumThreshold: cfg.PremiumThreshold,
		rarityThreshold:  cfg.RarityThreshold,
		maxPremium:       cfg.MaxPremiumInsights,
		maxCrossDomain:   cfg.MaxCrossDomain,
		maxContrarian:    cfg.MaxContrarian,
		patterns:         patterns,
		logger:           logger,
	}
	if s.premiumThreshold == 0 {
		s.premiumThreshold = 0.8
	}
	if s.rarityThreshold == 0 {
		s.rarityThreshold = 0.2
	}
	if s.maxPremium == 0 {
		s.maxPremium = 5
	}
	if s.maxCrossDomain == 0 {
		s.maxCrossDomain = 3
	}
	if s.maxContrarian == 0 {
		s.maxContrarian = 2
	}
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[SYNTH] ", log.LstdFlags)
	}
	return s
}

// Synthesize runs all three passes over the graph. It never fails; an
// empty or unlinkable graph just yields fewer insights.
func (s *Synthesizer) Synthesize(g *knowledge.Graph, profile models.QueryProfile) []models.Insight {
	out := s.premiumPass(g)
	out = append(out, s.crossDomainPass(g)...)
	out = append(out, s.contrarianPass(g)...)
	s.logger.Printf("synthesized %d insights (complexity=%s)", len(out), profile.Complexity)
	return out
}

func (s *Synthesizer) premiumPass(g *knowledge.Graph) []models.Insight {
	var candidates []knowledge.Node
	for _, n := range g.Nodes {
		if n.Credibility >= s.premiumThreshold {
			candidates = append(candidates, n)
		}
	}
	sortNodes(candidates)

	var out []models.Insight
	for _, n := range candidates {
		if len(out) == s.maxPremium {
			break
		}
		out = append(out, s.nodeInsight(n, g, models.InsightTierPremium,
			"Premium signal: "+headline(n)))
	}
	return out
}

func (s *Synthesizer) crossDomainPass(g *knowledge.Graph) []models.Insight {
	type scored struct {
		edge  knowledge.Edge
		a, b  knowledge.Node
		score float64
	}
	var candidates []scored
	for _, e := range g.Edges {
		a, _ := g.Node(e.A)
		b, _ := g.Node(e.B)
		if !disjointDomains(a.Item.DomainTags, b.Item.DomainTags) {
			continue
		}
		avgCred := (a.Credibility + b.Credibility) / 2
		candidates = append(candidates, scored{edge: e, a: a, b: b, score: float64(e.Weight) * avgCred})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].edge.A < candidates[j].edge.A
	})

	var out []models.Insight
	for _, c := range candidates {
		if len(out) == s.maxCrossDomain {
			break
		}
		text := fmt.Sprintf("Cross-domain link (%s × %s): %s meets %s",
			joinDomains(c.a.Item.DomainTags), joinDomains(c.b.Item.DomainTags),
			headline(c.a), headline(c.b))
		ins := models.Insight{
			ID:              uuid.NewString(),
			Tier:            models.InsightTierCrossDomain,
			Text:            text,
			SupportingNodes: []string{c.a.ID, c.b.ID},
			DomainTags:      unionDomains(c.a.Item.DomainTags, c.b.Item.DomainTags),
			Confidence:      s.confidence((c.a.Credibility+c.b.Credibility)/2, c.edge.Weight, models.InsightTierCrossDomain),
		}
		out = append(out, ins)
	}
	return out
}

func (s *Synthesizer) contrarianPass(g *knowledge.Graph) []models.Insight {
	if len(g.Nodes) == 0 {
		return nil
	}
	counts := g.TopicCounts()
	total := float64(len(g.Nodes))

	var candidates []knowledge.Node
	var topicFor = make(map[string]string)
	for _, n := range g.Nodes {
		for _, t := range n.Topics {
			if float64(counts[t])/total < s.rarityThreshold {
				candidates = append(candidates, n)
				topicFor[n.ID] = t
				break
			}
		}
	}
	sortNodes(candidates)

	var out []models.Insight
	for _, n := range candidates {
		if len(out) == s.maxContrarian {
			break
		}
		out = append(out, s.nodeInsight(n, g, models.InsightTierContrarian,
			fmt.Sprintf("Contrarian angle on %s: %s", topicFor[n.ID], headline(n))))
	}
	return out
}

func (s *Synthesizer) nodeInsight(n knowledge.Node, g *knowledge.Graph, tier models.InsightTier, text string) models.Insight {
	support := 0
	for _, e := range g.EdgesOf(n.ID) {
		support += e.Weight
	}
	return models.Insight{
		ID:              uuid.NewString(),
		Tier:            tier,
		Text:            text,
		SupportingNodes: []string{n.ID},
		DomainTags:      n.Item.DomainTags,
		Confidence:      s.confidence(n.Credibility, support, tier),
	}
}

// confidence blends credibility with edge support, then applies a small
// bias from the learned insight-tier correlation. Always in [0,1].
func (s *Synthesizer) confidence(credibility float64, edgeSupport int, tier models.InsightTier) float64 {
	support := float64(edgeSupport) / 5.0
	if support > 1 {
		support = 1
	}
	c := 0.7*credibility + 0.3*support
	if s.patterns != nil {
		if p, ok := s.patterns.Pattern("insight_tier", string(tier)); ok {
			c += 0.05 * p.Correlation
		}
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func sortNodes(nodes []knowledge.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Credibility != nodes[j].Credibility {
			return nodes[i].Credibility > nodes[j].Credibility
		}
		if !nodes[i].Item.PublishedAt.Equal(nodes[j].Item.PublishedAt) {
			return nodes[i].Item.PublishedAt.Before(nodes[j].Item.PublishedAt)
		}
		return nodes[i].ID < nodes[j].ID
	})
}

func headline(n knowledge.Node) string {
	if t := strings.TrimSpace(n.Item.Body.Title); t != "" {
		return t
	}
	text := strings.TrimSpace(n.Item.Body.Text)
	if len(text) > 140 {
		return text[:140] + "..."
	}
	return text
}

func disjointDomains(a, b []models.Domain) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[models.Domain]bool, len(a))
	for _, d := range a {
		set[d] = true
	}
	for _, d := range b {
		if set[d] {
			return false
		}
	}
	return true
}

func unionDomains(a, b []models.Domain) []models.Domain {
	set := make(map[models.Domain]bool)
	var out []models.Domain
	for _, d := range append(append([]models.Domain{}, a...), b...) {
		if !set[d] {
			set[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinDomains(domains []models.Domain) string {
	if len(domains) == 0 {
		return "general"
	}
	parts := make([]string, len(domains))
	for i, d := range domains {
		parts[i] = string(d)
	}
	return strings.Join(parts, "+")
}
