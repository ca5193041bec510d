// Package knowledge builds the per-cycle knowledge graph: content items
// become nodes tagged with vocabulary entities and topics, and any two
// nodes sharing a tag get an undirected edge weighted by the overlap
// count. The graph is rebuilt fresh from each item snapshot.
package knowledge

import (
	"sort"
	"strings"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/helpers"
	"github.com/mohammad-safakhou/prosora/models"
)

// Node wraps one content item with its extracted tags. Credibility is
// inherited from the item, which inherits it from its source.
type Node struct {
	ID          string          `json:"id"`
	Item        models.ContentItem `json:"item"`
	Entities    []string        `json:"entities"`
	Topics      []string        `json:"topics"`
	Credibility float64         `json:"credibility"`
}

// Tags returns entities and topics merged, sorted.
func (n Node) Tags() []string {
	out := make([]string, 0, len(n.Entities)+len(n.Topics))
	out = append(out, n.Entities...)
	out = append(out, n.Topics...)
	sort.Strings(out)
	return out
}

// Edge links two nodes sharing at least one tag. A and B are node ids
// with A < B so an unordered pair has one canonical form.
type Edge struct {
	A      string   `json:"a"`
	B      string   `json:"b"`
	Weight int      `json:"weight"`
	Shared []string `json:"shared"`
}

// Graph is the per-cycle linkage of content items.
type Graph struct {
	Nodes []Node
	Edges []Edge

	byID map[string]int
}

// Node looks a node up by id.
func (g *Graph) Node(id string) (Node, bool) {
	idx, ok := g.byID[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[idx], true
}

// EdgesOf returns every edge touching the node.
func (g *Graph) EdgesOf(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.A == id || e.B == id {
			out = append(out, e)
		}
	}
	return out
}

// TopicCounts returns how many nodes carry each topic.
func (g *Graph) TopicCounts() map[string]int {
	counts := make(map[string]int)
	for _, n := range g.Nodes {
		for _, t := range n.Topics {
			counts[t]++
		}
	}
	return counts
}

var defaultEntities = map[string][]string{
	"openai":    {"openai", "chatgpt", "gpt-4"},
	"eu":        {"european union", "eu commission", "brussels"},
	"sec":       {"sec", "securities and exchange"},
	"stripe":    {"stripe"},
	"coinbase":  {"coinbase"},
	"anthropic": {"anthropic", "claude"},
}

var defaultTopics = map[string][]string{
	"ai_regulation":   {"ai regulation", "ai act", "ai policy", "ai governance"},
	"fintech":         {"fintech", "digital banking", "payments", "neobank"},
	"machine_learning": {"machine learning", "deep learning", "llm", "language model"},
	"markets":         {"interest rate", "stock market", "inflation", "ipo"},
	"privacy":         {"privacy", "data protection", "gdpr"},
	"product_growth":  {"product-led", "user growth", "retention", "onboarding"},
}

// Builder extracts tags against a vocabulary and assembles the graph.
type Builder struct {
	entities map[string][]string
	topics   map[string][]string
}

// NewBuilder builds a graph builder. Empty vocabulary sections fall back
// to the built-in defaults.
func NewBuilder(vocab config.Vocabulary) *Builder {
	b := &Builder{entities: vocab.Entities, topics: vocab.Topics}
	if len(b.entities) == 0 {
		b.entities = defaultEntities
	}
	if len(b.topics) == 0 {
		b.topics = defaultTopics
	}
	return b
}

// Build assembles the graph from an item snapshot. The same snapshot
// always yields the same nodes, edges and weights: nodes are ordered by
// item id and edges by their canonical pair.
func (b *Builder) Build(items []models.ContentItem) *Graph {
	g := &Graph{byID: make(map[string]int, len(items))}

	for _, it := range items {
		text := helpers.NormalizeText(it.Body.Title + " " + it.Body.Text)
		g.Nodes = append(g.Nodes, Node{
			ID:          it.ID,
			Item:        it,
			Entities:    matchVocabulary(text, b.entities),
			Topics:      matchVocabulary(text, b.topics),
			Credibility: it.Credibility,
		})
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	for i, n := range g.Nodes {
		g.byID[n.ID] = i
	}

	for i := 0; i < len(g.Nodes); i++ {
		for j := i + 1; j < len(g.Nodes); j++ {
			shared := intersect(g.Nodes[i].Tags(), g.Nodes[j].Tags())
			if len(shared) == 0 {
				continue
			}
			g.Edges = append(g.Edges, Edge{
				A:      g.Nodes[i].ID,
				B:      g.Nodes[j].ID,
				Weight: len(shared),
				Shared: shared,
			})
		}
	}
	return g
}

func matchVocabulary(normalized string, vocab map[string][]string) []string {
	var out []string
	for canonical, phrases := range vocab {
		for _, phrase := range phrases {
			if strings.Contains(normalized, strings.ToLower(phrase)) {
				out = append(out, canonical)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// intersect assumes both inputs sorted.
func intersect(a, b []string) []string {
	var out []string
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}
