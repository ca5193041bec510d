// Package web_search wraps the external search capability used for evidence
// lookups. Providers return ranked results annotated with an evidence kind
// and a baseline credibility for that kind.
package web_search

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/prosora/models"
	"github.com/mohammad-safakhou/prosora/tools/web_search/brave"
	searchmodels "github.com/mohammad-safakhou/prosora/tools/web_search/models"
	"github.com/mohammad-safakhou/prosora/tools/web_search/serper"
)

// Result is one ranked search hit with credibility metadata.
type Result struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Snippet     string  `json:"snippet"`
	Credibility float64 `json:"credibility"`
}

// Searcher issues one evidence lookup of a given kind.
type Searcher interface {
	Search(ctx context.Context, query string, kind models.EvidenceKind, k int) ([]Result, error)
}

type Provider string

const (
	BraveProvider  Provider = "brave"
	SerperProvider Provider = "serper"
)

type discoverer interface {
	Discover(ctx context.Context, q string, k int) ([]searchmodels.Result, error)
}

type searcher struct {
	inner discoverer
}

// NewSearcher builds a searcher backed by the requested provider.
func NewSearcher(provider Provider, apiKey string) (Searcher, error) {
	switch provider {
	case BraveProvider:
		return searcher{inner: brave.Search{ApiKey: apiKey}}, nil
	case SerperProvider:
		return searcher{inner: serper.Search{ApiKey: apiKey}}, nil
	default:
		return nil, fmt.Errorf("unsupported search provider %q", provider)
	}
}

func (s searcher) Search(ctx context.Context, query string, kind models.EvidenceKind, k int) ([]Result, error) {
	hits, err := s.inner.Discover(ctx, KindQuery(query, kind), k)
	if err != nil {
		return nil, err
	}
	base := KindCredibility(kind)
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{Title: h.Title, URL: h.URL, Snippet: h.Snippet, Credibility: base})
	}
	return out, nil
}

// Baseline credibility per evidence kind.
var kindCredibility = map[models.EvidenceKind]float64{
	models.EvidenceKindAcademic: 0.9,
	models.EvidenceKindNews:     0.7,
	models.EvidenceKindTrend:    0.8,
}

// KindCredibility returns the baseline credibility for an evidence kind.
func KindCredibility(kind models.EvidenceKind) float64 {
	if v, ok := kindCredibility[kind]; ok {
		return v
	}
	return 0.5
}

// KindQuery decorates a query with kind-specific qualifiers.
func KindQuery(query string, kind models.EvidenceKind) string {
	switch kind {
	case models.EvidenceKindAcademic:
		return query + " site:arxiv.org OR site:papers.ssrn.com OR site:scholar.google.com"
	case models.EvidenceKindNews:
		return query + " news"
	default:
		return query
	}
}
