// Package analyzer classifies a free-text query into intent, target
// domains, complexity and the evidence strength the run should aim for.
// Pure keyword rules, no side effects, and it never fails on content: an
// unmatched query lands in the default bucket.
package analyzer

import (
	"sort"
	"strings"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/helpers"
	"github.com/mohammad-safakhou/prosora/models"
)

var defaultDomainKeywords = map[models.Domain][]string{
	models.DomainTech:     {"ai", "artificial intelligence", "machine learning", "technology", "software", "automation", "blockchain"},
	models.DomainPolitics: {"regulation", "policy", "government", "governance", "compliance", "political", "democracy"},
	models.DomainProduct:  {"product", "user experience", "growth", "strategy", "startup", "innovation"},
	models.DomainFinance:  {"fintech", "finance", "banking", "investment", "market", "economic"},
}

var intentKeywords = []struct {
	intent   models.Intent
	keywords []string
}{
	{models.IntentLinkedInPost, []string{"linkedin", "post", "professional"}},
	{models.IntentTwitterThread, []string{"twitter", "thread", "tweets"}},
	{models.IntentBlogOutline, []string{"blog", "article", "outline"}},
}

var contrarianKeywords = []string{"contrarian", "against", "overrated", "myth", "wrong about", "counterintuitive", "unpopular"}

// Analyzer classifies queries against a domain vocabulary.
type Analyzer struct {
	domains map[models.Domain][]string
}

// New builds an analyzer. An empty vocabulary falls back to the built-in
// domain keywords.
func New(vocab config.Vocabulary) *Analyzer {
	domains := make(map[models.Domain][]string)
	for name, words := range vocab.Domains {
		if len(words) > 0 {
			domains[models.Domain(name)] = words
		}
	}
	if len(domains) == 0 {
		domains = defaultDomainKeywords
	}
	return &Analyzer{domains: domains}
}

// Analyze classifies the query. The only failure mode is empty text.
func (a *Analyzer) Analyze(text string) (models.QueryProfile, error) {
	normalized := helpers.NormalizeText(text)
	if normalized == "" {
		return models.QueryProfile{}, models.ErrInvalidQuery
	}

	profile := models.QueryProfile{
		Intent:  a.intent(normalized),
		Domains: a.domainsFor(normalized),
	}
	profile.Complexity = a.complexity(normalized, profile.Domains)
	profile.EvidenceLevel = evidenceFor(profile.Complexity)
	return profile, nil
}

func (a *Analyzer) intent(normalized string) models.Intent {
	for _, candidate := range intentKeywords {
		for _, kw := range candidate.keywords {
			if strings.Contains(normalized, kw) {
				return candidate.intent
			}
		}
	}
	return models.IntentAnalysis
}

func (a *Analyzer) domainsFor(normalized string) []models.Domain {
	var out []models.Domain
	for domain, keywords := range a.domains {
		for _, kw := range keywords {
			if strings.Contains(normalized, strings.ToLower(kw)) {
				out = append(out, domain)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *Analyzer) complexity(normalized string, domains []models.Domain) models.Complexity {
	for _, kw := range contrarianKeywords {
		if strings.Contains(normalized, kw) {
			return models.ComplexityContrarian
		}
	}
	if len(domains) >= 2 || strings.Contains(normalized, "intersection") {
		return models.ComplexityCrossDomain
	}
	return models.ComplexitySimple
}

func evidenceFor(c models.Complexity) models.EvidenceLevel {
	switch c {
	case models.ComplexityContrarian:
		return models.EvidenceLevelComprehensive
	case models.ComplexityCrossDomain:
		return models.EvidenceLevelPremium
	default:
		return models.EvidenceLevelBasic
	}
}
