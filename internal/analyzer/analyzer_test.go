package analyzer

import (
	"testing"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/models"
)

func TestAnalyzeCrossDomainQuery(t *testing.T) {
	a := New(config.Vocabulary{})
	profile, err := a.Analyze("AI regulation in fintech")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if profile.Complexity != models.ComplexityCrossDomain {
		t.Fatalf("expected cross_domain complexity, got %s", profile.Complexity)
	}
	if profile.EvidenceLevel != models.EvidenceLevelPremium {
		t.Fatalf("expected premium evidence level, got %s", profile.EvidenceLevel)
	}
	want := map[models.Domain]bool{models.DomainTech: true, models.DomainPolitics: true, models.DomainFinance: true}
	if len(profile.Domains) != len(want) {
		t.Fatalf("unexpected domains: %v", profile.Domains)
	}
	for _, d := range profile.Domains {
		if !want[d] {
			t.Fatalf("unexpected domain %s", d)
		}
	}
}

func TestAnalyzeIntentDetection(t *testing.T) {
	a := New(config.Vocabulary{})
	cases := []struct {
		text string
		want models.Intent
	}{
		{"write a linkedin post about ai", models.IntentLinkedInPost},
		{"twitter thread on banking", models.IntentTwitterThread},
		{"blog outline for product strategy", models.IntentBlogOutline},
		{"what's happening with chip supply", models.IntentAnalysis},
	}
	for _, tc := range cases {
		profile, err := a.Analyze(tc.text)
		if err != nil {
			t.Fatalf("Analyze(%q): %v", tc.text, err)
		}
		if profile.Intent != tc.want {
			t.Fatalf("Analyze(%q) intent = %s, want %s", tc.text, profile.Intent, tc.want)
		}
	}
}

func TestAnalyzeContrarian(t *testing.T) {
	a := New(config.Vocabulary{})
	profile, err := a.Analyze("the contrarian case against fintech hype")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if profile.Complexity != models.ComplexityContrarian {
		t.Fatalf("expected contrarian, got %s", profile.Complexity)
	}
	if profile.EvidenceLevel != models.EvidenceLevelComprehensive {
		t.Fatalf("expected comprehensive evidence, got %s", profile.EvidenceLevel)
	}
}

func TestAnalyzeDefaultBucketNeverFails(t *testing.T) {
	a := New(config.Vocabulary{})
	profile, err := a.Analyze("xylophone weather")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(profile.Domains) != 0 || profile.Complexity != models.ComplexitySimple || profile.Intent != models.IntentAnalysis {
		t.Fatalf("expected default bucket, got %+v", profile)
	}
}

func TestAnalyzeEmptyQuery(t *testing.T) {
	a := New(config.Vocabulary{})
	if _, err := a.Analyze("   \t "); err != models.ErrInvalidQuery {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestAnalyzeCustomVocabulary(t *testing.T) {
	a := New(config.Vocabulary{Domains: map[string][]string{"tech": {"quantum"}}})
	profile, err := a.Analyze("quantum breakthroughs this week")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(profile.Domains) != 1 || profile.Domains[0] != models.DomainTech {
		t.Fatalf("custom vocabulary not applied: %v", profile.Domains)
	}
}
