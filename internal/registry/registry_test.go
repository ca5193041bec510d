package registry

import (
	"sync"
	"testing"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/models"
)

func testSources() []models.Source {
	return []models.Source{
		{ID: "a16z", URI: "https://a16z.com/feed", Tier: models.SourceTierPremium, Credibility: 0.85, DomainTags: []models.Domain{models.DomainTech}},
		{ID: "fintech-times", URI: "https://ft.example/feed", Tier: models.SourceTierStandard, Credibility: 0.6, DomainTags: []models.Domain{models.DomainFinance}},
	}
}

func TestAdjustCredibilityClamps(t *testing.T) {
	r := New(testSources(), config.Vocabulary{}, nil)

	got, err := r.AdjustCredibility("a16z", +0.5)
	if err != nil {
		t.Fatalf("AdjustCredibility: %v", err)
	}
	if got != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %v", got)
	}

	got, _ = r.AdjustCredibility("fintech-times", -2.0)
	if got != 0.0 {
		t.Fatalf("expected clamp to 0.0, got %v", got)
	}

	if _, err := r.AdjustCredibility("nope", 0.01); err != models.ErrSourceNotFound {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestAdjustCredibilityConcurrent(t *testing.T) {
	r := New(testSources(), config.Vocabulary{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.AdjustCredibility("a16z", 0.001)
		}()
	}
	wg.Wait()
	src, err := r.Get("a16z")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if src.Credibility < 0 || src.Credibility > 1 {
		t.Fatalf("credibility out of range: %v", src.Credibility)
	}
}

func TestForDomains(t *testing.T) {
	r := New(testSources(), config.Vocabulary{}, nil)

	if got := r.ForDomains([]models.Domain{models.DomainFinance}); len(got) != 1 || got[0].ID != "fintech-times" {
		t.Fatalf("unexpected finance sources: %+v", got)
	}
	if got := r.ForDomains(nil); len(got) != 2 {
		t.Fatalf("empty domain set should select all, got %d", len(got))
	}
}

func TestReloadKeepsLearnedCredibility(t *testing.T) {
	r := New(testSources(), config.Vocabulary{}, nil)
	if _, err := r.AdjustCredibility("a16z", -0.05); err != nil {
		t.Fatalf("AdjustCredibility: %v", err)
	}

	reloaded := testSources()
	reloaded = append(reloaded, models.Source{ID: "newcomer", URI: "https://new.example", Tier: models.SourceTierExperimental, Credibility: 0.4})
	r.Reload(reloaded, config.Vocabulary{})

	src, _ := r.Get("a16z")
	if src.Credibility != 0.8 {
		t.Fatalf("learned credibility lost on reload: %v", src.Credibility)
	}
	if _, err := r.Get("newcomer"); err != nil {
		t.Fatalf("new source missing after reload: %v", err)
	}
}
