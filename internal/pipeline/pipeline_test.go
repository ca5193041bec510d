package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/analyzer"
	"github.com/mohammad-safakhou/prosora/internal/draft"
	"github.com/mohammad-safakhou/prosora/internal/evidence"
	"github.com/mohammad-safakhou/prosora/internal/fetcher"
	"github.com/mohammad-safakhou/prosora/internal/knowledge"
	"github.com/mohammad-safakhou/prosora/internal/registry"
	"github.com/mohammad-safakhou/prosora/internal/store"
	"github.com/mohammad-safakhou/prosora/internal/synth"
	"github.com/mohammad-safakhou/prosora/models"
	"github.com/mohammad-safakhou/prosora/tools/web_search"
)

type stubClient struct {
	mu      sync.Mutex
	calls   int
	items   map[string][]models.ContentItem
	entered chan struct{}
	release chan struct{}
}

func (s *stubClient) Fetch(_ context.Context, src models.Source, _ int) ([]models.ContentItem, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first && s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		<-s.release
	}
	return s.items[src.ID], nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, _ string, kind models.EvidenceKind, _ int) ([]web_search.Result, error) {
	return []web_search.Result{{
		Title:       "Corroborating reference",
		URL:         "https://evidence.example/ref",
		Snippet:     "supporting detail",
		Credibility: web_search.KindCredibility(kind),
	}}, nil
}

type failingProvider struct{}

func (failingProvider) GenerateDraft(context.Context, string) (string, error) {
	return "", fmt.Errorf("llm unavailable")
}

type memLineage struct {
	mu    sync.Mutex
	saved []store.ContentLineage
}

func (m *memLineage) SaveLineage(_ context.Context, l store.ContentLineage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, l)
	return nil
}

func testLogger() *log.Logger { return log.New(os.Stderr, "[TEST] ", 0) }

func testVocabulary() config.Vocabulary {
	return config.Vocabulary{
		Domains: map[string][]string{
			"tech":     {"ai", "regulation"},
			"politics": {"regulation", "policy"},
			"finance":  {"fintech"},
		},
		Topics: map[string][]string{
			"ai_regulation": {"ai regulation"},
			"fintech":       {"fintech"},
		},
	}
}

func fintechFixture() ([]models.Source, map[string][]models.ContentItem) {
	published := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	sources := []models.Source{
		{ID: "techblog", URI: "https://tech.example", Tier: models.SourceTierPremium, Credibility: 0.9, DomainTags: []models.Domain{models.DomainTech}},
		{ID: "polwire", URI: "https://pol.example", Tier: models.SourceTierPremium, Credibility: 0.85, DomainTags: []models.Domain{models.DomainPolitics}},
		{ID: "finjournal", URI: "https://fin.example", Tier: models.SourceTierPremium, Credibility: 0.82, DomainTags: []models.Domain{models.DomainFinance}},
	}
	items := map[string][]models.ContentItem{
		"techblog": {{
			ID: "t1", SourceID: "techblog",
			Body:        models.ContentBody{Kind: models.ContentKindText, Text: "Model providers prepare for sweeping ai regulation"},
			PublishedAt: published, DomainTags: []models.Domain{models.DomainTech}, Credibility: 0.9,
		}},
		"polwire": {{
			ID: "p1", SourceID: "polwire",
			Body:        models.ContentBody{Kind: models.ContentKindText, Text: "Lawmakers finalize ai regulation enforcement policy"},
			PublishedAt: published.Add(time.Hour), DomainTags: []models.Domain{models.DomainPolitics}, Credibility: 0.85,
		}},
		"finjournal": {{
			ID: "f1", SourceID: "finjournal",
			Body:        models.ContentBody{Kind: models.ContentKindText, Text: "Fintech lenders budget for ai regulation compliance"},
			PublishedAt: published.Add(2 * time.Hour), DomainTags: []models.Domain{models.DomainFinance}, Credibility: 0.82,
		}},
	}
	return sources, items
}

func newTestPipeline(t *testing.T, client fetcher.ItemClient, sources []models.Source, lineage LineageStore) *Pipeline {
	t.Helper()
	vocab := testVocabulary()
	reg := registry.New(sources, vocab, testLogger())
	return New(
		config.PipelineConfig{},
		analyzer.New(vocab),
		fetcher.New(config.FetchConfig{DedupWindow: time.Hour}, reg, client, nil, nil, testLogger()),
		knowledge.NewBuilder(vocab),
		synth.New(config.PipelineConfig{}, nil, testLogger()),
		evidence.New(config.SearchConfig{RatePerSecond: 1000, Burst: 10}, stubSearcher{}, nil, testLogger()),
		draft.New(failingProvider{}, nil, nil, testLogger()),
		lineage,
		nil,
		testLogger(),
	)
}

func TestExecuteEndToEndFintechQuery(t *testing.T) {
	sources, items := fintechFixture()
	lineage := &memLineage{}
	p := newTestPipeline(t, &stubClient{items: items}, sources, lineage)

	got, err := p.Execute(context.Background(), models.QueryRequest{Text: "AI regulation in fintech", UserID: "u1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Stage != models.StageDelivered {
		t.Fatalf("expected DELIVERED, got %s", got.Stage)
	}

	byTier := map[models.InsightTier]int{}
	for _, in := range got.Insights {
		byTier[in.Tier]++
		if in.Confidence < 0 || in.Confidence > 1 {
			t.Fatalf("confidence out of range: %+v", in)
		}
	}
	if byTier[models.InsightTierPremium] < 1 {
		t.Fatalf("expected at least one premium insight: %+v", byTier)
	}
	if byTier[models.InsightTierCrossDomain] < 1 {
		t.Fatalf("expected at least one cross_domain insight: %+v", byTier)
	}

	if len(got.Content) == 0 || got.Content[0].Text == "" {
		t.Fatalf("expected non-empty generated content: %+v", got.Content)
	}
	if got.EvidenceReport.EvidenceBacked == 0 {
		t.Fatalf("expected evidence-backed insights: %+v", got.EvidenceReport)
	}

	lineage.mu.Lock()
	defer lineage.mu.Unlock()
	if len(lineage.saved) == 0 || len(lineage.saved[0].SourceIDs) == 0 {
		t.Fatalf("delivery lineage not recorded: %+v", lineage.saved)
	}
}

func TestExecuteCoalescesIdenticalConcurrentQueries(t *testing.T) {
	sources, items := fintechFixture()
	client := &stubClient{
		items:   items,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := newTestPipeline(t, client, sources[:1], nil)

	req := models.QueryRequest{Text: "AI Regulation  in fintech", UserID: "u1"}
	var wg sync.WaitGroup
	results := make([]*models.QueryResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := p.Execute(context.Background(), req)
			if err != nil {
				t.Errorf("Execute: %v", err)
				return
			}
			results[i] = r
		}(i)
	}

	<-client.entered
	time.Sleep(100 * time.Millisecond)
	close(client.release)
	wg.Wait()

	if n := client.callCount(); n != 1 {
		t.Fatalf("expected exactly one pipeline execution, fetch ran %d times", n)
	}
	if results[0] == nil || results[1] == nil || results[0].ID != results[1].ID {
		t.Fatalf("coalesced callers should share one result: %+v vs %+v", results[0], results[1])
	}
}

func TestExecuteInvalidQuery(t *testing.T) {
	sources, items := fintechFixture()
	p := newTestPipeline(t, &stubClient{items: items}, sources, nil)

	_, err := p.Execute(context.Background(), models.QueryRequest{Text: "   ", UserID: "u1"})
	if !errors.Is(err, models.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestExecuteCancelledBeforeGeneration(t *testing.T) {
	sources, items := fintechFixture()
	p := newTestPipeline(t, &stubClient{items: items}, sources, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Execute(ctx, models.QueryRequest{Text: "AI regulation in fintech", UserID: "u1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExecuteFailsWhenEverySourceDownWithNoCache(t *testing.T) {
	sources, _ := fintechFixture()
	p := newTestPipeline(t, failingClient{}, sources, nil)

	_, err := p.Execute(context.Background(), models.QueryRequest{Text: "AI regulation in fintech", UserID: "u1"})
	if !errors.Is(err, models.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

type failingClient struct{}

func (failingClient) Fetch(context.Context, models.Source, int) ([]models.ContentItem, error) {
	return nil, fmt.Errorf("connection refused")
}
