package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/queue/streams"
	"github.com/mohammad-safakhou/prosora/internal/registry"
	"github.com/mohammad-safakhou/prosora/models"
)

type stubExecutor struct {
	result *models.QueryResult
	err    error
	got    models.QueryRequest
}

func (s *stubExecutor) Execute(_ context.Context, req models.QueryRequest) (*models.QueryResult, error) {
	s.got = req
	return s.result, s.err
}

func newJSONContext(e *echo.Echo, method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestQueryHandlerSuccess(t *testing.T) {
	e := echo.New()
	exec := &stubExecutor{result: &models.QueryResult{
		ID:    "r1",
		Stage: models.StageDelivered,
		Content: []models.GeneratedContent{{
			Platform: models.PlatformLinkedIn,
			Text:     "a draft",
		}},
	}}
	h := &QueryHandler{Pipeline: exec}

	ctx, rec := newJSONContext(e, http.MethodPost, "/api/query",
		`{"text":"AI regulation in fintech","user_id":"u1","options":{"platforms":["twitter"]}}`)
	if err := h.query(ctx); err != nil {
		t.Fatalf("query: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if exec.got.UserID != "u1" || len(exec.got.Options.Platforms) != 1 {
		t.Fatalf("request not bound: %+v", exec.got)
	}
	var resp models.QueryResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "r1" || resp.Stage != models.StageDelivered {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestQueryHandlerInvalidQuery(t *testing.T) {
	e := echo.New()
	h := &QueryHandler{Pipeline: &stubExecutor{err: models.ErrInvalidQuery}}

	ctx, _ := newJSONContext(e, http.MethodPost, "/api/query", `{"text":"  ","user_id":"u1"}`)
	err := h.query(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestQueryHandlerTotalSourceOutage(t *testing.T) {
	e := echo.New()
	h := &QueryHandler{Pipeline: &stubExecutor{err: fmt.Errorf("aggregate: %w", models.ErrSourceUnavailable)}}

	ctx, _ := newJSONContext(e, http.MethodPost, "/api/query", `{"text":"anything","user_id":"u1"}`)
	err := h.query(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 HTTPError, got %v", err)
	}
}

type stubPublisher struct {
	err    error
	events int
}

func (s *stubPublisher) PublishRaw(_ context.Context, _, _ string, _ interface{}, _ ...streams.PublishOption) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.events++
	return "1-0", nil
}

type stubProcessor struct {
	processed int
}

func (s *stubProcessor) Process(context.Context, models.PerformanceRecord) error {
	s.processed++
	return nil
}

func TestPerformanceHandlerQueuesToStream(t *testing.T) {
	e := echo.New()
	pub := &stubPublisher{}
	proc := &stubProcessor{}
	h := &PerformanceHandler{Publisher: pub, Engine: proc, Stream: "prosora:performance"}

	ctx, rec := newJSONContext(e, http.MethodPost, "/api/performance",
		`{"content_id":"c1","views":1000,"likes":40,"comments":10,"shares":10}`)
	if err := h.ingest(ctx); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if pub.events != 1 || proc.processed != 0 {
		t.Fatalf("expected stream publish, got events=%d processed=%d", pub.events, proc.processed)
	}
}

func TestPerformanceHandlerInlineFallbackWhenStreamDown(t *testing.T) {
	e := echo.New()
	pub := &stubPublisher{err: fmt.Errorf("redis down")}
	proc := &stubProcessor{}
	h := &PerformanceHandler{Publisher: pub, Engine: proc, Stream: "prosora:performance"}

	ctx, rec := newJSONContext(e, http.MethodPost, "/api/performance",
		`{"content_id":"c1","views":100,"likes":4}`)
	if err := h.ingest(ctx); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if rec.Code != http.StatusAccepted || proc.processed != 1 {
		t.Fatalf("inline fallback not taken: code=%d processed=%d", rec.Code, proc.processed)
	}
}

func TestPerformanceHandlerRejectsMissingContentID(t *testing.T) {
	e := echo.New()
	h := &PerformanceHandler{Publisher: &stubPublisher{}, Engine: &stubProcessor{}}

	ctx, _ := newJSONContext(e, http.MethodPost, "/api/performance", `{"views":100}`)
	err := h.ingest(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestSourcesHandlerList(t *testing.T) {
	e := echo.New()
	reg := registry.New([]models.Source{
		{ID: "a", URI: "https://a.example", Tier: models.SourceTierPremium, Credibility: 0.9},
		{ID: "b", URI: "https://b.example", Tier: models.SourceTierStandard, Credibility: 0.6},
	}, config.Vocabulary{}, nil)
	h := &SourcesHandler{Registry: reg}

	req := httptest.NewRequest(http.MethodGet, "/api/sources", nil)
	rec := httptest.NewRecorder()
	if err := h.list(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []models.Source
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" {
		t.Fatalf("unexpected sources: %+v", got)
	}
}
