package fetcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/prosora/models"
	"github.com/mohammad-safakhou/prosora/tools/web_fetch"
)

// WebClient adapts the page fetcher into an ItemClient: one source URI
// yields one normalized text item. Feed-style multi-item clients satisfy
// the same interface.
type WebClient struct {
	Fetcher web_fetch.Fetcher
}

func (w WebClient) Fetch(ctx context.Context, src models.Source, _ int) ([]models.ContentItem, error) {
	res, err := w.Fetcher.Exec(ctx, src.URI)
	if err != nil {
		return nil, err
	}
	published := res.PublishedAt
	if published.IsZero() {
		published = time.Now()
	}
	item := models.ContentItem{
		ID:       uuid.NewString(),
		SourceID: src.ID,
		Body: models.ContentBody{
			Kind:  models.ContentKindText,
			Text:  res.Text,
			Title: res.Title,
			URL:   res.URL,
		},
		PublishedAt: published,
		DomainTags:  src.DomainTags,
		Credibility: src.Credibility,
		FetchedAt:   time.Now(),
	}
	return []models.ContentItem{item}, nil
}
