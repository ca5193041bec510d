// Package fetcher runs the content fetch cycle: concurrent per-source
// retrieval with isolated failures, normalization into ContentItems, and
// near-duplicate collapsing.
package fetcher

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/helpers"
	"github.com/mohammad-safakhou/prosora/internal/registry"
	"github.com/mohammad-safakhou/prosora/internal/telemetry"
	"github.com/mohammad-safakhou/prosora/models"
)

// ItemClient retrieves raw items for one source.
type ItemClient interface {
	Fetch(ctx context.Context, src models.Source, limit int) ([]models.ContentItem, error)
}

// Fetcher coordinates one fetch cycle across the registry.
type Fetcher struct {
	registry *registry.Registry
	client   ItemClient
	cache    *Cache
	tele     *telemetry.Telemetry
	logger   *log.Logger

	sem         *semaphore.Weighted
	timeout     time.Duration
	maxItems    int
	dedupWindow time.Duration
}

// New builds a fetcher. cache may be nil (no snapshot fallback).
func New(cfg config.FetchConfig, reg *registry.Registry, client ItemClient, cache *Cache, tele *telemetry.Telemetry, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[FETCH] ", log.LstdFlags)
	}
	concurrent := cfg.MaxConcurrent
	if concurrent <= 0 {
		concurrent = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxItems := cfg.MaxItemsPerSource
	if maxItems <= 0 {
		maxItems = 10
	}
	window := cfg.DedupWindow
	if window <= 0 {
		window = 48 * time.Hour
	}
	return &Fetcher{
		registry:    reg,
		client:      client,
		cache:       cache,
		tele:        tele,
		logger:      logger,
		sem:         semaphore.NewWeighted(int64(concurrent)),
		timeout:     timeout,
		maxItems:    maxItems,
		dedupWindow: window,
	}
}

// FetchCycle retrieves items from every source matching the query domains.
// Per-source failures are skipped; the cycle fails only when no source
// produced anything and no cached snapshot exists.
func (f *Fetcher) FetchCycle(ctx context.Context, domains []models.Domain) ([]models.ContentItem, error) {
	sources := f.registry.ForDomains(domains)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources configured for domains %v: %w", domains, models.ErrSourceUnavailable)
	}

	var (
		mu    sync.Mutex
		items []models.ContentItem
		wg    sync.WaitGroup
	)
	for _, src := range sources {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(src models.Source) {
			defer wg.Done()
			defer f.sem.Release(1)
			got, err := f.fetchSource(ctx, src)
			if err != nil {
				f.logger.Printf("source %s skipped: %v", src.ID, err)
				if f.tele != nil {
					f.tele.SourceFetches.WithLabelValues("failed").Inc()
				}
				return
			}
			if f.tele != nil {
				f.tele.SourceFetches.WithLabelValues("ok").Inc()
			}
			mu.Lock()
			items = append(items, got...)
			mu.Unlock()
		}(src)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items = f.dropMalformed(items)
	if len(items) == 0 {
		return nil, fmt.Errorf("all sources failed and no cached snapshot: %w", models.ErrSourceUnavailable)
	}
	return f.Dedupe(items), nil
}

// fetchSource serves from a fresh cache snapshot when possible, otherwise
// fetches live (refreshing the snapshot) and falls back to any stale
// snapshot when the source is down.
func (f *Fetcher) fetchSource(ctx context.Context, src models.Source) ([]models.ContentItem, error) {
	if f.cache != nil {
		if cached, fresh, ok := f.cache.Get(ctx, src.ID); ok && fresh {
			return cached, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	items, err := f.client.Fetch(fetchCtx, src, f.maxItems)
	if err != nil {
		if f.cache != nil {
			if cached, _, ok := f.cache.Get(ctx, src.ID); ok {
				f.logger.Printf("source %s unreachable, serving stale snapshot (%d items)", src.ID, len(cached))
				return cached, nil
			}
		}
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSourceUnavailable, src.ID, err)
	}

	now := time.Now()
	for i := range items {
		items[i].SourceID = src.ID
		items[i].Credibility = src.Credibility
		if len(items[i].DomainTags) == 0 {
			items[i].DomainTags = src.DomainTags
		}
		if items[i].FetchedAt.IsZero() {
			items[i].FetchedAt = now
		}
	}
	if f.cache != nil {
		f.cache.Put(ctx, src.ID, items, src.RefreshInterval)
	}
	return items, nil
}

func (f *Fetcher) dropMalformed(items []models.ContentItem) []models.ContentItem {
	out := items[:0]
	for _, item := range items {
		if err := item.Validate(); err != nil {
			f.logger.Printf("dropping malformed item %s from %s: %v", item.ID, item.SourceID, err)
			continue
		}
		out = append(out, item)
	}
	return out
}

// Dedupe collapses items whose normalized text matches within the dedup
// window, keeping the higher-credibility copy. Output order is
/// deterministic: credibility descending, then publish time ascending.
func (f *Fetcher) Dedupe(items []models.ContentItem) []models.ContentItem {
	groups := make(map[string][]models.ContentItem)
	var order []string
	for _, item := range items {
		fp := helpers.Fingerprint(item.Body.Text)
		if _, ok := groups[fp]; !ok {
			order = append(order, fp)
		}
		groups[fp] = append(groups[fp], item)
	}

	var out []models.ContentItem
	for _, fp := range order {
		group := groups[fp]
		sort.Slice(group, func(i, j int) bool { return group[i].PublishedAt.Before(group[j].PublishedAt) })
		for start := 0; start < len(group); {
			end := start + 1
			for end < len(group) && group[end].PublishedAt.Sub(group[start].PublishedAt) <= f.dedupWindow {
				end++
			}
			best := group[start]
			for _, cand := range group[start+1 : end] {
				if cand.Credibility > best.Credibility {
					best = cand
				}
			}
			if f.tele != nil && end-start > 1 {
				f.tele.ItemsDeduped.Add(float64(end - start - 1))
			}
			out = append(out, best)
			start = end
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Credibility != out[j].Credibility {
			return out[i].Credibility > out[j].Credibility
		}
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.Before(out[j].PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
