// Package feedback closes the learning loop: observed engagement for
// delivered drafts becomes learned patterns and small source-credibility
// nudges. This is the only writer of LearnedPattern state and the only
// path that mutates persisted source credibility.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/registry"
	"github.com/mohammad-safakhou/prosora/internal/store"
	"github.com/mohammad-safakhou/prosora/internal/telemetry"
	"github.com/mohammad-safakhou/prosora/models"
)

// correlationAlpha is the EWMA weight a new observation carries.
const correlationAlpha = 0.3

// Store is the persistence surface the engine needs.
type Store interface {
	InsertPerformance(ctx context.Context, rec models.PerformanceRecord) (bool, error)
	GetLineage(ctx context.Context, contentID string) (store.ContentLineage, error)
	UpsertPattern(ctx context.Context, p models.LearnedPattern) error
	SaveSourceCredibility(ctx context.Context, sourceID string, credibility float64) error
	LoadPatterns(ctx context.Context) ([]models.LearnedPattern, error)
}

// Engine processes performance records.
type Engine struct {
	cfg      config.FeedbackConfig
	registry *registry.Registry
	store    Store
	tele     *telemetry.Telemetry
	logger   *log.Logger

	mu       sync.RWMutex
	patterns map[string]models.LearnedPattern
	seen     map[string]bool
}

// NewEngine builds the engine. Thresholds default to 0.05/50 and 0.02/20
// with a 0.02 credibility step.
func NewEngine(cfg config.FeedbackConfig, reg *registry.Registry, st Store, tele *telemetry.Telemetry, logger *log.Logger) *Engine {
	if cfg.HighEngagementRate == 0 {
		cfg.HighEngagementRate = 0.05
	}
	if cfg.HighTotalEngagement == 0 {
		cfg.HighTotalEngagement = 50
	}
	if cfg.MediumEngagementRate == 0 {
		cfg.MediumEngagementRate = 0.02
	}
	if cfg.MediumTotalEngagement == 0 {
		cfg.MediumTotalEngagement = 20
	}
	if cfg.CredibilityStep == 0 {
		cfg.CredibilityStep = 0.02
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[LEARN] ", log.LstdFlags)
	}
	return &Engine{
		cfg:      cfg,
		registry: reg,
		store:    st,
		tele:     tele,
		logger:   logger,
		patterns: make(map[string]models.LearnedPattern),
		seen:     make(map[string]bool),
	}
}

// Restore loads persisted patterns into memory at startup.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	patterns, err := e.store.LoadPatterns(ctx)
	if err != nil {
		return fmt.Errorf("restore patterns: %w", err)
	}
	e.mu.Lock()
	for _, p := range patterns {
		e.patterns[p.Key()] = p
	}
	e.mu.Unlock()
	e.logger.Printf("restored %d learned patterns", len(patterns))
	return nil
}

// Pattern returns the learned pattern under (type, descriptor). Satisfies
// the reader interfaces of the synthesizer and draft generator.
func (e *Engine) Pattern(patternType, descriptor string) (models.LearnedPattern, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.patterns[patternType+":"+descriptor]
	return p, ok
}

// Patterns returns all learned patterns ordered by key.
func (e *Engine) Patterns() []models.LearnedPattern {
	e.mu.RLock()
	out := make([]models.LearnedPattern, 0, len(e.patterns))
	for _, p := range e.patterns {
		out = append(out, p)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Classify buckets a performance record into a tier.
func (e *Engine) Classify(rec models.PerformanceRecord) models.PerformanceTier {
	rate := rec.EngagementRate()
	total := rec.TotalEngagement()
	switch {
	case rate >= e.cfg.HighEngagementRate && total >= e.cfg.HighTotalEngagement:
		return models.PerformanceTierHigh
	case rate >= e.cfg.MediumEngagementRate && total >= e.cfg.MediumTotalEngagement:
		return models.PerformanceTierMedium
	default:
		return models.PerformanceTierLow
	}
}

// Process ingests one performance record: persist it, correlate it with
// the content's lineage and update patterns plus source credibility.
// Re-processing an identical (content_id, recorded_at) pair is a no-op.
func (e *Engine) Process(ctx context.Context, rec models.PerformanceRecord) error {
	if rec.ContentID == "" {
		return fmt.Errorf("performance record without content_id")
	}
	dupeKey := rec.ContentID + "@" + rec.RecordedAt.UTC().Format(time.RFC3339Nano)
	e.mu.Lock()
	if e.seen[dupeKey] {
		e.mu.Unlock()
		return nil
	}
	e.seen[dupeKey] = true
	e.mu.Unlock()

	if e.store != nil {
		inserted, err := e.store.InsertPerformance(ctx, rec)
		if err != nil && !errors.Is(err, models.ErrPersistenceUnavailable) {
			return err
		}
		if err == nil && !inserted {
			// already recorded by an earlier process lifetime
			return nil
		}
	}

	tier := e.Classify(rec)
	if e.tele != nil {
		e.tele.FeedbackEvents.WithLabelValues(string(tier)).Inc()
	}

	var lineage store.ContentLineage
	if e.store != nil {
		var err error
		lineage, err = e.store.GetLineage(ctx, rec.ContentID)
		if err != nil {
			e.logger.Printf("no lineage for content %s, skipping correlation: %v", rec.ContentID, err)
			return nil
		}
	}

	signal := tierSignal(tier)
	e.updatePattern(ctx, "insight_tier", string(lineage.InsightTier), signal)
	e.updatePattern(ctx, "opening_hook", string(lineage.Platform), signal)
	if lineage.Fallback {
		e.updatePattern(ctx, "structure", "template", signal)
	} else {
		e.updatePattern(ctx, "structure", "generated", signal)
	}

	e.nudgeSources(ctx, lineage.SourceIDs, tier)
	e.logger.Printf("processed performance for %s: tier=%s rate=%.4f total=%d",
		rec.ContentID, tier, rec.EngagementRate(), rec.TotalEngagement())
	return nil
}

// tierSignal maps a tier onto [-1,1] for the correlation EWMA.
func tierSignal(tier models.PerformanceTier) float64 {
	switch tier {
	case models.PerformanceTierHigh:
		return 1
	case models.PerformanceTierMedium:
		return 0.25
	default:
		return -1
	}
}

func (e *Engine) updatePattern(ctx context.Context, patternType, descriptor string, signal float64) {
	if descriptor == "" {
		return
	}
	e.mu.Lock()
	key := patternType + ":" + descriptor
	p, ok := e.patterns[key]
	if !ok {
		p = models.LearnedPattern{PatternType: patternType, Descriptor: descriptor}
	}
	p.Correlation = clamp11((1-correlationAlpha)*p.Correlation + correlationAlpha*signal)
	p.UsageCount++
	p.UpdatedAt = time.Now().UTC()
	e.patterns[key] = p
	e.mu.Unlock()

	if e.tele != nil {
		e.tele.PatternUpdates.Inc()
	}
	if e.store != nil {
		if err := e.store.UpsertPattern(ctx, p); err != nil {
			e.logger.Printf("pattern upsert deferred (%s): %v", key, err)
		}
	}
}

// nudgeSources moves contributing sources by one bounded step: up for
// high performers, down for low, untouched for medium.
func (e *Engine) nudgeSources(ctx context.Context, sourceIDs []string, tier models.PerformanceTier) {
	var delta float64
	switch tier {
	case models.PerformanceTierHigh:
		delta = e.cfg.CredibilityStep
	case models.PerformanceTierLow:
		delta = -e.cfg.CredibilityStep
	default:
		return
	}
	for _, id := range sourceIDs {
		updated, err := e.registry.AdjustCredibility(id, delta)
		if err != nil {
			e.logger.Printf("credibility nudge skipped for %s: %v", id, err)
			continue
		}
		if e.store != nil {
			if err := e.store.SaveSourceCredibility(ctx, id, updated); err != nil {
				e.logger.Printf("credibility persist deferred for %s: %v", id, err)
			}
		}
	}
}

func clamp11(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
