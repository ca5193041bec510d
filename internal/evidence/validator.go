// Package evidence corroborates insights against the external search
// capability. Lookups are best effort: a failed or empty lookup never
// drops an insight, it just proceeds without evidence.
package evidence

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/helpers"
	"github.com/mohammad-safakhou/prosora/internal/telemetry"
	"github.com/mohammad-safakhou/prosora/models"
	"github.com/mohammad-safakhou/prosora/tools/web_search"
)

// kindsFor maps the requested evidence level to the lookup kinds issued
// per insight, between one and three.
func kindsFor(level models.EvidenceLevel) []models.EvidenceKind {
	switch level {
	case models.EvidenceLevelComprehensive:
		return []models.EvidenceKind{models.EvidenceKindAcademic, models.EvidenceKindNews, models.EvidenceKindTrend}
	case models.EvidenceLevelPremium:
		return []models.EvidenceKind{models.EvidenceKindAcademic, models.EvidenceKindNews}
	default:
		return nil
	}
}

// Validator attaches evidence records to insights.
type Validator struct {
	searcher   web_search.Searcher
	limiter    *rate.Limiter
	maxResults int
	timeout    time.Duration
	tele       *telemetry.Telemetry
	logger     *log.Logger
}

// New builds a validator. The rate limiter is shared across all lookups
// of all concurrent queries to respect the search quota.
func New(cfg config.SearchConfig, searcher web_search.Searcher, tele *telemetry.Telemetry, logger *log.Logger) *Validator {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[EVIDENCE] ", log.LstdFlags)
	}
	return &Validator{
		searcher:   searcher,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		maxResults: 1,
		timeout:    timeout,
		tele:       tele,
		logger:     logger,
	}
}

// Validate enriches each insight with corroborating records. Basic level
// skips lookups entirely. The returned slice preserves order; every
// insight comes back with an evidence credibility, defaulting to its own
// confidence when nothing could be attached.
func (v *Validator) Validate(ctx context.Context, insights []models.Insight, level models.EvidenceLevel) []models.Insight {
	out := make([]models.Insight, len(insights))
	copy(out, insights)

	kinds := kindsFor(level)
	if len(kinds) == 0 || v.searcher == nil {
		for i := range out {
			out[i].EvidenceCredibility = out[i].Confidence
		}
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range out {
		i := i
		g.Go(func() error {
			out[i] = v.validateOne(gctx, out[i], kinds)
			return nil
		})
	}
	// workers never return errors; failures degrade per insight
	_ = g.Wait()
	return out
}

func (v *Validator) validateOne(ctx context.Context, insight models.Insight, kinds []models.EvidenceKind) models.Insight {
	query := strings.Join(helpers.KeyTerms(insight.Text, 6), " ")
	if query == "" {
		insight.EvidenceCredibility = insight.Confidence
		return insight
	}

	for _, kind := range kinds {
		if err := v.limiter.Wait(ctx); err != nil {
			break
		}
		records, err := v.lookup(ctx, insight.ID, query, kind)
		if err != nil {
			v.logger.Printf("lookup failed (insight=%s kind=%s): %v", insight.ID, kind, err)
			v.countLookup(kind, "error")
			continue
		}
		if len(records) == 0 {
			v.countLookup(kind, "empty")
			continue
		}
		v.countLookup(kind, "ok")
		insight.Evidence = append(insight.Evidence, records...)
	}

	if len(insight.Evidence) == 0 {
		insight.EvidenceCredibility = insight.Confidence
		return insight
	}
	sum := 0.0
	for _, rec := range insight.Evidence {
		sum += rec.Credibility
	}
	insight.EvidenceCredibility = sum / float64(len(insight.Evidence))
	return insight
}

func (v *Validator) lookup(ctx context.Context, insightID, query string, kind models.EvidenceKind) ([]models.EvidenceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	hits, err := v.searcher.Search(ctx, query, kind, v.maxResults)
	if err != nil {
		return nil, err
	}
	records := make([]models.EvidenceRecord, 0, len(hits))
	for _, h := range hits {
		if len(records) == v.maxResults {
			break
		}
		records = append(records, models.EvidenceRecord{
			ID:          uuid.NewString(),
			InsightID:   insightID,
			Kind:        kind,
			Credibility: h.Credibility,
			Reference:   h.URL,
			Title:       h.Title,
			Snippet:     h.Snippet,
		})
	}
	return records, nil
}

func (v *Validator) countLookup(kind models.EvidenceKind, outcome string) {
	if v.tele == nil {
		return
	}
	v.tele.EvidenceLookups.WithLabelValues(string(kind), outcome).Inc()
}

// Report summarizes corroboration across a run's insights.
func Report(insights []models.Insight) models.EvidenceReport {
	report := models.EvidenceReport{TotalInsights: len(insights)}
	sum := 0.0
	for _, in := range insights {
		if len(in.Evidence) > 0 {
			report.EvidenceBacked++
		}
		sum += in.EvidenceCredibility
		for _, rec := range in.Evidence {
			if report.ByKind == nil {
				report.ByKind = make(map[models.EvidenceKind]int)
			}
			report.ByKind[rec.Kind]++
		}
	}
	if len(insights) > 0 {
		report.AverageCredibility = sum / float64(len(insights))
	}
	return report
}
