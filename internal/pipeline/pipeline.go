// Package pipeline drives a query through the staged state machine:
// ANALYZED, AGGREGATED, SYNTHESIZED, VALIDATED, GENERATED, DELIVERED.
// Stage failures degrade the run instead of aborting it; only an invalid
// query or total source exhaustion with an empty cache reaches the caller
// as an error. Identical concurrent queries from the same user coalesce
// into one execution.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/analyzer"
	"github.com/mohammad-safakhou/prosora/internal/draft"
	"github.com/mohammad-safakhou/prosora/internal/evidence"
	"github.com/mohammad-safakhou/prosora/internal/fetcher"
	"github.com/mohammad-safakhou/prosora/internal/helpers"
	"github.com/mohammad-safakhou/prosora/internal/knowledge"
	"github.com/mohammad-safakhou/prosora/internal/store"
	"github.com/mohammad-safakhou/prosora/internal/synth"
	"github.com/mohammad-safakhou/prosora/internal/telemetry"
	"github.com/mohammad-safakhou/prosora/models"
)

// LineageStore records what a delivered draft was built from.
type LineageStore interface {
	SaveLineage(ctx context.Context, l store.ContentLineage) error
}

// Pipeline owns one end-to-end query execution path.
type Pipeline struct {
	cfg       config.PipelineConfig
	analyzer  *analyzer.Analyzer
	fetcher   *fetcher.Fetcher
	builder   *knowledge.Builder
	synth     *synth.Synthesizer
	validator *evidence.Validator
	generator *draft.Generator
	lineage   LineageStore
	tele      *telemetry.Telemetry
	tracer    trace.Tracer
	logger    *log.Logger

	flight singleflight.Group
	sem    *semaphore.Weighted
}

// New wires the pipeline. A nil lineage store disables delivery lineage
// (feedback correlation degrades gracefully).
func New(
	cfg config.PipelineConfig,
	an *analyzer.Analyzer,
	fe *fetcher.Fetcher,
	builder *knowledge.Builder,
	sy *synth.Synthesizer,
	va *evidence.Validator,
	ge *draft.Generator,
	lineage LineageStore,
	tele *telemetry.Telemetry,
	logger *log.Logger,
) *Pipeline {
	maxConcurrent := cfg.MaxConcurrentQueries
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	return &Pipeline{
		cfg:       cfg,
		analyzer:  an,
		fetcher:   fe,
		builder:   builder,
		synth:     sy,
		validator: va,
		generator: ge,
		lineage:   lineage,
		tele:      tele,
		tracer:    otel.Tracer("prosora/pipeline"),
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Execute runs one query. Concurrent identical requests from the same
// user share a single execution and receive the same result.
func (p *Pipeline) Execute(ctx context.Context, req models.QueryRequest) (*models.QueryResult, error) {
	profile, err := p.analyzer.Analyze(req.Text)
	if err != nil {
		p.tele.RecordQuery("invalid", 0)
		return nil, err
	}

	key := req.UserID + "|" + helpers.Fingerprint(req.Text)
	v, err, shared := p.flight.Do(key, func() (interface{}, error) {
		return p.run(ctx, req, profile)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Printf("coalesced duplicate query for user %s", req.UserID)
	}
	return v.(*models.QueryResult), nil
}

func (p *Pipeline) run(ctx context.Context, req models.QueryRequest, profile models.QueryProfile) (*models.QueryResult, error) {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	result := &models.QueryResult{
		ID:        uuid.NewString(),
		Profile:   profile,
		Stage:     models.StageAnalyzed,
		CreatedAt: start,
	}
	degrade := func(reason string) {
		result.Degraded = true
		result.DegradedReasons = append(result.DegradedReasons, reason)
	}

	// AGGREGATED
	items, err := p.stageFetch(ctx, profile.Domains)
	if err != nil {
		p.tele.RecordQuery("failed", time.Since(start))
		return nil, err
	}
	result.Stage = models.StageAggregated

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// SYNTHESIZED
	graph, insights := p.stageSynthesize(ctx, items, profile)
	result.Insights = insights
	result.Stage = models.StageSynthesized
	if len(insights) == 0 {
		degrade("no insights synthesized from current source snapshot")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// VALIDATED
	level := profile.EvidenceLevel
	if req.Options.EvidenceLevel != "" {
		level = req.Options.EvidenceLevel
	}
	result.Insights = p.stageValidate(ctx, result.Insights, level)
	result.EvidenceReport = evidence.Report(result.Insights)
	result.Stage = models.StageValidated
	if level != models.EvidenceLevelBasic && len(result.Insights) > 0 && result.EvidenceReport.EvidenceBacked == 0 {
		degrade("no evidence attached, lookups unavailable or empty")
	}

	// last cancellation point before generation
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// GENERATED
	platforms := req.Options.Platforms
	if len(platforms) == 0 {
		platforms = p.defaultPlatforms()
	}
	result.Content = p.stageGenerate(ctx, result.Insights, platforms)
	result.Stage = models.StageGenerated
	for _, c := range result.Content {
		if c.Fallback {
			degrade("draft for " + string(c.Platform) + " used template fallback")
			break
		}
	}

	// DELIVERED
	if err := p.deliver(ctx, result, graph); err != nil {
		degrade("delivery lineage deferred: " + err.Error())
	}
	result.Stage = models.StageDelivered
	result.ProcessingTime = time.Since(start)

	outcome := "ok"
	if result.Degraded {
		outcome = "degraded"
	}
	p.tele.RecordQuery(outcome, result.ProcessingTime)
	p.logger.Printf("query %s complete: stage=%s insights=%d drafts=%d degraded=%v in %s",
		result.ID, result.Stage, len(result.Insights), len(result.Content), result.Degraded, result.ProcessingTime)
	return result, nil
}

func (p *Pipeline) stageFetch(ctx context.Context, domains []models.Domain) ([]models.ContentItem, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.aggregate")
	defer span.End()
	defer p.observe("aggregate", time.Now())

	items, err := p.fetcher.FetchCycle(ctx, domains)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	return items, nil
}

func (p *Pipeline) stageSynthesize(ctx context.Context, items []models.ContentItem, profile models.QueryProfile) (*knowledge.Graph, []models.Insight) {
	_, span := p.tracer.Start(ctx, "pipeline.synthesize")
	defer span.End()
	defer p.observe("synthesize", time.Now())

	graph := p.builder.Build(items)
	return graph, p.synth.Synthesize(graph, profile)
}

func (p *Pipeline) stageValidate(ctx context.Context, insights []models.Insight, level models.EvidenceLevel) []models.Insight {
	ctx, span := p.tracer.Start(ctx, "pipeline.validate")
	defer span.End()
	defer p.observe("validate", time.Now())

	return p.validator.Validate(ctx, insights, level)
}

func (p *Pipeline) stageGenerate(ctx context.Context, insights []models.Insight, platforms []models.Platform) []models.GeneratedContent {
	ctx, span := p.tracer.Start(ctx, "pipeline.generate")
	defer span.End()
	defer p.observe("generate", time.Now())

	return p.generator.Generate(ctx, insights, platforms)
}

// deliver persists per-draft lineage so later performance records can be
// correlated back to insight tiers and contributing sources.
func (p *Pipeline) deliver(ctx context.Context, result *models.QueryResult, graph *knowledge.Graph) error {
	if p.lineage == nil {
		return nil
	}
	sourceIDs := contributingSources(result.Insights, graph)
	tier := topTier(result.Insights)
	for _, c := range result.Content {
		l := store.ContentLineage{
			ContentID:   c.ID,
			Platform:    c.Platform,
			InsightTier: tier,
			SourceIDs:   sourceIDs,
			Fallback:    c.Fallback,
			CreatedAt:   c.CreatedAt,
		}
		if err := p.lineage.SaveLineage(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) defaultPlatforms() []models.Platform {
	if len(p.cfg.DefaultPlatforms) == 0 {
		return []models.Platform{models.PlatformLinkedIn}
	}
	out := make([]models.Platform, 0, len(p.cfg.DefaultPlatforms))
	for _, s := range p.cfg.DefaultPlatforms {
		out = append(out, models.Platform(s))
	}
	return out
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.tele.ObserveStage(stage, time.Since(start))
}

func contributingSources(insights []models.Insight, graph *knowledge.Graph) []string {
	seen := make(map[string]bool)
	var out []string
	for _, in := range insights {
		for _, nodeID := range in.SupportingNodes {
			n, ok := graph.Node(nodeID)
			if !ok || seen[n.Item.SourceID] {
				continue
			}
			seen[n.Item.SourceID] = true
			out = append(out, n.Item.SourceID)
		}
	}
	return out
}

func topTier(insights []models.Insight) models.InsightTier {
	rank := map[models.InsightTier]int{
		models.InsightTierPremium:     3,
		models.InsightTierCrossDomain: 2,
		models.InsightTierContrarian:  1,
	}
	best := models.InsightTierContrarian
	bestRank := 0
	for _, in := range insights {
		if r := rank[in.Tier]; r > bestRank {
			best, bestRank = in.Tier, r
		}
	}
	return best
}
