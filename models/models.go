package models

import (
	"errors"
	"strings"
	"time"
)

// Sentinel errors for component boundaries. Every stage converts its internal
// failures into one of these before handing control back to the pipeline.
var (
	ErrInvalidQuery          = errors.New("invalid query")
	ErrSourceUnavailable     = errors.New("source unavailable")
	ErrEvidenceLookupFailed  = errors.New("evidence lookup failed")
	ErrGenerationFailed      = errors.New("generation failed")
	ErrMalformedItem         = errors.New("malformed content item")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrSourceNotFound        = errors.New("source not found")
)

// Domain is a coarse subject area a source or item belongs to.
type Domain string

const (
	DomainTech     Domain = "tech"
	DomainPolitics Domain = "politics"
	DomainProduct  Domain = "product"
	DomainFinance  Domain = "finance"
)

// SourceTier is the trust classification of a configured source.
type SourceTier string

const (
	SourceTierPremium      SourceTier = "premium"
	SourceTierStandard     SourceTier = "standard"
	SourceTierExperimental SourceTier = "experimental"
)

// Source is a configured external source. Credibility is the only field
// mutated after load, and only by the feedback loop.
type Source struct {
	ID              string        `json:"id"`
	URI             string        `json:"uri"`
	Tier            SourceTier    `json:"tier"`
	Credibility     float64       `json:"credibility"`
	DomainTags      []Domain      `json:"domain_tags"`
	RefreshInterval time.Duration `json:"refresh_interval"`
}

// HasDomain reports whether the source is tagged with any of the given domains.
func (s Source) HasDomain(domains []Domain) bool {
	if len(domains) == 0 {
		return true
	}
	for _, d := range domains {
		for _, tag := range s.DomainTags {
			if tag == d {
				return true
			}
		}
	}
	return false
}

// ContentKind discriminates the shape of a fetched payload. Shapes are
// resolved once at ingestion and never re-inferred downstream.
type ContentKind string

const (
	ContentKindText       ContentKind = "text"
	ContentKindStructured ContentKind = "structured"
)

// ContentBody is the tagged-variant payload of a content item.
type ContentBody struct {
	Kind  ContentKind `json:"kind"`
	Text  string      `json:"text"`
	Title string      `json:"title,omitempty"`
	URL   string      `json:"url,omitempty"`
}

// ContentItem is one normalized unit of fetched material. Immutable once
// created; rebuilt every fetch cycle.
type ContentItem struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Body        ContentBody `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	DomainTags  []Domain  `json:"domain_tags"`
	Credibility float64   `json:"credibility"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Validate reports ErrMalformedItem when required fields are missing.
func (c ContentItem) Validate() error {
	if c.SourceID == "" || strings.TrimSpace(c.Body.Text) == "" {
		return ErrMalformedItem
	}
	if c.Body.Kind != ContentKindText && c.Body.Kind != ContentKindStructured {
		return ErrMalformedItem
	}
	return nil
}

// Intent is the output format the user is asking for.
type Intent string

const (
	IntentLinkedInPost  Intent = "linkedin_post"
	IntentTwitterThread Intent = "twitter_thread"
	IntentBlogOutline   Intent = "blog_outline"
	IntentAnalysis      Intent = "analysis"
)

// Complexity classifies how much graph traversal a query needs.
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityCrossDomain Complexity = "cross_domain"
	ComplexityContrarian  Complexity = "contrarian"
)

// EvidenceLevel controls how aggressively the validator corroborates insights.
type EvidenceLevel string

const (
	EvidenceLevelBasic         EvidenceLevel = "basic"
	EvidenceLevelPremium       EvidenceLevel = "premium"
	EvidenceLevelComprehensive EvidenceLevel = "comprehensive"
)

// QueryProfile is the analyzer's classification of a free-text query.
type QueryProfile struct {
	Intent        Intent        `json:"intent"`
	Domains       []Domain      `json:"domains"`
	Complexity    Complexity    `json:"complexity"`
	EvidenceLevel EvidenceLevel `json:"evidence_level"`
}

// InsightTier ranks how an insight was derived.
type InsightTier string

const (
	InsightTierPremium     InsightTier = "premium"
	InsightTierCrossDomain InsightTier = "cross_domain"
	InsightTierContrarian  InsightTier = "contrarian"
)

// Insight is one synthesized finding, transient per query run.
type Insight struct {
	ID                  string           `json:"id"`
	Tier                InsightTier      `json:"tier"`
	Text                string           `json:"text"`
	SupportingNodes     []string         `json:"supporting_node_ids"`
	DomainTags          []Domain         `json:"domain_tags"`
	Confidence          float64          `json:"confidence"`
	Evidence            []EvidenceRecord `json:"evidence,omitempty"`
	EvidenceCredibility float64          `json:"evidence_credibility"`
}

// EvidenceKind is the class of corroborating reference.
type EvidenceKind string

const (
	EvidenceKindAcademic EvidenceKind = "academic"
	EvidenceKindNews     EvidenceKind = "news"
	EvidenceKindTrend    EvidenceKind = "trend"
)

// EvidenceRecord is one external corroborating reference for an insight.
type EvidenceRecord struct {
	ID          string       `json:"id"`
	InsightID   string       `json:"insight_id"`
	Kind        EvidenceKind `json:"source_kind"`
	Credibility float64      `json:"credibility"`
	Reference   string       `json:"reference"`
	Title       string       `json:"title,omitempty"`
	Snippet     string       `json:"snippet,omitempty"`
}

// Platform identifies a draft output target.
type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformTwitter  Platform = "twitter"
	PlatformBlog     Platform = "blog"
)

// GeneratedContent is one platform-specific draft produced for a query run.
type GeneratedContent struct {
	ID                  string    `json:"id"`
	Platform            Platform  `json:"platform"`
	Text                string    `json:"text"`
	InsightRefs         []string  `json:"insight_refs"`
	EvidenceRefs        []string  `json:"evidence_refs"`
	PredictedEngagement float64   `json:"predicted_engagement"`
	Fallback            bool      `json:"fallback"`
	CreatedAt           time.Time `json:"created_at"`
}

// PerformanceRecord is observed engagement for previously delivered content.
type PerformanceRecord struct {
	ContentID  string    `json:"content_id"`
	Views      int64     `json:"views"`
	Likes      int64     `json:"likes"`
	Comments   int64     `json:"comments"`
	Shares     int64     `json:"shares"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TotalEngagement is the sum of active interactions.
func (p PerformanceRecord) TotalEngagement() int64 {
	return p.Likes + p.Comments + p.Shares
}

// EngagementRate is interactions over views, guarded against zero views.
func (p PerformanceRecord) EngagementRate() float64 {
	views := p.Views
	if views < 1 {
		views = 1
	}
	return float64(p.TotalEngagement()) / float64(views)
}

// PerformanceTier buckets an observed performance record.
type PerformanceTier string

const (
	PerformanceTierHigh   PerformanceTier = "high"
	PerformanceTierMedium PerformanceTier = "medium"
	PerformanceTierLow    PerformanceTier = "low"
)

// LearnedPattern is a persisted correlation between a content feature and
// observed performance. Written only by the feedback loop.
type LearnedPattern struct {
	PatternType string    `json:"pattern_type"`
	Descriptor  string    `json:"descriptor"`
	Correlation float64   `json:"correlation_with_performance"`
	UsageCount  int64     `json:"usage_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key is the stable identity a pattern is upserted under.
func (p LearnedPattern) Key() string {
	return p.PatternType + ":" + p.Descriptor
}

// Stage tracks a query run through the pipeline state machine.
type Stage string

const (
	StageAnalyzed            Stage = "ANALYZED"
	StageAggregated          Stage = "AGGREGATED"
	StageSynthesized         Stage = "SYNTHESIZED"
	StageValidated           Stage = "VALIDATED"
	StageGenerated           Stage = "GENERATED"
	StageDelivered           Stage = "DELIVERED"
	StagePerformanceRecorded Stage = "PERFORMANCE_RECORDED"
	StageLearned             Stage = "LEARNED"
	StageFailed              Stage = "FAILED"
)

// QueryOptions are caller overrides for a single query run.
type QueryOptions struct {
	EvidenceLevel EvidenceLevel `json:"evidence_level,omitempty"`
	Platforms     []Platform    `json:"platforms,omitempty"`
}

// QueryRequest is the external query interface payload.
type QueryRequest struct {
	Text    string       `json:"text"`
	UserID  string       `json:"user_id"`
	Options QueryOptions `json:"options"`
}

// EvidenceReport summarizes corroboration across a run's insights.
type EvidenceReport struct {
	TotalInsights     int                  `json:"total_insights"`
	EvidenceBacked    int                  `json:"evidence_backed"`
	AverageCredibility float64             `json:"average_credibility"`
	ByKind            map[EvidenceKind]int `json:"by_kind,omitempty"`
}

// QueryResult is the pull-based result object returned to the caller.
type QueryResult struct {
	ID             string             `json:"id"`
	Profile        QueryProfile       `json:"profile"`
	Stage          Stage              `json:"stage"`
	Degraded       bool               `json:"degraded"`
	DegradedReasons []string          `json:"degraded_reasons,omitempty"`
	Insights       []Insight          `json:"insights"`
	Content        []GeneratedContent `json:"generated_content"`
	EvidenceReport EvidenceReport     `json:"evidence_report"`
	ProcessingTime time.Duration      `json:"processing_time"`
	CreatedAt      time.Time          `json:"created_at"`
}
