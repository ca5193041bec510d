// Package telemetry centralizes the engine's prometheus instrumentation.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry holds the engine's metric families. One instance is shared by
// the pipeline, fetcher, evidence validator and feedback worker.
type Telemetry struct {
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   prometheus.Histogram
	StageDuration   *prometheus.HistogramVec
	SourceFetches   *prometheus.CounterVec
	ItemsDeduped    prometheus.Counter
	EvidenceLookups *prometheus.CounterVec
	DraftFallbacks  prometheus.Counter
	FeedbackEvents  *prometheus.CounterVec
	PatternUpdates  prometheus.Counter
}

// NewTelemetry registers the metric families on the given registerer.
// Passing nil uses the default registry.
func NewTelemetry(reg prometheus.Registerer) *Telemetry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Telemetry{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prosora_queries_total",
			Help: "Query pipeline executions by outcome.",
		}, []string{"outcome"}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prosora_query_duration_seconds",
			Help:    "End-to-end query pipeline latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prosora_stage_duration_seconds",
			Help:    "Per-stage pipeline latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		SourceFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prosora_source_fetches_total",
			Help: "Source fetch attempts by outcome.",
		}, []string{"outcome"}),
		ItemsDeduped: factory.NewCounter(prometheus.CounterOpts{
			Name: "prosora_items_deduped_total",
			Help: "Content items collapsed by the dedup pass.",
		}),
		EvidenceLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prosora_evidence_lookups_total",
			Help: "Evidence lookups by kind and outcome.",
		}, []string{"kind", "outcome"}),
		DraftFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "prosora_draft_fallbacks_total",
			Help: "Drafts produced via the deterministic template fallback.",
		}),
		FeedbackEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prosora_feedback_events_total",
			Help: "Performance records processed by classified tier.",
		}, []string{"tier"}),
		PatternUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "prosora_pattern_updates_total",
			Help: "Learned pattern upserts.",
		}),
	}
}

// ObserveStage records one stage duration.
func (t *Telemetry) ObserveStage(stage string, d time.Duration) {
	if t == nil {
		return
	}
	t.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordQuery records one pipeline completion.
func (t *Telemetry) RecordQuery(outcome string, d time.Duration) {
	if t == nil {
		return
	}
	t.QueriesTotal.WithLabelValues(outcome).Inc()
	t.QueryDuration.Observe(d.Seconds())
}
