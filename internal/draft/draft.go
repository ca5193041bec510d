// Package draft renders validated insights into platform drafts. The
// external generation capability does the writing; when it fails or
// returns garbage the deterministic template takes over, so this stage
// never surfaces an error to the caller.
package draft

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/prosora/internal/helpers"
	"github.com/mohammad-safakhou/prosora/internal/telemetry"
	"github.com/mohammad-safakhou/prosora/models"
	"github.com/mohammad-safakhou/prosora/provider"
)

// profile describes the target shape of one platform's draft.
type profile struct {
	instruction string
	maxSnippets int
}

var platformProfiles = map[models.Platform]profile{
	models.PlatformLinkedIn: {
		instruction: "Write a professional LinkedIn post of roughly 1200 characters. Open with a hook, develop the argument, close with a question to the audience.",
		maxSnippets: 3,
	},
	models.PlatformTwitter: {
		instruction: "Write a Twitter thread of 5 to 8 numbered tweets (1/, 2/, ...). Each tweet under 280 characters. First tweet is the hook, last tweet the takeaway.",
		maxSnippets: 2,
	},
	models.PlatformBlog: {
		instruction: "Write a blog post outline: a working title, an intro paragraph, 3 to 5 section headings each with 2 bullet points, and a closing section.",
		maxSnippets: 5,
	},
}

// tier base engagement rates, nudged by evidence and learned patterns.
var tierBaseRate = map[models.InsightTier]float64{
	models.InsightTierPremium:     0.045,
	models.InsightTierCrossDomain: 0.040,
	models.InsightTierContrarian:  0.035,
}

// PatternReader exposes learned correlations for engagement prediction.
type PatternReader interface {
	Pattern(patternType, descriptor string) (models.LearnedPattern, bool)
}

// Generator produces per-platform drafts.
type Generator struct {
	llm      provider.Provider
	patterns PatternReader
	tele     *telemetry.Telemetry
	logger   *log.Logger
}

func New(llm provider.Provider, patterns PatternReader, tele *telemetry.Telemetry, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.New(log.Writer(), "[DRAFT] ", log.LstdFlags)
	}
	return &Generator{llm: llm, patterns: patterns, tele: tele, logger: logger}
}

// Generate renders one draft per requested platform. Defaults to
// LinkedIn when no platform is requested. Never returns an error:
// generation failures produce the template fallback instead.
func (g *Generator) Generate(ctx context.Context, insights []models.Insight, platforms []models.Platform) []models.GeneratedContent {
	if len(platforms) == 0 {
		platforms = []models.Platform{models.PlatformLinkedIn}
	}
	out := make([]models.GeneratedContent, 0, len(platforms))
	for _, platform := range platforms {
		out = append(out, g.generateOne(ctx, insights, platform))
	}
	return out
}

func (g *Generator) generateOne(ctx context.Context, insights []models.Insight, platform models.Platform) models.GeneratedContent {
	prof, ok := platformProfiles[platform]
	if !ok {
		prof = platformProfiles[models.PlatformLinkedIn]
	}

	content := models.GeneratedContent{
		ID:        uuid.NewString(),
		Platform:  platform,
		CreatedAt: time.Now(),
	}
	for _, in := range insights {
		content.InsightRefs = append(content.InsightRefs, in.ID)
		for _, rec := range in.Evidence {
			content.EvidenceRefs = append(content.EvidenceRefs, rec.ID)
		}
	}
	content.PredictedEngagement = g.predictEngagement(insights, platform)

	text, err := g.invoke(ctx, insights, prof)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			g.logger.Printf("generation failed for %s, using template fallback: %v", platform, err)
		}
		if g.tele != nil {
			g.tele.DraftFallbacks.Inc()
		}
		content.Text = fallbackText(insights)
		content.Fallback = true
		return content
	}
	content.Text = text
	return content
}

func (g *Generator) invoke(ctx context.Context, insights []models.Insight, prof profile) (string, error) {
	if g.llm == nil {
		return "", fmt.Errorf("%w: no generation provider configured", models.ErrGenerationFailed)
	}
	var b strings.Builder
	b.WriteString(prof.instruction)
	b.WriteString("\n\nInsights:\n")
	for i, in := range insights {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, in.Tier, in.Text)
		snippets := 0
		for _, rec := range in.Evidence {
			if snippets == prof.maxSnippets {
				break
			}
			fmt.Fprintf(&b, "   evidence: %s\n", helpers.FormatCitation(rec, 120))
			snippets++
		}
	}
	b.WriteString("\nCite evidence inline where it strengthens a claim.")

	text, err := g.llm.GenerateDraft(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}
	return text, nil
}

// fallbackText concatenates the raw insight texts with a citation list.
// Deterministic, and always contains every original insight verbatim.
func fallbackText(insights []models.Insight) string {
	if len(insights) == 0 {
		return "No insights available for this query yet. Broaden the topic or wait for the next fetch cycle."
	}
	var b strings.Builder
	for i, in := range insights {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(in.Text)
	}
	var citations []string
	for _, in := range insights {
		citations = append(citations, helpers.FormatCitations(in.Evidence)...)
	}
	if len(citations) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, c := range citations {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// predictEngagement is a bounded heuristic, not a promise: tier base
// rate, lifted by evidence credibility and the learned correlation for
// the platform's opening-hook pattern.
func (g *Generator) predictEngagement(insights []models.Insight, platform models.Platform) float64 {
	if len(insights) == 0 {
		return 0
	}
	best := 0.0
	credSum := 0.0
	for _, in := range insights {
		if base := tierBaseRate[in.Tier]; base > best {
			best = base
		}
		credSum += in.EvidenceCredibility
	}
	predicted := best + 0.03*(credSum/float64(len(insights)))
	if g.patterns != nil {
		if p, ok := g.patterns.Pattern("opening_hook", string(platform)); ok {
			predicted += 0.02 * p.Correlation
		}
	}
	if predicted < 0 {
		return 0
	}
	if predicted > 1 {
		return 1
	}
	return predicted
}
