package helpers

import (
	"strings"
	"testing"

	"github.com/mohammad-safakhou/prosora/models"
)

func TestFormatCitationLayout(t *testing.T) {
	got := FormatCitation(models.EvidenceRecord{
		Kind:      models.EvidenceKindAcademic,
		Title:     "Regulating Algorithms",
		Snippet:   "  a   study of  oversight ",
		Reference: "https://arxiv.org/abs/1234.5678",
	}, 0)

	for _, want := range []string{"[academic]", "Regulating Algorithms", `"a study of oversight"`, "(arxiv.org)", "<https://arxiv.org/abs/1234.5678>"} {
		if !strings.Contains(got, want) {
			t.Fatalf("citation %q missing %q", got, want)
		}
	}
}

func TestFormatCitationTruncatesSnippet(t *testing.T) {
	got := FormatCitation(models.EvidenceRecord{Kind: models.EvidenceKindNews, Snippet: strings.Repeat("x", 400)}, 50)
	if !strings.Contains(got, "…") {
		t.Fatalf("expected truncated snippet marker in %q", got)
	}
}

func TestFormatCitationsEmpty(t *testing.T) {
	if out := FormatCitations(nil); out != nil {
		t.Fatalf("expected nil for empty input, got %v", out)
	}
}
