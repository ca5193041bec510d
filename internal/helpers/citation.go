package helpers

import (
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/prosora/models"
)

// FormatCitation renders one evidence record in a consistent layout:
// [kind] Title — "Snippet" (domain) <reference>
func FormatCitation(ev models.EvidenceRecord, maxSnippet int) string {
	if maxSnippet <= 0 {
		maxSnippet = 180
	}

	var parts []string
	kind := string(ev.Kind)
	if kind == "" {
		kind = "source"
	}
	parts = append(parts, "["+kind+"]")

	if title := strings.TrimSpace(ev.Title); title != "" {
		parts = append(parts, title)
	}
	if snippet := quoteSnippet(ev.Snippet, maxSnippet); snippet != "" {
		parts = append(parts, "— "+snippet)
	}
	if domain := extractDomain(ev.Reference); domain != "" {
		parts = append(parts, "("+domain+")")
	}
	if ref := strings.TrimSpace(ev.Reference); ref != "" {
		parts = append(parts, "<"+ref+">")
	}
	return strings.Join(parts, " ")
}

// FormatCitations renders a citation line per evidence record.
func FormatCitations(evs []models.EvidenceRecord) []string {
	if len(evs) == 0 {
		return nil
	}
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, FormatCitation(ev, 0))
	}
	return out
}

func quoteSnippet(snippet string, limit int) string {
	snippet = strings.Join(strings.Fields(snippet), " ")
	if snippet == "" {
		return ""
	}
	if len(snippet) > limit {
		snippet = snippet[:limit] + "…"
	}
	if !strings.HasPrefix(snippet, `"`) {
		snippet = `"` + snippet
	}
	if !strings.HasSuffix(snippet, `"`) {
		snippet += `"`
	}
	return snippet
}

func extractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return host
}
