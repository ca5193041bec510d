package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeText lowercases and collapses all whitespace runs to single
// spaces. Two items that differ only in casing or whitespace normalize to
// the same string.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Fingerprint returns a stable hex digest of the normalized text, used as
// the dedup key within a fetch cycle.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(NormalizeText(s)))
	return hex.EncodeToString(sum[:])
}

// Tokenize splits text into lowercase word tokens, stripping punctuation.
// The graph builder and analyzer match vocabulary entries against these.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// KeyTerms returns up to max distinct tokens of the text longer than three
// runes, preserving first-seen order. Used to derive evidence lookups.
func KeyTerms(s string, max int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(s) {
		if len([]rune(tok)) <= 3 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}
