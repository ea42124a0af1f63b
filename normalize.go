package quizsolver

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Leading decoration of a stem: "câu 3.", "12.", "12)", "a." and the like.
var normStemPrefixRe = regexp.MustCompile(`^(?:câu\s*\d+\s*[.:]|\d+\s*[.)]|[a-z]\s*[.)])\s*`)

// NormalizeStem reduces a stem to its comparable form: lowercase, leading
// numbering stripped, all whitespace and punctuation removed. The result is
// idempotent, so re-normalizing a normalized stem is a no-op.
func NormalizeStem(stem string) string {
	s := strings.ToLower(strings.TrimSpace(stem))
	s = normStemPrefixRe.ReplaceAllString(s, "")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeChoices reduces a choice list to its comparable form: choices
// sorted by key, each text lowercased with whitespace removed, joined with
// "|". Reordering the input by key yields the same output.
func NormalizeChoices(choices []Choice) string {
	sorted := make([]Choice, len(choices))
	copy(sorted, choices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	parts := make([]string, 0, len(sorted))
	for _, c := range sorted {
		parts = append(parts, stripAllWhitespace(strings.ToLower(c.Text)))
	}
	return strings.Join(parts, "|")
}

func stripAllWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// CacheKeys computes the (stemHash, choicesHash) cache key pair for a question.
func CacheKeys(stem string, choices []Choice) (string, string) {
	return HashString(NormalizeStem(stem)), HashString(NormalizeChoices(choices))
}
