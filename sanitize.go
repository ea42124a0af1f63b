package quizsolver

import (
	"regexp"
	"strings"
)

var (
	// "CLCLO 2" and "CLO CLO 2" are common OCR/typing artifacts.
	cloStutterRe = regexp.MustCompile(`(?:CL)+CLO`)
	cloRepeatRe  = regexp.MustCompile(`CLO(?:\s+CLO)+`)

	// Letters up to the first integer form the "major" section name.
	sectionMajorRe = regexp.MustCompile(`^([^\d]+?)[\s.]*(\d+)`)
)

// SanitizeSection normalizes a raw section label to its major form:
// "CLO 1.2.3" -> "CLO 1", "clclo 2" -> "CLO 2", "CHƯƠNG2" -> "CHƯƠNG 2".
// Blank input maps to DefaultSection.
func SanitizeSection(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = cloStutterRe.ReplaceAllString(s, "CLO")
	s = cloRepeatRe.ReplaceAllString(s, "CLO")
	if s == "" {
		return DefaultSection
	}
	m := sectionMajorRe.FindStringSubmatch(s)
	if m == nil {
		// no number, e.g. a roman-numeral heading; keep as-is
		return s
	}
	name := strings.TrimSpace(strings.Trim(m[1], " .:-"))
	if name == "" {
		return DefaultSection
	}
	return name + " " + m[2]
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?(previous|above|prior)`),
	regexp.MustCompile(`(?i)forget (everything|all|instructions)`),
	regexp.MustCompile(`(?i)disregard (all|previous)`),
	regexp.MustCompile(`(?i)new instructions:`),
	regexp.MustCompile(`(?i)system:`),
}

// FilterPromptText replaces prompt-injection phrases in document text before
// it is forwarded to a language-model provider.
func FilterPromptText(s string) string {
	for _, re := range injectionPatterns {
		s = re.ReplaceAllString(s, "[FILTERED]")
	}
	return s
}
