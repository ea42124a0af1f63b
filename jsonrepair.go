package quizsolver

import "strings"

// RepairJSON attempts a deterministic best-effort completion of a truncated
// or malformed JSON object produced by a language model: close an unclosed
// string, drop a trailing comma, append missing closing braces. Returns the
// repaired string and whether repair was applicable.
func RepairJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return "", false
	}

	inQuotes := false
	escaped := false
	open := 0
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inQuotes {
				escaped = true
			}
		case '"':
			inQuotes = !inQuotes
		case '{':
			if !inQuotes {
				open++
			}
		case '}':
			if !inQuotes {
				open--
			}
		}
	}

	if inQuotes {
		s += `"`
	}
	s = strings.TrimRight(s, " \t\r\n")
	s = strings.TrimSuffix(s, ",")
	if open > 0 {
		s += strings.Repeat("}", open)
	}
	return s, true
}

// StripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, from model output.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		// drop a language tag like "json"
		if len(first) <= 10 && !strings.ContainsAny(first, "{}") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
