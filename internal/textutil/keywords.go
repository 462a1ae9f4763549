package textutil

import "strings"

// ContainsKeyword reports whether keyword appears in text as a whole token
// sequence, ignoring case and punctuation. Multi-word keywords must appear
// as consecutive tokens.
func ContainsKeyword(text, keyword string) bool {
	needle := splitAll(keyword)
	if len(needle) == 0 {
		return false
	}
	haystack := splitAll(text)
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, token := range needle {
			if haystack[i+j] != token {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// SplitKeywords parses a comma separated keyword list, dropping blanks.
func SplitKeywords(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func splitAll(text string) []string {
	raw := tokenSplitPattern.Split(strings.ToLower(text), -1)
	out := raw[:0]
	for _, token := range raw {
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}
