package planner

import "strings"

// ExtractObjects scans free-form text for balanced {...} candidates, in
// order of appearance. The scan is string-aware: braces inside single- or
// double-quoted strings do not count, and backslash escapes are honored.
// Nested objects are folded into their outermost candidate.
func ExtractObjects(text string) []string {
	var candidates []string
	depth := 0
	start := -1
	var quote byte // 0 when outside a string

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if quote != 0 {
			switch ch {
			case '\\':
				i++ // skip the escaped character
			case quote:
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'':
			// Strings only matter inside a candidate; quotes in prose
			// outside any brace would otherwise swallow the plan.
			if depth > 0 {
				quote = ch
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue // stray closer in prose
			}
			depth--
			if depth == 0 && start >= 0 {
				candidates = append(candidates, text[start:i+1])
				start = -1
			}
		}
	}
	return candidates
}

// StripTrailingCommas removes commas that directly precede a closing brace
// or bracket, outside of string literals.
func StripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if quote != 0 {
			b.WriteByte(ch)
			if ch == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if ch == quote {
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'':
			quote = ch
			b.WriteByte(ch)
		case ',':
			// Look ahead past whitespace; drop the comma when a closer
			// follows.
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
