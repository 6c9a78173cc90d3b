package helpers

import (
	"errors"
	"strings"
)

// ExtractJSONObject returns the first balanced {...} span found in free-form
// model output. Code fences are unwrapped first, then the text is scanned
// with string/escape awareness so braces inside quoted values are ignored.
func ExtractJSONObject(s string) (string, error) {
	s = strings.TrimSpace(s)
	if inner, ok := unwrapCodeFence(s); ok {
		s = strings.TrimSpace(inner)
	}

	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		if out, ok := balancedObjectFrom(s, i); ok {
			return out, nil
		}
	}
	return "", errors.New("no balanced JSON object found")
}

// unwrapCodeFence removes a leading ``` or ~~~ fence (with optional language
// tag) and its closing fence. Returns ok=false when s is not fenced.
func unwrapCodeFence(s string) (string, bool) {
	fence := ""
	switch {
	case strings.HasPrefix(s, "```"):
		fence = "```"
	case strings.HasPrefix(s, "~~~"):
		fence = "~~~"
	default:
		return "", false
	}
	rest := s[len(fence):]
	nl := strings.IndexByte(rest, '\n')
	if nl == -1 {
		return "", false
	}
	rest = rest[nl+1:]
	if end := strings.Index(rest, fence); end != -1 {
		return rest[:end], true
	}
	return "", false
}

// balancedObjectFrom walks forward from an opening brace tracking depth and
// quoted-string/escape state, returning the span through the matching close.
func balancedObjectFrom(s string, start int) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
			if depth < 0 {
				return "", false
			}
		}
	}
	return "", false
}
