package helpers

import "unicode/utf8"

// TruncateBytes cuts s to at most limit bytes, backing up to the nearest
// rune boundary so a multi-byte character is never split.
func TruncateBytes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
