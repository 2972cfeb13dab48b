// Package utils provides shared helpers for text, vector math and logging.
package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate returns s cut to maxLen characters with "..." appended when cut.
// A maxLen of 0 or less returns s unchanged.
func Truncate(s string, maxLen int) string {
	cut := TruncateRunes(s, maxLen)
	if len(cut) == len(s) {
		return s
	}
	return cut + "..."
}

// TruncateRunes returns at most maxLen runes of s without splitting a
// multi-byte character.
func TruncateRunes(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}

// JoinNonEmpty joins the trimmed non-empty parts with sep.
func JoinNonEmpty(parts []string, sep string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
