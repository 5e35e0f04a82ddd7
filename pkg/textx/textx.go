// Package textx provides small rune-aware text utilities.
package textx

import (
	"strings"
)

// SanitizeText drops control characters other than tab and newline, turns
// CRLF into LF and trims surrounding space.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Truncate cuts s to limit runes and appends suffix when it did.
func Truncate(s string, limit int, suffix string) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + suffix
}

// Chunk splits s into pieces of at most size runes.
func Chunk(s string, size int) []string {
	if s == "" {
		return nil
	}
	r := []rune(s)
	out := make([]string, 0, len(r)/size+1)
	for len(r) > size {
		out = append(out, string(r[:size]))
		r = r[size:]
	}
	return append(out, string(r))
}
