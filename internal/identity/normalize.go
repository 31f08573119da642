// Package identity derives content-addressed ids for threads and messages.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize collapses every run of whitespace to a single space, trims the
// ends, and lowercases with full Unicode case mapping (final sigma, dotted
// capital I). The result is only ever hashed, never stored.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if isSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return cases.Lower(language.Und).String(b.String())
}

// Snippet returns the first n code points of s.
func Snippet(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// isSpace counts the ASCII information separators (0x1c-0x1f) as whitespace
// in addition to the Unicode space class.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
