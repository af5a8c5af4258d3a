package engine

import "strings"

// NormalizeText canonicalizes text lifted from the page: control characters
// are stripped, whitespace runs collapse to single spaces, and characters the
// downstream pipeline cannot represent are dropped. Fingerprints are computed
// over normalized text, so this must stay deterministic.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 0 || r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		if r > 0x7e {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
