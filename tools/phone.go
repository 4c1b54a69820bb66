package tools

import (
	"strings"
	"unicode"
)

// NormalizeWhatsAppTo keeps only the ASCII digits of raw, the form the Cloud
// API expects in "to" (international, no '+'). No length or country code
// check is made; the provider rejects what it cannot route.
func NormalizeWhatsAppTo(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
