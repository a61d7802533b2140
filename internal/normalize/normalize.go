// Package normalize holds the name folding shared by validation, entity
// resolution and persistence. Two names are the same catalog entity when
// their normalized forms are equal.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Name lowercases s, strips diacritics and collapses inner whitespace.
// "  Tip   Tóp " and "tip top" both become "tip top".
func Name(s string) string {
	folded := StripAccents(strings.ToLower(s))
	return strings.Join(strings.Fields(folded), " ")
}

// StripAccents removes combining marks after canonical decomposition.
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slug returns a URL-safe identifier for name.
func Slug(name string) string {
	slug := Name(name)
	slug = strings.ReplaceAll(slug, " ", "-")

	var result strings.Builder
	lastDash := false
	for _, r := range slug {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			result.WriteRune(r)
			lastDash = false
		case r == '-' || r == '_':
			if !lastDash && result.Len() > 0 {
				result.WriteRune('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(result.String(), "-")
}

// Header folds a spreadsheet header cell into a lookup key: trimmed,
// lowercased, accent-free, required markers dropped, separators as "_".
func Header(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimSuffix(h, "*")
	h = Name(h)
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return h
}
