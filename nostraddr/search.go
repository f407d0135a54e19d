package nostraddr

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeExact case-folds a query and collapses punctuation/dashes to
// single spaces, without touching Unicode decomposition.
func NormalizeExact(query string) string {
	return collapsePunctAndDashes(strings.ToLower(query))
}

// fuzzyTransformer strips Unicode combining marks (category Mn) after NFD
// decomposition, so e.g. "café" and "cafe" normalize identically.
var fuzzyTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeFuzzy applies the same case-fold and punctuation collapse as
// NormalizeExact, plus Unicode NFD decomposition with combining marks
// stripped.
func NormalizeFuzzy(query string) string {
	decomposed, _, err := transform.String(fuzzyTransformer, strings.ToLower(query))
	if err != nil {
		decomposed = strings.ToLower(query)
	}
	return collapsePunctAndDashes(decomposed)
}

// collapsePunctAndDashes replaces every run of punctuation, symbols, or
// dash-family characters with a single space, then trims and collapses
// whitespace.
func collapsePunctAndDashes(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || r == '-' {
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastWasSpace = true
			}
			continue
		}
		if unicode.IsSpace(r) {
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastWasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastWasSpace = false
	}
	return strings.TrimSpace(b.String())
}
