// Package textnorm normalizes Spanish medical text for matching and routing.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold upper-cases the input and strips diacritics, so that
// "Acetaminofén" and "ACETAMINOFEN" compare equal.
func Fold(s string) string {
	folded, _, err := transform.String(foldChain, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(folded)
}

// CollapseSpaces trims the input and squeezes runs of whitespace into single spaces.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Tokens folds the input and splits it into non-empty uppercase tokens.
func Tokens(s string) []string {
	return strings.Fields(Fold(s))
}
