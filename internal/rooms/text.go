package rooms

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dotless and dotted Turkish i do not decompose to a plain i
var turkishLetters = strings.NewReplacer("ı", "i", "İ", "i")

// Fold lowercases, strips diacritics and collapses whitespace so that
// "Standart Oda", "STANDART  ODA" and "Standárt oda" compare equal.
func Fold(s string) string {
	s = turkishLetters.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)
	return strings.Join(strings.FieldsFunc(folded, isSeparator), " ")
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r) && r != '*'
}

// containsWord reports whether a word of haystack starts with needle.
// Both arguments must already be folded.
func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(" "+haystack, " "+needle)
}
