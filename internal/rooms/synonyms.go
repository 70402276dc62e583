package rooms

import (
	"slices"
	"sort"
)

// Canonical room categories
const (
	CategoryStandard = "standard"
	CategorySuperior = "superior"
	CategoryDeluxe   = "deluxe"
	CategorySuite    = "suite"
	CategoryFamily   = "family"
	CategoryStudio   = "studio"
	CategorySingle   = "single"
	CategoryDouble   = "double"
	CategoryTwin     = "twin"
)

// Synonyms maps a canonical category to the folded spellings providers use for it.
type Synonyms map[string][]string

// DefaultSynonyms covers the English and Turkish labels seen on booking pages.
var DefaultSynonyms = Synonyms{
	CategoryStandard: {"standard", "standart", "classic", "klasik", "economy", "ekonomi", "promo", "basic", "budget", "estandar"},
	CategorySuperior: {"superior", "comfort", "konfor"},
	CategoryDeluxe:   {"deluxe", "delux", "deluks", "lux", "premium"},
	CategorySuite:    {"suite", "suit", "junior suite"},
	CategoryFamily:   {"family", "aile", "familiar", "connecting"},
	CategoryStudio:   {"studio", "stüdyo"},
	CategorySingle:   {"single", "tek kisilik"},
	CategoryDouble:   {"double", "dbl", "cift kisilik", "queen", "king"},
	CategoryTwin:     {"twin", "iki yatakli"},
}

// classifyOrder puts specific categories ahead of broad ones so that
// "Deluxe Double" is classified as deluxe.
var classifyOrder = []string{
	CategorySuite, CategoryDeluxe, CategorySuperior, CategoryFamily, CategoryStudio,
	CategoryTwin, CategoryDouble, CategorySingle, CategoryStandard,
}

// genericRequests select the cheapest room rather than a specific category.
var genericRequests = map[string]struct{}{
	"":         {},
	"any":      {},
	"all":      {},
	"*":        {},
	"standard": {},
	"default":  {},
	"room":     {},
	"oda":      {},
}

// IsGeneric reports whether a folded request asks for no particular category.
func IsGeneric(folded string) bool {
	_, ok := genericRequests[folded]
	return ok
}

// Resolve maps a folded request onto a canonical category.
func (s Synonyms) Resolve(folded string) (string, bool) {
	if _, ok := s[folded]; ok {
		return folded, true
	}
	for _, category := range s.categories() {
		for _, variant := range s[category] {
			if Fold(variant) == folded {
				return category, true
			}
		}
	}
	return "", false
}

// Merge returns a copy of s with extra spellings added. Keys and spellings
// are folded; unknown keys become new categories.
func (s Synonyms) Merge(extra map[string][]string) Synonyms {
	out := make(Synonyms, len(s)+len(extra))
	for category, variants := range s {
		out[category] = append([]string(nil), variants...)
	}
	for category, variants := range extra {
		key := Fold(category)
		if key == "" {
			continue
		}
		for _, v := range variants {
			fv := Fold(v)
			if fv == "" || fv == key || slices.Contains(out[key], fv) {
				continue
			}
			out[key] = append(out[key], fv)
		}
		if _, ok := out[key]; !ok {
			out[key] = []string{key}
		}
	}
	return out
}

// Variants returns the folded spellings for category, including the name itself.
func (s Synonyms) Variants(category string) []string {
	folded := Fold(category)
	out := []string{folded}
	for _, v := range s[folded] {
		if fv := Fold(v); fv != folded {
			out = append(out, fv)
		}
	}
	return out
}

// Classify assigns a canonical category to a provider room name.
func (s Synonyms) Classify(name string) (string, float64, bool) {
	folded := Fold(name)
	if folded == "" {
		return "", 0, false
	}
	for _, category := range s.order() {
		for _, variant := range s.Variants(category) {
			if containsWord(folded, variant) {
				return category, ConfidenceLexical, true
			}
		}
	}
	return "", 0, false
}

func (s Synonyms) order() []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, c := range classifyOrder {
		if _, ok := s[c]; ok {
			out = append(out, c)
			seen[c] = struct{}{}
		}
	}
	for _, c := range s.categories() {
		if _, ok := seen[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func (s Synonyms) categories() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
