// Package overpass turns an industry keyword and a coordinate into Overpass QL.
package overpass

import (
	"sort"
	"strings"
)

// industry key -> search terms; built once, never mutated
var industryTerms = map[string][]string{
	"tech": {
		"computer",
		"technology",
		"software",
		"it_services",
		"electronics",
		"electronics_repair",
		"telecommunication",
		"office",
	},
	"restaurant": {"restaurant", "food", "cafe", "fast_food"},
	"cafe":       {"cafe", "coffee_shop", "coffee"},
	"shop":       {"shop", "store", "retail"},
}

// NormalizeIndustry lowercases and trims a user supplied industry.
func NormalizeIndustry(industry string) string {
	return strings.ToLower(strings.TrimSpace(industry))
}

// Translate maps an industry to its search terms. Unknown industries fall back to
// the lowercased input as the only term. The result is never empty for non-blank
// input and is always a fresh slice.
func Translate(industry string) []string {
	key := NormalizeIndustry(industry)
	if terms, ok := industryTerms[key]; ok {
		out := make([]string, len(terms))
		copy(out, terms)
		return out
	}
	return []string{key}
}

// Industries returns the known keys, sorted.
func Industries() []string {
	out := make([]string, 0, len(industryTerms))
	for k := range industryTerms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Known reports whether industry has a dedicated term list.
func Known(industry string) bool {
	_, ok := industryTerms[NormalizeIndustry(industry)]
	return ok
}
