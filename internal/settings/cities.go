// ABOUTME: City list normalization for free-text input
// ABOUTME: Splits, capitalizes and merges names, then collapses colloquial aliases

package settings

import (
	"strings"
	"unicode"

	"github.com/2389/helpdesk-relay/internal/store"
)

// cityAliases maps lowercased colloquial names to official ones.
var cityAliases = map[string]string{
	"питер":           "Санкт-Петербург",
	"спб":             "Санкт-Петербург",
	"санкт-петербург": "Санкт-Петербург",
	"мск":             "Москва",
}

// NormalizeCities merges the cities named in input into existing.
// Aliases are applied after the union, so an alias and its official name
// given together end up as one entry.
func NormalizeCities(existing []string, input string) []string {
	merged := make([]string, 0, len(existing))
	merged = append(merged, existing...)

	for _, part := range strings.FieldsFunc(input, isCitySeparator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		merged = append(merged, capitalize(part))
	}
	merged = store.SortedSet(merged)

	for i, city := range merged {
		if official, ok := cityAliases[strings.ToLower(city)]; ok {
			merged[i] = official
		}
	}
	return store.SortedSet(merged)
}

func isCitySeparator(r rune) bool {
	switch r {
	case ';', '.', '\n', ',':
		return true
	}
	return false
}

func capitalize(s string) string {
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
