package transformer

import (
	"strings"

	"golang.org/x/text/cases"
)

// CountryAliases maps source country spellings to a canonical name. Lookup
// is case-insensitive (Unicode case folding) and ignores surrounding space.
// It is not safe for concurrent use.
type CountryAliases struct {
	fold cases.Caser
	m    map[string]string
}

// NewCountryAliases builds the lookup from alias -> canonical pairs.
func NewCountryAliases(aliases map[string]string) *CountryAliases {
	a := &CountryAliases{fold: cases.Fold(), m: make(map[string]string, len(aliases))}
	for from, to := range aliases {
		a.m[a.key(from)] = strings.TrimSpace(to)
	}
	return a
}

// Canonical returns the canonical name of country, or country trimmed when
// no alias matches.
func (a *CountryAliases) Canonical(country string) string {
	country = strings.TrimSpace(country)
	if a == nil || len(a.m) == 0 {
		return country
	}
	if to, ok := a.m[a.key(country)]; ok {
		return to
	}
	return country
}

func (a *CountryAliases) key(s string) string {
	return a.fold.String(strings.TrimSpace(s))
}
