package csv

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeHeader converts header text into a lowercase ASCII identifier:
//  1. lowercase
//  2. strip accents (NFD → remove Mn → NFC)
//  3. keep [a-z0-9]; any other run of characters becomes one underscore
//  4. trim leading/trailing underscores
//
// "Country/Region" becomes "country_region" and "Date de création" becomes
// "date_de_creation".
func NormalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, err := transform.String(t, s)
	if err != nil {
		ascii = s
	}

	var b strings.Builder
	b.Grow(len(ascii))
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// hasEdgeSpace reports whether s starts or ends with ASCII whitespace. It lets
// the hot path skip strings.TrimSpace for the common clean cell.
func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isASCIISpace(s[0]) || isASCIISpace(s[len(s)-1])
}

func isASCIISpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

// StripHeaderBOM drops a leading UTF-8 byte order mark from the first cell.
// The slice is modified in place and returned.
func StripHeaderBOM(headers []string) []string {
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}
	return headers
}

// sourceIndex maps each target column to its position in hdr, or -1 when the
// file lacks it. Header cells and aliases are compared after normalization.
// The first of several cells mapping to one target wins.
func sourceIndex(hdr, columns []string, aliases map[string]string) []int {
	renamed := make(map[string]string, len(aliases))
	for from, to := range aliases {
		renamed[NormalizeHeader(from)] = to
	}
	pos := make(map[string]int, len(hdr))
	for i, h := range StripHeaderBOM(hdr) {
		name := NormalizeHeader(h)
		if to, ok := renamed[name]; ok {
			name = to
		}
		if _, seen := pos[name]; !seen {
			pos[name] = i
		}
	}
	ix := make([]int, len(columns))
	for i, c := range columns {
		if p, ok := pos[c]; ok {
			ix[i] = p
		} else {
			ix[i] = -1
		}
	}
	return ix
}

func trimSpace(s string) string {
	for s != "" && isASCIISpace(s[0]) {
		s = s[1:]
	}
	for s != "" && isASCIISpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}
