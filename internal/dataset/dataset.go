// Package dataset describes the known raw input files: how their headers map
// onto the observation layout, how their dates are written, which rows are
// aggregates to drop, and whether daily counts must be derived.
package dataset

import (
	"fmt"
	"sort"
	"strings"

	"epiviz/internal/config"
	"epiviz/internal/transformer"
)

// Pandemic names written to the intermediate files.
const (
	PandemicCOVID19 = "COVID-19"
	PandemicMpox    = "Mpox"
)

var descriptions = map[string]string{
	PandemicCOVID19: "Coronavirus disease 2019, caused by SARS-CoV-2",
	PandemicMpox:    "Mpox (monkeypox), caused by the monkeypox virus",
}

// Description returns the pandemic description, or "" if unknown.
func Description(pandemic string) string { return descriptions[pandemic] }

// Filter drops rows whose Column value starts with Prefix.
type Filter struct {
	Column string
	Prefix string
}

// Drop reports whether a row with value v in Column is dropped.
func (f Filter) Drop(v string) bool {
	return strings.HasPrefix(v, f.Prefix)
}

// Descriptor describes one raw dataset.
type Descriptor struct {
	// Source is the configured source name.
	Source string
	// Pandemic is written in the pandemie column of every row.
	Pandemic string
	// HeaderMap maps normalized source headers to observation columns.
	// Headers already named like an observation column need no entry.
	HeaderMap map[string]string
	// DateLayout is the Go layout of the source date column.
	DateLayout string
	// Filters drop aggregate rows.
	Filters []Filter
	// DeriveDaily asks transform to compute missing new_cases/new_deaths
	// from the cumulative counts.
	DeriveDaily bool
}

// Columns returns the columns extract reads from the source: the
// observation columns followed by the filter columns.
func (d Descriptor) Columns() []string {
	cols := make([]string, 0, len(transformer.ObservationColumns)+len(d.Filters))
	cols = append(cols, transformer.ObservationColumns...)
	for _, f := range d.Filters {
		cols = append(cols, f.Column)
	}
	return cols
}

// ParserOptions returns the CSV parser options for the dataset overlaid with
// the configured source options.
func (d Descriptor) ParserOptions(over config.Options) config.Options {
	hm := make(map[string]any, len(d.HeaderMap))
	for k, v := range d.HeaderMap {
		hm[k] = v
	}
	base := config.Options{
		"has_header": true,
		"trim_space": true,
		"header_map": hm,
	}
	return base.Merge(over)
}

var registry = map[string]Descriptor{
	config.SourceCOVID19: {
		Source:   config.SourceCOVID19,
		Pandemic: PandemicCOVID19,
		HeaderMap: map[string]string{
			"province_state": transformer.ColProvince,
			"country_region": transformer.ColCountry,
			"lat":            transformer.ColLatitude,
			"long":           transformer.ColLongitude,
		},
		DateLayout:  transformer.LooseDateLayout,
		DeriveDaily: true,
	},
	config.SourceMPOX: {
		Source:   config.SourceMPOX,
		Pandemic: PandemicMpox,
		HeaderMap: map[string]string{
			"location":     transformer.ColCountry,
			"total_cases":  transformer.MeasureConfirmed,
			"total_deaths": transformer.MeasureDeaths,
		},
		DateLayout: transformer.LooseDateLayout,
		// OWID aggregates (World, continents, income groups) carry
		// OWID_-prefixed ISO codes.
		Filters: []Filter{{Column: "iso_code", Prefix: "OWID_"}},
	},
	config.SourceWorldometer: {
		Source:   config.SourceWorldometer,
		Pandemic: PandemicCOVID19,
		HeaderMap: map[string]string{
			"cumulative_total_cases":  transformer.MeasureConfirmed,
			"daily_new_cases":         transformer.MeasureNewCases,
			"active_cases":            transformer.MeasureActive,
			"cumulative_total_deaths": transformer.MeasureDeaths,
			"daily_new_deaths":        transformer.MeasureNewDeaths,
		},
		DateLayout:  transformer.LooseDateLayout,
		DeriveDaily: true,
	},
}

// Lookup returns the descriptor of a source name (case-insensitive).
func Lookup(source string) (Descriptor, error) {
	for name, d := range registry {
		if strings.EqualFold(name, source) {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("dataset: no descriptor for source %q (known: %s)", source, strings.Join(Names(), ", "))
}

// Names returns the known source names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
