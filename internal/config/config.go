// Package config defines the static configuration of the epiviz pipeline:
// data directories, source files, database connection parameters,
// transformation parameters, and the column layout of the star-schema
// warehouse.
//
// The declared defaults are the single source of truth; a YAML file and
// EPIVIZ_* environment variables may override them (see Load). Everything in
// this package is plain data: Settings values are safe to copy and share
// across goroutines once loaded.
//
// Example (trimmed):
//
//	paths:
//	  raw: ./donnees/brutes/
//	sources:
//	  - name: COVID19
//	    file: covid_19_clean_complete.csv
//	db:
//	  driver: mysql
//	  host: localhost
//	  port: 3306
//	tables:
//	  - name: calendar
//	    columns: [date_id, date, year, month, day]
package config

import (
	"fmt"
	"strings"

	"github.com/ncruces/go-strftime"
)

// Settings is the top-level configuration object.
type Settings struct {
	// Job names the pipeline for metrics and log labeling.
	Job string `yaml:"job"`

	Paths     Paths           `yaml:"paths"`
	Sources   Sources         `yaml:"sources"`
	DB        DBConfig        `yaml:"db"`
	Transform TransformParams `yaml:"transform"`
	Tables    TableStructures `yaml:"tables"`
	Runtime   Runtime         `yaml:"runtime"`
}

// Paths lists the three working directories of the pipeline.
type Paths struct {
	// Raw holds the source files as downloaded.
	Raw string `yaml:"raw"`
	// Intermediate holds per-source files normalized to the observation layout.
	Intermediate string `yaml:"intermediate"`
	// Transformed holds one file per warehouse table.
	Transformed string `yaml:"transformed"`
}

// All returns the paths keyed by their configuration name, in a stable order.
func (p Paths) All() []NamedPath {
	return []NamedPath{
		{Name: "raw", Path: p.Raw},
		{Name: "intermediate", Path: p.Intermediate},
		{Name: "transformed", Path: p.Transformed},
	}
}

// NamedPath pairs a directory with its configuration key.
type NamedPath struct {
	Name string
	Path string
}

// Source names one input dataset and the file it is read from.
type Source struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`

	// Options are passed to the CSV parser and override the dataset
	// descriptor's defaults (e.g. comma, lazy_quotes).
	Options Options `yaml:"options,omitempty"`
}

// Sources is the ordered list of input datasets. Order matters: transform
// reads sources in this order and keeps the first fact seen for a key.
type Sources []Source

// Lookup returns the source with the given name (case-insensitive).
func (s Sources) Lookup(name string) (Source, bool) {
	for _, src := range s {
		if strings.EqualFold(src.Name, name) {
			return src, true
		}
	}
	return Source{}, false
}

// TransformParams holds the knobs of the transform stage.
type TransformParams struct {
	// DateFormat is a strftime pattern such as "%Y-%m-%d".
	DateFormat string `yaml:"date_format"`

	// NumericColumns lists measure columns parsed as numbers. Matching
	// against table columns is case-insensitive.
	NumericColumns []string `yaml:"numeric_columns"`

	// MissingValue replaces empty or unparsable numeric values.
	MissingValue int64 `yaml:"missing_value"`

	// CountryAliases maps source spellings to a canonical country name.
	CountryAliases map[string]string `yaml:"country_aliases"`
}

// DateLayout converts DateFormat into a Go time layout.
func (t TransformParams) DateLayout() (string, error) {
	layout, err := strftime.Layout(t.DateFormat)
	if err != nil {
		return "", fmt.Errorf("date format %q: %w", t.DateFormat, err)
	}
	return layout, nil
}

// NumericColumnSet returns the lower-cased numeric column names as a set.
func (t TransformParams) NumericColumnSet() map[string]struct{} {
	out := make(map[string]struct{}, len(t.NumericColumns))
	for _, c := range t.NumericColumns {
		out[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	return out
}

// TableStructure is the ordered column list of one warehouse table. The
// first column is the table's key.
type TableStructure struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// TableStructures is the ordered list of warehouse tables.
type TableStructures []TableStructure

// Lookup returns the table with the given name.
func (ts TableStructures) Lookup(name string) (TableStructure, bool) {
	for _, t := range ts {
		if t.Name == name {
			return t, true
		}
	}
	return TableStructure{}, false
}

// Runtime controls concurrency, batching, and channel buffer sizes.
type Runtime struct {
	BatchSize        int `yaml:"batch_size"`
	ChannelBuffer    int `yaml:"channel_buffer"`
	TransformWorkers int `yaml:"transform_workers"`
}
