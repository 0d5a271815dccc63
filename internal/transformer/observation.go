package transformer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Observation column names. Extract writes intermediate files with exactly
// this header and transform reads them back.
const (
	ColPandemic  = "pandemie"
	ColDate      = "date"
	ColCountry   = "country"
	ColProvince  = "province"
	ColContinent = "continent"
	ColLatitude  = "latitude"
	ColLongitude = "longitude"
	ColWHORegion = "who_region"
)

// Measure names, lower-cased.
const (
	MeasureConfirmed = "confirmed"
	MeasureDeaths    = "deaths"
	MeasureRecovered = "recovered"
	MeasureActive    = "active"
	MeasureNewCases  = "new_cases"
	MeasureNewDeaths = "new_deaths"
)

// ObservationColumns is the intermediate file header.
var ObservationColumns = []string{
	ColPandemic, ColDate, ColCountry, ColProvince, ColContinent,
	ColLatitude, ColLongitude, ColWHORegion,
	MeasureConfirmed, MeasureDeaths, MeasureRecovered, MeasureActive,
	MeasureNewCases, MeasureNewDeaths,
}

const firstMeasure = 8

// Observation is one dated count report for a location and a pandemic.
// A measure absent from Measures is missing in the source.
type Observation struct {
	Pandemic  string
	Date      time.Time
	Country   string
	Province  string
	Continent string
	Latitude  string
	Longitude string
	WHORegion string
	Measures  map[string]int64
}

// Measure returns the value of a measure and whether it is present.
func (o Observation) Measure(name string) (int64, bool) {
	v, ok := o.Measures[name]
	return v, ok
}

// SetMeasure stores a present value.
func (o *Observation) SetMeasure(name string, v int64) {
	if o.Measures == nil {
		o.Measures = make(map[string]int64, len(ObservationColumns)-firstMeasure)
	}
	o.Measures[name] = v
}

// LooseDateLayout parses year-month-day dates with or without zero padding,
// so both "2020-02-15" and "2020-2-15" are accepted.
const LooseDateLayout = "2006-1-2"

// DecodeObservation builds an Observation from values aligned to
// ObservationColumns. Values are strings or nil. The date is parsed with
// layout; an empty country or an unparsable date is an error. Numeric
// fields that do not parse are treated as missing.
func DecodeObservation(values []any, layout string) (Observation, error) {
	if len(values) != len(ObservationColumns) {
		return Observation{}, fmt.Errorf("observation has %d values, want %d", len(values), len(ObservationColumns))
	}
	str := func(i int) string {
		s, _ := values[i].(string)
		return strings.TrimSpace(s)
	}

	o := Observation{
		Pandemic:  str(0),
		Country:   str(2),
		Province:  str(3),
		Continent: str(4),
		Latitude:  str(5),
		Longitude: str(6),
		WHORegion: str(7),
	}
	if o.Country == "" {
		return Observation{}, fmt.Errorf("empty country")
	}
	raw := str(1)
	d, ok := parseISODate(raw)
	if !ok || (layout != isoLayout && layout != LooseDateLayout) {
		var err error
		if d, err = time.Parse(layout, raw); err != nil {
			return Observation{}, fmt.Errorf("date %q: %w", raw, err)
		}
	}
	o.Date = d

	for i := firstMeasure; i < len(ObservationColumns); i++ {
		if v, ok := ParseCount(str(i)); ok {
			o.SetMeasure(ObservationColumns[i], v)
		}
	}
	return o, nil
}

// Record renders the observation aligned to ObservationColumns with the date
// formatted by layout. Missing measures are empty.
func (o Observation) Record(layout string) []string {
	rec := make([]string, len(ObservationColumns))
	rec[0] = o.Pandemic
	rec[1] = o.Date.Format(layout)
	rec[2] = o.Country
	rec[3] = o.Province
	rec[4] = o.Continent
	rec[5] = o.Latitude
	rec[6] = o.Longitude
	rec[7] = o.WHORegion
	for i := firstMeasure; i < len(ObservationColumns); i++ {
		if v, ok := o.Measures[ObservationColumns[i]]; ok {
			rec[i] = strconv.FormatInt(v, 10)
		}
	}
	return rec
}

// ParseCount parses an integral count. Decimal renderings with a zero
// fraction ("12.0") are accepted. Empty or unparsable input reports false.
func ParseCount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	return parseCount(s)
}
