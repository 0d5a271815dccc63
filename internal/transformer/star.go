package transformer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"epiviz/internal/schema"
)

// Dimension key columns the builder knows how to fill.
const (
	KeyDate     = "date_id"
	KeyLocation = "location_id"
	KeyPandemic = "pandemie_id"
)

// StarOptions configures a StarBuilder.
type StarOptions struct {
	// Measures lists the numeric column names; matching is case-insensitive.
	Measures []string
	// MissingValue replaces a missing measure in fact rows.
	MissingValue int64
	// DateLayout renders calendar dates.
	DateLayout string
}

// BuildStats summarises what a StarBuilder has seen.
type BuildStats struct {
	Observations int64
	Duplicates   int64
	Dates        int
	Locations    int
	Pandemics    int
	Facts        int
}

type location struct {
	country, province, continent, latitude, longitude, whoRegion string
}

type pandemic struct {
	name, description string
}

type fact struct {
	dateID, locationID, pandemicID int64
	measures                       map[string]int64
}

// StarBuilder accumulates observations into star-schema rows. Surrogate ids
// are assigned by first appearance and facts are de-duplicated keep-first on
// (date, location, pandemic).
//
// A StarBuilder is not safe for concurrent use.
type StarBuilder struct {
	star     schema.Star
	fact     schema.Table
	opt      StarOptions
	measures map[string]struct{}

	dates     map[int64]time.Time
	locIDs    map[xxh3.Uint128]int64
	locations []location
	panIDs    map[string]int64
	pandemics []pandemic
	descr     map[string]string
	seenFacts map[xxh3.Uint128]struct{}
	facts     []fact

	observations int64
	duplicates   int64
}

// NewStarBuilder checks that every table of star is one the builder can fill
// and returns an empty builder.
func NewStarBuilder(star schema.Star, opt StarOptions) (*StarBuilder, error) {
	f, ok := star.Fact()
	if !ok {
		return nil, fmt.Errorf("star: no fact table")
	}
	for _, t := range star.Tables {
		if t.Name == f.Name {
			continue
		}
		switch t.Key().Name {
		case KeyDate, KeyLocation, KeyPandemic:
		default:
			return nil, fmt.Errorf("star: no builder for dimension %s keyed by %s", t.Name, t.Key().Name)
		}
	}
	if opt.DateLayout == "" {
		opt.DateLayout = isoLayout
	}

	ms := make(map[string]struct{}, len(opt.Measures))
	for _, m := range opt.Measures {
		ms[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}

	return &StarBuilder{
		star:      star,
		fact:      f,
		opt:       opt,
		measures:  ms,
		dates:     make(map[int64]time.Time),
		locIDs:    make(map[xxh3.Uint128]int64),
		panIDs:    make(map[string]int64),
		descr:     make(map[string]string),
		seenFacts: make(map[xxh3.Uint128]struct{}),
	}, nil
}

// DescribePandemic sets the description rendered for a pandemic name.
func (b *StarBuilder) DescribePandemic(name, description string) {
	b.descr[name] = description
	if id, ok := b.panIDs[name]; ok {
		b.pandemics[id-1].description = description
	}
}

// Add records one observation. It reports false when a fact for the same
// (date, location, pandemic) was already added.
func (b *StarBuilder) Add(o Observation) bool {
	b.observations++

	dateID := DateID(o.Date)
	if _, ok := b.dates[dateID]; !ok {
		b.dates[dateID] = o.Date
	}
	locID := b.location(o)
	panID := b.pandemic(o.Pandemic)

	fk := factKey(dateID, locID, panID)
	if _, dup := b.seenFacts[fk]; dup {
		b.duplicates++
		return false
	}
	b.seenFacts[fk] = struct{}{}

	m := make(map[string]int64, len(o.Measures))
	for k, v := range o.Measures {
		m[strings.ToLower(k)] = v
	}
	b.facts = append(b.facts, fact{dateID: dateID, locationID: locID, pandemicID: panID, measures: m})
	return true
}

func (b *StarBuilder) location(o Observation) int64 {
	key := seriesKey(o.Country, o.Province)
	if id, ok := b.locIDs[key]; ok {
		l := &b.locations[id-1]
		fill(&l.continent, o.Continent)
		fill(&l.latitude, o.Latitude)
		fill(&l.longitude, o.Longitude)
		fill(&l.whoRegion, o.WHORegion)
		return id
	}
	b.locations = append(b.locations, location{
		country:   o.Country,
		province:  o.Province,
		continent: o.Continent,
		latitude:  o.Latitude,
		longitude: o.Longitude,
		whoRegion: o.WHORegion,
	})
	id := int64(len(b.locations))
	b.locIDs[key] = id
	return id
}

func (b *StarBuilder) pandemic(name string) int64 {
	if id, ok := b.panIDs[name]; ok {
		return id
	}
	b.pandemics = append(b.pandemics, pandemic{name: name, description: b.descr[name]})
	id := int64(len(b.pandemics))
	b.panIDs[name] = id
	return id
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Stats returns the counters accumulated so far.
func (b *StarBuilder) Stats() BuildStats {
	return BuildStats{
		Observations: b.observations,
		Duplicates:   b.duplicates,
		Dates:        len(b.dates),
		Locations:    len(b.locations),
		Pandemics:    len(b.pandemics),
		Facts:        len(b.facts),
	}
}

// Rows renders the named table in its configured column order. Columns the
// builder does not know are rendered empty. Calendar rows are sorted by
// date; other tables keep insertion order.
func (b *StarBuilder) Rows(table string) ([][]string, error) {
	t, ok := b.star.Table(table)
	if !ok {
		return nil, fmt.Errorf("star: unknown table %s", table)
	}
	if t.Name == b.fact.Name {
		return b.factRows(t), nil
	}
	switch t.Key().Name {
	case KeyDate:
		return b.calendarRows(t), nil
	case KeyLocation:
		return b.locationRows(t), nil
	case KeyPandemic:
		return b.pandemicRows(t), nil
	}
	return nil, fmt.Errorf("star: no builder for table %s", table)
}

func (b *StarBuilder) calendarRows(t schema.Table) [][]string {
	ids := make([]int64, 0, len(b.dates))
	for id := range b.dates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([][]string, 0, len(ids))
	for _, id := range ids {
		d := b.dates[id]
		rec := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			switch strings.ToLower(c.Name) {
			case KeyDate:
				rec[i] = strconv.FormatInt(id, 10)
			case "date":
				rec[i] = d.Format(b.opt.DateLayout)
			case "year":
				rec[i] = strconv.Itoa(d.Year())
			case "month":
				rec[i] = strconv.Itoa(int(d.Month()))
			case "day":
				rec[i] = strconv.Itoa(d.Day())
			}
		}
		out = append(out, rec)
	}
	return out
}

func (b *StarBuilder) locationRows(t schema.Table) [][]string {
	out := make([][]string, 0, len(b.locations))
	for i, l := range b.locations {
		rec := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			switch strings.ToLower(c.Name) {
			case KeyLocation:
				rec[j] = strconv.Itoa(i + 1)
			case ColCountry:
				rec[j] = l.country
			case ColProvince:
				rec[j] = l.province
			case ColContinent:
				rec[j] = l.continent
			case ColLatitude:
				rec[j] = l.latitude
			case ColLongitude:
				rec[j] = l.longitude
			case ColWHORegion:
				rec[j] = l.whoRegion
			}
		}
		out = append(out, rec)
	}
	return out
}

func (b *StarBuilder) pandemicRows(t schema.Table) [][]string {
	out := make([][]string, 0, len(b.pandemics))
	for i, p := range b.pandemics {
		rec := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			switch strings.ToLower(c.Name) {
			case KeyPandemic:
				rec[j] = strconv.Itoa(i + 1)
			case "nom", "name":
				rec[j] = p.name
			case "description":
				rec[j] = p.description
			}
		}
		out = append(out, rec)
	}
	return out
}

func (b *StarBuilder) factRows(t schema.Table) [][]string {
	key := strings.ToLower(t.Key().Name)
	missing := strconv.FormatInt(b.opt.MissingValue, 10)

	out := make([][]string, 0, len(b.facts))
	for i, f := range b.facts {
		rec := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			name := strings.ToLower(c.Name)
			switch name {
			case key:
				rec[j] = strconv.Itoa(i + 1)
			case KeyDate:
				rec[j] = strconv.FormatInt(f.dateID, 10)
			case KeyLocation:
				rec[j] = strconv.FormatInt(f.locationID, 10)
			case KeyPandemic:
				rec[j] = strconv.FormatInt(f.pandemicID, 10)
			default:
				if _, ok := b.measures[name]; !ok {
					continue
				}
				if v, ok := f.measures[name]; ok {
					rec[j] = strconv.FormatInt(v, 10)
				} else {
					rec[j] = missing
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

// DateID encodes a date as yyyymmdd.
func DateID(d time.Time) int64 {
	return int64(d.Year())*10000 + int64(d.Month())*100 + int64(d.Day())
}

func factKey(date, loc, pan int64) xxh3.Uint128 {
	var buf [24]byte
	put := func(off int, v int64) {
		for i := 0; i < 8; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}
	put(0, date)
	put(8, loc)
	put(16, pan)
	return xxh3.Hash128(buf[:])
}
