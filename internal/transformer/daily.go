package transformer

import (
	"github.com/zeebo/xxh3"
)

// DailyDeriver fills missing daily counts from cumulative ones. It keeps the
// previous cumulative value per (pandemic, country, province) and must see
// the observations of each series in date order.
//
// A DailyDeriver is not safe for concurrent use.
type DailyDeriver struct {
	pairs [][2]string // daily measure -> cumulative measure
	prev  map[xxh3.Uint128]map[string]int64
}

// NewDailyDeriver derives new_cases from confirmed and new_deaths from deaths.
func NewDailyDeriver() *DailyDeriver {
	return &DailyDeriver{
		pairs: [][2]string{
			{MeasureNewCases, MeasureConfirmed},
			{MeasureNewDeaths, MeasureDeaths},
		},
		prev: make(map[xxh3.Uint128]map[string]int64),
	}
}

// Derive sets each missing daily measure of o. The first observation of a
// series takes the cumulative value; later ones the difference to the
// previous cumulative value. Negative differences (source corrections) are
// kept. A present daily value is never overwritten.
func (d *DailyDeriver) Derive(o *Observation) {
	key := seriesKey(o.Pandemic, o.Country, o.Province)
	last, seen := d.prev[key]
	if !seen {
		last = make(map[string]int64, len(d.pairs))
		d.prev[key] = last
	}

	for _, p := range d.pairs {
		daily, cum := p[0], p[1]
		c, ok := o.Measure(cum)
		if !ok {
			continue
		}
		if _, has := o.Measure(daily); !has {
			if before, ok := last[cum]; ok {
				o.SetMeasure(daily, c-before)
			} else {
				o.SetMeasure(daily, c)
			}
		}
		last[cum] = c
	}
}

// seriesKey hashes the identifying fields with a separator that cannot occur
// in CSV cells after normalisation.
func seriesKey(parts ...string) xxh3.Uint128 {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
		buf = append(buf, 0)
	}
	return xxh3.Hash128(buf)
}
