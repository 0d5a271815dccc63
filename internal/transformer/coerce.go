package transformer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"epiviz/internal/schema"
)

const isoLayout = time.DateOnly

// Coercer turns the raw strings of a star table file into the typed values
// its columns declare. It is immutable and safe for concurrent use.
type Coercer struct {
	columns []string
	types   []schema.Type
	parse   []func(string) (any, bool)
}

// NewCoercer prepares one parser per column of t. Dates use layout, or ISO
// when layout is empty.
func NewCoercer(t schema.Table, layout string) *Coercer {
	if layout == "" {
		layout = isoLayout
	}
	c := &Coercer{
		columns: t.ColumnNames(),
		types:   make([]schema.Type, len(t.Columns)),
		parse:   make([]func(string) (any, bool), len(t.Columns)),
	}
	for i, col := range t.Columns {
		c.types[i] = col.Type
		c.parse[i] = parserFor(col.Type, layout)
	}
	return c
}

func parserFor(typ schema.Type, layout string) func(string) (any, bool) {
	switch typ {
	case schema.TypeBigint, schema.TypeInt:
		return func(s string) (any, bool) {
			n, ok := parseCount(s)
			return n, ok
		}
	case schema.TypeFloat:
		return func(s string) (any, bool) {
			f, err := strconv.ParseFloat(s, 64)
			return f, err == nil
		}
	case schema.TypeDate:
		return func(s string) (any, bool) {
			if layout == isoLayout {
				d, ok := parseISODate(s)
				return d, ok
			}
			d, err := time.Parse(layout, s)
			return d, err == nil
		}
	default:
		return func(s string) (any, bool) { return s, true }
	}
}

// Columns returns the column order rows must follow.
func (c *Coercer) Columns() []string { return c.columns }

// Coerce replaces the strings in r.V with typed values. Blank cells become
// nil. On failure r is left partly converted and an error naming the column
// is returned.
func (c *Coercer) Coerce(r *Row) error {
	for i, raw := range r.V[:len(c.parse)] {
		if raw == nil {
			continue
		}
		s := strings.TrimSpace(raw.(string))
		if s == "" {
			r.V[i] = nil
			continue
		}
		v, ok := c.parse[i](s)
		if !ok {
			return fmt.Errorf("column %s: cannot parse %q as %s", c.columns[i], s, c.types[i])
		}
		r.V[i] = v
	}
	return nil
}

// TransformLoopRows coerces rows from in and forwards them to out. Rows that
// fail are reported to onReject and freed. It returns when in is closed or
// ctx is done.
func TransformLoopRows(ctx context.Context, c *Coercer, in <-chan *Row, out chan<- *Row, onReject func(line int, reason string)) {
	for r := range in {
		if ctx.Err() != nil {
			r.Free()
			return
		}
		if err := c.Coerce(r); err != nil {
			if onReject != nil {
				onReject(r.Line, err.Error())
			}
			r.Free()
			continue
		}
		select {
		case out <- r:
		case <-ctx.Done():
			r.Free()
			return
		}
	}
}

// parseCount parses an integer count. Whole floats such as "42.0", which
// some datasets emit, are accepted too.
func parseCount(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if !strings.Contains(s, ".") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// parseISODate parses "2006-01-02" without allocating.
func parseISODate(s string) (time.Time, bool) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return time.Time{}, false
	}
	num := func(b string) (int, bool) {
		n := 0
		for i := 0; i < len(b); i++ {
			d := b[i] - '0'
			if d > 9 {
				return 0, false
			}
			n = n*10 + int(d)
		}
		return n, true
	}
	y, ok1 := num(s[:4])
	m, ok2 := num(s[5:7])
	d, ok3 := num(s[8:])
	if !ok1 || !ok2 || !ok3 || m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
