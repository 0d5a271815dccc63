// Package schema derives a typed star-schema model from the configured table
// structures.
//
// Conventions:
//   - The first column of every table is its primary key.
//   - A non-key column whose name equals another table's key is a foreign key
//     to that table.
//   - Column types come from a fixed catalogue keyed by column name; callers
//     name the measure columns explicitly.
package schema

import (
	"fmt"
	"strings"

	"epiviz/internal/config"
)

// Type is a logical column type. Backends map it to their SQL dialect.
type Type string

const (
	TypeBigint Type = "bigint"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeDate   Type = "date"
	TypeText   Type = "text"
)

// Ref points at the referenced key of a foreign key column.
type Ref struct {
	Table  string
	Column string
}

// Column is a typed warehouse column.
type Column struct {
	Name       string
	Type       Type
	PrimaryKey bool
	Nullable   bool
	References *Ref
}

// Table is a typed warehouse table. Column order is the configured order.
type Table struct {
	Name    string
	Columns []Column
}

// Key returns the primary key column.
func (t Table) Key() Column { return t.Columns[0] }

// ColumnNames returns the column names in order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ForeignKeys returns the columns that reference another table.
func (t Table) ForeignKeys() []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.References != nil {
			out = append(out, c)
		}
	}
	return out
}

// Index returns the position of the named column or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Star is the full warehouse: dimensions plus fact tables.
type Star struct {
	Tables []Table
}

// Table returns the named table.
func (s Star) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Fact returns the first table that references other tables and is not
// itself referenced.
func (s Star) Fact() (Table, bool) {
	referenced := map[string]bool{}
	for _, t := range s.Tables {
		for _, fk := range t.ForeignKeys() {
			referenced[fk.References.Table] = true
		}
	}
	for _, t := range s.Tables {
		if len(t.ForeignKeys()) > 0 && !referenced[t.Name] {
			return t, true
		}
	}
	return Table{}, false
}

// LoadOrder returns the tables so that every referenced table precedes the
// tables referencing it. Among tables with no ordering constraint the
// configured order is kept.
func (s Star) LoadOrder() ([]Table, error) {
	done := make(map[string]bool, len(s.Tables))
	out := make([]Table, 0, len(s.Tables))

	for len(out) < len(s.Tables) {
		progressed := false
		for _, t := range s.Tables {
			if done[t.Name] {
				continue
			}
			ready := true
			for _, fk := range t.ForeignKeys() {
				if !done[fk.References.Table] {
					ready = false
					break
				}
			}
			if ready {
				done[t.Name] = true
				out = append(out, t)
				progressed = true
			}
		}
		if !progressed {
			var stuck []string
			for _, t := range s.Tables {
				if !done[t.Name] {
					stuck = append(stuck, t.Name)
				}
			}
			return nil, fmt.Errorf("schema: foreign key cycle between tables %s", strings.Join(stuck, ", "))
		}
	}
	return out, nil
}

// Build types every configured table. measures names the columns holding
// numeric counts; matching is case-insensitive.
func Build(ts config.TableStructures, measures []string) (Star, error) {
	measureSet := make(map[string]struct{}, len(measures))
	for _, m := range measures {
		measureSet[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}

	keys := make(map[string]string, len(ts)) // key column -> table
	for _, t := range ts {
		if strings.TrimSpace(t.Name) == "" {
			return Star{}, fmt.Errorf("schema: table with empty name")
		}
		if len(t.Columns) == 0 {
			return Star{}, fmt.Errorf("schema: table %s has no columns", t.Name)
		}
		if other, dup := keys[t.Columns[0]]; dup {
			return Star{}, fmt.Errorf("schema: tables %s and %s share key %s", other, t.Name, t.Columns[0])
		}
		keys[t.Columns[0]] = t.Name
	}

	star := Star{Tables: make([]Table, 0, len(ts))}
	seenTables := map[string]bool{}
	for _, t := range ts {
		if seenTables[t.Name] {
			return Star{}, fmt.Errorf("schema: duplicate table %s", t.Name)
		}
		seenTables[t.Name] = true

		tbl := Table{Name: t.Name, Columns: make([]Column, 0, len(t.Columns))}
		seen := map[string]bool{}
		for i, name := range t.Columns {
			if seen[name] {
				return Star{}, fmt.Errorf("schema: duplicate column %s.%s", t.Name, name)
			}
			seen[name] = true

			col := Column{Name: name, Type: columnType(name, measureSet), Nullable: true}
			switch {
			case i == 0:
				col.PrimaryKey = true
				col.Nullable = false
				col.Type = TypeBigint
			case keys[name] != "":
				col.References = &Ref{Table: keys[name], Column: name}
				col.Nullable = false
				col.Type = TypeBigint
			case strings.HasSuffix(name, "_id"):
				return Star{}, fmt.Errorf("schema: foreign key %s.%s matches no table key", t.Name, name)
			}
			if _, ok := measureSet[strings.ToLower(name)]; ok && i > 0 {
				// Measures are filled with the missing-value sentinel.
				col.Nullable = false
			}
			tbl.Columns = append(tbl.Columns, col)
		}
		star.Tables = append(star.Tables, tbl)
	}
	return star, nil
}

func columnType(name string, measures map[string]struct{}) Type {
	lower := strings.ToLower(name)
	if _, ok := measures[lower]; ok {
		return TypeBigint
	}
	switch {
	case strings.HasSuffix(lower, "_id"):
		return TypeBigint
	case lower == "date":
		return TypeDate
	case lower == "year", lower == "month", lower == "day":
		return TypeInt
	case lower == "latitude", lower == "longitude":
		return TypeFloat
	default:
		return TypeText
	}
}
