// Package ddl renders CREATE TABLE scripts for the star tables. Each storage
// backend declares a Dialect with its quoting, type names and idempotency
// guard. The zero Dialect emits identifiers verbatim.
package ddl

import (
	"fmt"
	"strings"
)

// BuildCreateTableSQL renders a generic CREATE TABLE statement from a TableDef.
//
// A column is rendered as
//
//	<Name> <SQLType> [NOT NULL] [DEFAULT <Default>]
//
// followed by a PRIMARY KEY clause for the columns flagged PrimaryKey and one
// FOREIGN KEY clause per ForeignKeyDef:
//
//	CREATE TABLE <FQN> (
//	  <col1-def>,
//	  ...,
//	  PRIMARY KEY (<pk-cols>),
//	  FOREIGN KEY (<col>) REFERENCES <table> (<col>)
//	);
func BuildCreateTableSQL(t TableDef) (string, error) {
	return Render(t, Dialect{Name: "ddl"})
}

// Render renders t using dialect d.
func Render(t TableDef, d Dialect) (string, error) {
	name := d.Name
	if name == "" {
		name = "ddl"
	}
	quote := d.Ident

	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s: table FQN must not be empty", name)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s: at least one column is required", name)
	}

	cols := make([]string, 0, len(t.Columns)+1+len(t.ForeignKeys))
	pks := make([]string, 0, 1)
	known := make(map[string]struct{}, len(t.Columns))

	for _, c := range t.Columns {
		col := strings.TrimSpace(c.Name)
		if col == "" {
			return "", fmt.Errorf("%s: column with empty name in table %s", name, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s: column %s missing SQLType", name, col)
		}
		known[col] = struct{}{}

		var sb strings.Builder
		sb.WriteString(quote(col))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quote(col))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	for _, fk := range t.ForeignKeys {
		if _, ok := known[fk.Column]; !ok {
			return "", fmt.Errorf("%s: foreign key column %s not in table %s", name, fk.Column, fqn)
		}
		if fk.RefTable == "" || fk.RefColumn == "" {
			return "", fmt.Errorf("%s: foreign key %s.%s has no target", name, fqn, fk.Column)
		}
		cols = append(cols, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			quote(fk.Column), QuoteFQN(fk.RefTable, quote), quote(fk.RefColumn)))
	}

	head := "CREATE TABLE "
	if d.IfNotExists {
		head += "IF NOT EXISTS "
	}
	quoted := QuoteFQN(fqn, quote)
	create := fmt.Sprintf("%s%s (\n  %s\n)", head, quoted, strings.Join(cols, ",\n  "))
	if d.Wrap != nil {
		return d.Wrap(quoted, create), nil
	}
	return create + ";", nil
}

// QuoteFQN quotes each dotted segment of fqn with quote, skipping empty
// segments.
func QuoteFQN(fqn string, quote func(string) string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, quote(p))
	}
	return strings.Join(out, ".")
}
