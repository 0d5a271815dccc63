package ddl

import "epiviz/internal/schema"

// Dialect describes how a backend spells identifiers, column types and
// CREATE TABLE statements.
type Dialect struct {
	// Name prefixes error messages, e.g. "postgres ddl".
	Name string
	// Quote quotes a single identifier segment. Nil emits identifiers as-is.
	Quote func(ident string) string
	// Types maps logical column types to SQL types. Unmapped types use
	// Fallback.
	Types    map[schema.Type]string
	Fallback string
	// IfNotExists adds IF NOT EXISTS after CREATE TABLE.
	IfNotExists bool
	// Wrap, when set, receives the quoted FQN and the CREATE TABLE statement
	// without its trailing semicolon, and returns the final script.
	Wrap func(quotedFQN, create string) string
}

// Ident quotes one identifier segment.
func (d Dialect) Ident(s string) string {
	if d.Quote == nil {
		return s
	}
	return d.Quote(s)
}

// Idents quotes every name in cols.
func (d Dialect) Idents(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Ident(c)
	}
	return out
}

// Table quotes a possibly schema-qualified table name.
func (d Dialect) Table(fqn string) string { return QuoteFQN(fqn, d.Ident) }

// SQLType returns the column type for t.
func (d Dialect) SQLType(t schema.Type) string {
	if s, ok := d.Types[t]; ok {
		return s
	}
	return d.Fallback
}

// Create renders the idempotent CREATE TABLE script for t.
func (d Dialect) Create(t schema.Table) (string, error) {
	return Render(FromTable(t, d.SQLType), d)
}
