package ddl

import "epiviz/internal/schema"

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, DATE)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression (e.g., 0, CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// ForeignKeyDef links Column to RefTable(RefColumn).
type ForeignKeyDef struct {
	Column    string
	RefTable  string
	RefColumn string
}

// TableDef holds the table name (FQN, dotted form such as "schema.table"),
// the ordered columns, and foreign key constraints.
type TableDef struct {
	FQN         string
	Columns     []ColumnDef
	ForeignKeys []ForeignKeyDef
}

// TypeMapper maps a logical schema type to a dialect SQL type.
type TypeMapper func(schema.Type) string

// FromTable converts a typed warehouse table into a TableDef using mapType
// for column types. Foreign keys follow the table's references.
func FromTable(t schema.Table, mapType TypeMapper) TableDef {
	def := TableDef{
		FQN:     t.Name,
		Columns: make([]ColumnDef, 0, len(t.Columns)),
	}
	for _, c := range t.Columns {
		def.Columns = append(def.Columns, ColumnDef{
			Name:       c.Name,
			SQLType:    mapType(c.Type),
			Nullable:   c.Nullable,
			PrimaryKey: c.PrimaryKey,
		})
		if c.References != nil {
			def.ForeignKeys = append(def.ForeignKeys, ForeignKeyDef{
				Column:    c.Name,
				RefTable:  c.References.Table,
				RefColumn: c.References.Column,
			})
		}
	}
	return def
}
