package ddl

import (
	"strconv"
	"strings"
	"testing"

	"epiviz/internal/config"
	"epiviz/internal/schema"
)

// TestBuildCreateTableSQL verifies the generic renderer and its input checks.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			def:         TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{FQN: "calendar"},
			errContains: "at least one column is required",
		},
		{
			name:        "column with empty type returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}},
			errContains: "missing SQLType",
		},
		{
			name: "foreign key on unknown column",
			def: TableDef{
				FQN:         "data",
				Columns:     []ColumnDef{{Name: "data_id", SQLType: "BIGINT"}},
				ForeignKeys: []ForeignKeyDef{{Column: "date_id", RefTable: "calendar", RefColumn: "date_id"}},
			},
			errContains: "foreign key column date_id",
		},
		{
			name: "primary key and default",
			def: TableDef{
				FQN: "pandemie",
				Columns: []ColumnDef{
					{Name: "pandemie_id", SQLType: "BIGINT", PrimaryKey: true},
					{Name: "nom", SQLType: "TEXT", Nullable: true},
					{Name: "cases", SQLType: "BIGINT", Default: " 0 "},
				},
			},
			wantSQL: "CREATE TABLE pandemie (\n  pandemie_id BIGINT NOT NULL,\n  nom TEXT,\n  cases BIGINT NOT NULL DEFAULT 0,\n  PRIMARY KEY (pandemie_id)\n);",
		},
		{
			name: "foreign keys rendered after primary key",
			def: TableDef{
				FQN: "  dw.data  ",
				Columns: []ColumnDef{
					{Name: "data_id", SQLType: "BIGINT", PrimaryKey: true},
					{Name: "date_id", SQLType: "BIGINT"},
				},
				ForeignKeys: []ForeignKeyDef{{Column: "date_id", RefTable: "dw.calendar", RefColumn: "date_id"}},
			},
			wantSQL: "CREATE TABLE dw.data (\n  data_id BIGINT NOT NULL,\n  date_id BIGINT NOT NULL,\n  PRIMARY KEY (data_id),\n  FOREIGN KEY (date_id) REFERENCES dw.calendar (date_id)\n);",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotSQL, err := BuildCreateTableSQL(tt.def)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("BuildCreateTableSQL() error = %v, want substring %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildCreateTableSQL() unexpected error = %v", err)
			}
			if gotSQL != tt.wantSQL {
				t.Fatalf("BuildCreateTableSQL() =\n%s\nwant:\n%s", gotSQL, tt.wantSQL)
			}
		})
	}
}

func TestRender_DialectHooks(t *testing.T) {
	t.Parallel()

	def := TableDef{
		FQN:     "calendar",
		Columns: []ColumnDef{{Name: "date_id", SQLType: "BIGINT", PrimaryKey: true}},
	}
	d := Dialect{
		Name:        "test ddl",
		Quote:       func(s string) string { return "<" + s + ">" },
		IfNotExists: true,
	}

	got, err := Render(def, d)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS <calendar> (\n  <date_id> BIGINT NOT NULL,\n  PRIMARY KEY (<date_id>)\n);"
	if got != want {
		t.Fatalf("Render() =\n%s\nwant:\n%s", got, want)
	}

	d.IfNotExists = false
	d.Wrap = func(q, create string) string { return "GUARD " + q + "\n" + create + " END" }
	got, err = Render(def, d)
	if err != nil {
		t.Fatalf("Render(wrap) error = %v", err)
	}
	if !strings.HasPrefix(got, "GUARD <calendar>\nCREATE TABLE <calendar> (") {
		t.Fatalf("Render(wrap) = %q", got)
	}
	if !strings.HasSuffix(got, "\n) END") {
		t.Fatalf("Render(wrap) must hand over the statement without semicolon: %q", got)
	}

	_, err = Render(TableDef{}, d)
	if err == nil || !strings.HasPrefix(err.Error(), "test ddl:") {
		t.Fatalf("Render() error = %v, want dialect-prefixed", err)
	}
}

func TestFromTable_DefaultFactTable(t *testing.T) {
	t.Parallel()

	s := config.Defaults()
	star, err := schema.Build(s.Tables, s.Transform.NumericColumns)
	if err != nil {
		t.Fatalf("schema.Build() error = %v", err)
	}
	fact, _ := star.Fact()

	def := FromTable(fact, func(ty schema.Type) string { return strings.ToUpper(string(ty)) })

	if def.FQN != "data" {
		t.Fatalf("FQN = %q", def.FQN)
	}
	if len(def.Columns) != len(fact.Columns) {
		t.Fatalf("columns = %d, want %d", len(def.Columns), len(fact.Columns))
	}
	if !def.Columns[0].PrimaryKey || def.Columns[0].SQLType != "BIGINT" {
		t.Fatalf("key column = %+v", def.Columns[0])
	}
	if len(def.ForeignKeys) != 3 {
		t.Fatalf("foreign keys = %+v, want 3", def.ForeignKeys)
	}
	if fk := def.ForeignKeys[1]; fk.Column != "location_id" || fk.RefTable != "location" {
		t.Fatalf("foreign key[1] = %+v", fk)
	}

	if _, err := BuildCreateTableSQL(def); err != nil {
		t.Fatalf("BuildCreateTableSQL(FromTable) error = %v", err)
	}
}

var benchmarkSink string

// BenchmarkBuildCreateTableSQL_LargeSchema measures rendering of a wide table.
func BenchmarkBuildCreateTableSQL_LargeSchema(b *testing.B) {
	cols := make([]ColumnDef, 0, 64)
	for i := 0; i < 64; i++ {
		cols = append(cols, ColumnDef{Name: "col_" + strconv.Itoa(i), SQLType: "TEXT", Nullable: true})
	}
	def := TableDef{FQN: "large_table", Columns: cols}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sql, err := BuildCreateTableSQL(def)
		if err != nil {
			b.Fatalf("BuildCreateTableSQL() error = %v", err)
		}
		benchmarkSink = sql
	}
}
