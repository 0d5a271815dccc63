// Package mysql loads star tables into MySQL through go-sql-driver/mysql.
// database/sql offers no COPY path for MySQL, so each batch is sent as
// multi-row INSERT statements inside one transaction.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"epiviz/internal/ddl"
	"epiviz/internal/schema"
	"epiviz/internal/storage"
)

// Kind is the db.driver value served by this package.
const Kind = "mysql"

// maxPlaceholders stays below the 65535 parameters MySQL accepts per
// prepared statement.
const maxPlaceholders = 60000

// dialect creates InnoDB tables so foreign keys are enforced. Text is
// VARCHAR rather than TEXT so it can be indexed without a prefix length.
var dialect = ddl.Dialect{
	Name:  "mysql ddl",
	Quote: func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
	Types: map[schema.Type]string{
		schema.TypeBigint: "BIGINT",
		schema.TypeInt:    "INT",
		schema.TypeFloat:  "DOUBLE",
		schema.TypeDate:   "DATE",
	},
	Fallback:    "VARCHAR(255)",
	IfNotExists: true,
	Wrap: func(_, create string) string {
		return create + " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;"
	},
}

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg)
	})
	storage.RegisterDDL(Kind, dialect.Create)
}

// Repository writes one table.
type Repository struct {
	db    *sql.DB
	table string
}

var (
	_ storage.Repository = (*Repository)(nil)
	_ storage.Truncater  = (*Repository)(nil)
)

// NewRepository opens a pool for cfg.DSN and pings the server.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(conn)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping %s: %w", mc.Addr, err)
	}
	return &Repository{db: db, table: cfg.Table}, nil
}

// Close releases the pool.
func (r *Repository) Close() { _ = r.db.Close() }

// CopyFrom inserts rows in one transaction, splitting them into statements
// that respect the placeholder limit.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mysql: no columns")
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("mysql: row %d has %d values, want %d", i, len(row), len(columns))
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	per := max(maxPlaceholders/len(columns), 1)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mysql: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted int64
	args := make([]any, 0, min(per, len(rows))*len(columns))
	for start := 0; start < len(rows); start += per {
		chunk := rows[start:min(start+per, len(rows))]
		args = args[:0]
		for _, row := range chunk {
			args = append(args, row...)
		}
		res, err := tx.ExecContext(ctx, insertSQL(r.table, columns, len(chunk)), args...)
		if err != nil {
			return 0, fmt.Errorf("mysql: insert rows %d-%d: %w", start, start+len(chunk)-1, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("mysql: rows affected: %w", err)
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mysql: commit: %w", err)
	}
	return inserted, nil
}

// Exec runs one statement. Blank statements are skipped.
func (r *Repository) Exec(ctx context.Context, stmt string) error {
	if strings.TrimSpace(stmt) == "" {
		return nil
	}
	_, err := r.db.ExecContext(ctx, stmt)
	return err
}

// Truncate empties the table. TRUNCATE TABLE is refused on tables that a
// foreign key references, so rows are deleted instead.
func (r *Repository) Truncate(ctx context.Context) error {
	return r.Exec(ctx, "DELETE FROM "+dialect.Table(r.table))
}

// insertSQL renders INSERT INTO `t` (`a`,`b`) VALUES (?,?),(?,?) for n rows.
func insertSQL(table string, columns []string, n int) string {
	tuple := "(?" + strings.Repeat(",?", len(columns)-1) + ")"
	var sb strings.Builder
	sb.Grow(32 + len(table) + 16*len(columns) + n*(len(tuple)+1))
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", dialect.Table(table), strings.Join(dialect.Idents(columns), ","))
	for i := range n {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(tuple)
	}
	return sb.String()
}
