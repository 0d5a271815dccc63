// Package sqlite loads star tables into a SQLite file through the pure-Go
// modernc.org/sqlite driver. It needs no server, which makes it the backend
// of choice for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"epiviz/internal/ddl"
	"epiviz/internal/schema"
	"epiviz/internal/storage"
)

// Kind is the db.driver value served by this package.
const Kind = "sqlite"

// fkPragma enables foreign key enforcement on every pooled connection.
const fkPragma = "_pragma=foreign_keys(1)"

// dialect uses SQLite type affinities. Dates are stored as ISO-8601 text.
var dialect = ddl.Dialect{
	Name:  "sqlite ddl",
	Quote: func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` },
	Types: map[schema.Type]string{
		schema.TypeBigint: "INTEGER",
		schema.TypeInt:    "INTEGER",
		schema.TypeFloat:  "REAL",
	},
	Fallback:    "TEXT",
	IfNotExists: true,
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

// NewRepository opens the database named by cfg.DSN, a file path or a
// "file:" URI, with foreign keys enabled.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlite: empty DSN")
	}
	db, err := sql.Open("sqlite", withForeignKeys(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repository{db: db, table: cfg.Table}, nil
}

func withForeignKeys(dsn string) string {
	switch {
	case strings.Contains(dsn, "foreign_keys"):
		return dsn
	case strings.Contains(dsn, "?"):
		return dsn + "&" + fkPragma
	default:
		return dsn + "?" + fkPragma
	}
}

// Close releases the database handle.
func (r *Repository) Close() { _ = r.db.Close() }

// CopyFrom inserts rows with one prepared statement in one transaction. Any
// failing row rolls the whole batch back.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, errors.New("sqlite: no columns")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSQL(r.table, columns))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("sqlite: row %d has %d values, want %d", i, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("sqlite: row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return int64(len(rows)), nil
}

// Exec runs one statement. Blank statements are skipped.
func (r *Repository) Exec(ctx context.Context, stmt string) error {
	if strings.TrimSpace(stmt) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// Truncate deletes every row of the table.
func (r *Repository) Truncate(ctx context.Context) error {
	return r.Exec(ctx, "DELETE FROM "+dialect.Table(r.table))
}

// Count returns the number of rows in the table.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+dialect.Table(r.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// insertSQL renders INSERT INTO "t" ("a", "b") VALUES (?, ?).
func insertSQL(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (?%s)",
		dialect.Table(table),
		strings.Join(dialect.Idents(columns), ", "),
		strings.Repeat(", ?", len(columns)-1))
}
