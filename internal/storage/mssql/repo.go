// Package mssql loads star tables into SQL Server with the go-mssqldb bulk
// copy API. Each batch is bulk-copied inside one transaction with foreign
// keys checked.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"epiviz/internal/ddl"
	"epiviz/internal/schema"
	"epiviz/internal/storage"
)

// Kind is the db.driver value served by this package.
const Kind = "mssql"

// dialect guards CREATE TABLE with OBJECT_ID since T-SQL has no
// CREATE TABLE IF NOT EXISTS.
var dialect = ddl.Dialect{
	Name:  "mssql ddl",
	Quote: func(s string) string { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" },
	Types: map[schema.Type]string{
		schema.TypeBigint: "BIGINT",
		schema.TypeInt:    "INT",
		schema.TypeFloat:  "FLOAT",
		schema.TypeDate:   "DATE",
		schema.TypeText:   "NVARCHAR(255)",
	},
	Fallback: "NVARCHAR(MAX)",
	Wrap: func(table, create string) string {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  %s;\nEND;",
			table, strings.ReplaceAll(create, "\n", "\n  "))
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

// NewRepository checks the DSN, opens a pool and pings the server.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql ping: %w", err)
	}
	return &Repository{db: db, table: cfg.Table}, nil
}

// Close releases the pool.
func (r *Repository) Close() { _ = r.db.Close() }

// CopyFrom bulk-copies rows into the table. A fact row pointing at a missing
// dimension key fails the batch.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	bulk := mssql.CopyIn(r.table, mssql.BulkOptions{CheckConstraints: true, Tablock: true}, columns...)
	stmt, err := tx.PrepareContext(ctx, bulk)
	if err != nil {
		return 0, fmt.Errorf("mssql: prepare bulk: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("mssql: bulk row %d: %w", i, err)
		}
	}
	// An Exec without arguments flushes the bulk copy.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("mssql: bulk flush: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mssql: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return n, nil
}

// Exec runs one statement.
func (r *Repository) Exec(ctx context.Context, stmt string) error {
	_, err := r.db.ExecContext(ctx, stmt)
	return err
}

// Truncate empties the table. TRUNCATE TABLE is refused on tables a foreign
// key references, so rows are deleted instead.
func (r *Repository) Truncate(ctx context.Context) error {
	return r.Exec(ctx, "DELETE FROM "+dialect.Table(r.table))
}
