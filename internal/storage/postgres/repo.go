// Package postgres loads star tables into PostgreSQL with pgx. Batches go
// straight into the target table over the COPY protocol.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"epiviz/internal/ddl"
	"epiviz/internal/schema"
	"epiviz/internal/storage"
)

// Kind is the db.driver value served by this package.
const Kind = "postgres"

var dialect = ddl.Dialect{
	Name:  "postgres ddl",
	Quote: func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` },
	Types: map[schema.Type]string{
		schema.TypeBigint: "BIGINT",
		schema.TypeInt:    "INTEGER",
		schema.TypeFloat:  "DOUBLE PRECISION",
		schema.TypeDate:   "DATE",
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
	pool  *pgxpool.Pool
	table pgx.Identifier
}

var (
	_ storage.Repository = (*Repository)(nil)
	_ storage.Truncater  = (*Repository)(nil)
)

// NewRepository creates a pool for cfg.DSN. Connections are opened lazily.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &Repository{pool: pool, table: identifier(cfg.Table)}, nil
}

// Close releases the pool.
func (r *Repository) Close() { r.pool.Close() }

// CopyFrom streams rows into the table with COPY.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, r.table, columns, pgx.CopyFromRows(rows))
	return n, describe("copy", err)
}

// Exec runs one statement.
func (r *Repository) Exec(ctx context.Context, stmt string) error {
	_, err := r.pool.Exec(ctx, stmt)
	return describe("exec", err)
}

// Truncate empties the table. TRUNCATE needs CASCADE on referenced tables,
// which would also empty the fact table, so rows are deleted instead.
func (r *Repository) Truncate(ctx context.Context) error {
	return r.Exec(ctx, "DELETE FROM "+r.table.Sanitize())
}

// describe adds the server-side detail of a *pgconn.PgError, which usually
// names the offending key.
func describe(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%s: %s (%s): %w", op, pgErr.Detail, pgErr.SQLState(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// identifier splits "schema.table" into its non-empty segments.
func identifier(fqn string) pgx.Identifier {
	var id pgx.Identifier
	for p := range strings.SplitSeq(fqn, ".") {
		if p = strings.TrimSpace(p); p != "" {
			id = append(id, p)
		}
	}
	return id
}
