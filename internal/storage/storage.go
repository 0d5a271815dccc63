// Package storage is the warehouse side of the pipeline: the Repository
// contract every database backend implements, the registries that map a
// db.driver value to a backend, and the batched loader.
//
// Backends register themselves from init. Import internal/storage/all to
// enable every built-in backend.
package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"epiviz/internal/schema"
)

// Repository is a sink for one warehouse table.
type Repository interface {
	// CopyFrom inserts rows aligned to columns as one batch and returns the
	// number of rows written.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs a single statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	// Close releases the connection pool.
	Close()
}

// Truncater is implemented by repositories that can empty their table.
type Truncater interface {
	Truncate(ctx context.Context) error
}

// Config selects a backend and the table a Repository writes.
type Config struct {
	Kind    string   // mysql, postgres, mssql or sqlite
	DSN     string   // driver-specific connection string
	Table   string   // target table, optionally schema-qualified
	Columns []string // destination columns in order
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

// DDLBuilder renders the idempotent CREATE TABLE script for a star table.
type DDLBuilder func(t schema.Table) (string, error)

// registry is a concurrency-safe map from backend kind to T.
type registry[T any] struct {
	mu sync.RWMutex
	m  map[string]T
}

func (r *registry[T]) set(kind string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = make(map[string]T)
	}
	r.m[kind] = v
}

func (r *registry[T]) get(kind string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[kind]
	return v, ok
}

func (r *registry[T]) kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.m))
}

var (
	factories registry[Factory]
	builders  registry[DDLBuilder]
)

// Register installs the factory for kind, replacing any previous one.
func Register(kind string, f Factory) { factories.set(kind, f) }

// RegisterDDL installs the CREATE TABLE builder for kind.
func RegisterDDL(kind string, b DDLBuilder) { builders.set(kind, b) }

// ListKinds returns the registered backend kinds, sorted.
func ListKinds() []string { return factories.kinds() }

// New opens a Repository with the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	f, ok := factories.get(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("storage: no backend for driver %q (have %v)", cfg.Kind, ListKinds())
	}
	return f(ctx, cfg)
}

// BuildDDL renders the CREATE TABLE script for t in the dialect of kind.
func BuildDDL(kind string, t schema.Table) (string, error) {
	b, ok := builders.get(kind)
	if !ok {
		return "", fmt.Errorf("storage: no DDL for driver %q", kind)
	}
	return b(t)
}

// EnsureTable creates t through repo unless it already exists.
func EnsureTable(ctx context.Context, kind string, repo Repository, t schema.Table) error {
	stmt, err := BuildDDL(kind, t)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

// Truncate empties the table behind repo. Repositories that are not
// Truncaters yield an error.
func Truncate(ctx context.Context, repo Repository) error {
	t, ok := repo.(Truncater)
	if !ok {
		return fmt.Errorf("storage: %T cannot truncate", repo)
	}
	return t.Truncate(ctx)
}
