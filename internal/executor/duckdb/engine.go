// Package duckdb executes validated statements against an embedded DuckDB
// database. It backs the dev profile, where the demo seeder loads a small
// claims schema so the whole pipeline runs without a warehouse.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/claimscope/claimscope/internal/executor"
	"github.com/claimscope/claimscope/internal/safety"
)

type Engine struct {
	db *sql.DB
}

// Open creates an engine over a DuckDB database. An empty path opens an
// in-memory database.
func Open(path string) (*Engine, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Engine{db: db}, nil
}

// DB exposes the underlying handle for seeding; generated statements still
// only reach it through Execute.
func (e *Engine) DB() *sql.DB {
	return e.db
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Execute(ctx context.Context, query safety.ValidatedQuery, opts executor.Options) (executor.Result, error) {
	if query.IsZero() {
		return executor.Result{}, fmt.Errorf("validated query is required")
	}

	execCtx, cancel := executor.WithDeadline(ctx, opts)
	defer cancel()

	start := time.Now()

	rows, err := e.db.QueryContext(execCtx, query.SQL())
	if err != nil {
		return executor.Result{}, classify(err)
	}
	defer func() { _ = rows.Close() }()

	result, err := executor.CollectRows(rows, opts.RowCap)
	if err != nil {
		return executor.Result{}, classify(err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", executor.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &executor.ExecutionError{Message: executor.SanitizeMessage(err)}
}
