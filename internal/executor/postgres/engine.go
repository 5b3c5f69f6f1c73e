// Package postgres executes validated statements against the warehouse over
// the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/claimscope/claimscope/internal/executor"
	"github.com/claimscope/claimscope/internal/safety"
)

// SQLSTATE raised by Postgres when statement_timeout or a context
// cancellation kills the query.
const queryCanceledCode = "57014"

type Engine struct {
	db *sql.DB
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse db: %w", err)
	}
	return nil
}

// Execute runs the statement inside a read-only transaction, fetches at most
// opts.RowCap rows and records elapsed time. The borrowed connection is
// released on every exit path: rows, transaction and context cleanup are all
// deferred before the first fetch.
func (e *Engine) Execute(ctx context.Context, query safety.ValidatedQuery, opts executor.Options) (executor.Result, error) {
	if query.IsZero() {
		return executor.Result{}, fmt.Errorf("validated query is required")
	}

	execCtx, cancel := executor.WithDeadline(ctx, opts)
	defer cancel()

	start := time.Now()

	tx, err := e.db.BeginTx(execCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return executor.Result{}, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(execCtx, query.SQL())
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
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == queryCanceledCode {
			return fmt.Errorf("%w: %s", executor.ErrTimeout, pgErr.Message)
		}
		return &executor.ExecutionError{Message: executor.SanitizeMessage(err)}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &executor.ExecutionError{Message: executor.SanitizeMessage(err)}
}
