// Package executor runs validated statements against the warehouse with a
// row cap and an explicit timeout. Read-only enforcement here is
// defense-in-depth on top of the safety validator: engines execute inside
// read-only transactions and the warehouse credential carries no write
// privilege.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claimscope/claimscope/internal/safety"
)

// ErrTimeout marks a statement that hit its execution deadline. Timeouts are
// infrastructure failures, never fed back into generation: the SQL was
// already valid.
var ErrTimeout = errors.New("executor: statement timed out")

// ExecutionError is an engine-reported fault with the underlying message
// sanitized for surfacing to callers.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return "executor: " + e.Message
}

type Options struct {
	RowCap  int
	Timeout time.Duration
}

type Result struct {
	Columns   []string
	Rows      []map[string]any
	RowCount  int
	Truncated bool
	Duration  time.Duration
}

type Engine interface {
	Execute(ctx context.Context, query safety.ValidatedQuery, opts Options) (Result, error)
}

// CollectRows drains up to opts.RowCap rows into column-name keyed maps,
// setting Truncated when more rows were available. Shared by every engine.
func CollectRows(rows *sql.Rows, rowCap int) (Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("read result columns: %w", err)
	}

	result := Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		if rowCap > 0 && len(result.Rows) >= rowCap {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan result row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	default:
		return value
	}
}

// SanitizeMessage flattens an engine error message to a single bounded line
// so internal detail (hosts, credentials, stack fragments) never reaches the
// caller verbatim.
func SanitizeMessage(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	const limit = 300
	if len(msg) > limit {
		msg = msg[:limit] + "..."
	}
	return msg
}

// WithDeadline derives the bounded execution context every engine must use.
func WithDeadline(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
