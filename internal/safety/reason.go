package safety

import "fmt"

// Reason is the machine-readable rejection code fed back into the next
// correction prompt and recorded in the attempt history.
type Reason string

const (
	ReasonEmpty             Reason = "empty"
	ReasonMultiStatement    Reason = "multi_statement"
	ReasonNotSelect         Reason = "not_select"
	ReasonForbiddenKeyword  Reason = "forbidden_keyword"
	ReasonUnknownIdentifier Reason = "unknown_identifier"
	ReasonUnboundedScan     Reason = "unbounded_scan"
)

// RejectionError is a safety rejection, distinct from execution-time errors.
type RejectionError struct {
	Reason Reason
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("safety rejection (%s): %s", e.Reason, e.Detail)
}

func reject(reason Reason, format string, args ...any) error {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ValidatedQuery is SQL that passed the full validation pipeline. The zero
// value is unusable and only the validator's accept path constructs a live
// one, so holding a non-empty ValidatedQuery is proof of validation.
type ValidatedQuery struct {
	sql string
}

func (q ValidatedQuery) SQL() string {
	return q.sql
}

func (q ValidatedQuery) IsZero() bool {
	return q.sql == ""
}
