// Package pipeline drives a question through selection, prompt composition,
// generation, validation and, on accept, execution and report derivation.
// Attempt sequencing and the retry cap live here; each stage keeps its own
// rules.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/claimscope/claimscope/internal/safety"
	"github.com/claimscope/claimscope/internal/schema"
)

// ErrRetryExhausted reports that every attempt up to the cap was rejected or
// failed. The attempt history travels alongside it on the result.
var ErrRetryExhausted = errors.New("pipeline: retry attempts exhausted")

// ErrEmptyQuestion rejects requests before any attempt is spent.
var ErrEmptyQuestion = errors.New("pipeline: question is required")

// AttemptOutcome classifies one generation attempt.
type AttemptOutcome string

const (
	OutcomeAccepted          AttemptOutcome = "accepted"
	OutcomeRejected          AttemptOutcome = "rejected"
	OutcomeGenerationFailure AttemptOutcome = "generation_failure"
)

// Attempt is one entry in a request's attempt history. Index starts at 1.
type Attempt struct {
	Index   int            `json:"index"`
	Outcome AttemptOutcome `json:"outcome"`
	SQL     string         `json:"sql,omitempty"`
	Reason  safety.Reason  `json:"reason,omitempty"`
	Detail  string         `json:"detail,omitempty"`
}

// GenerateResult is the output of the generation phase: the accepted query
// plus the complete attempt history that produced it.
type GenerateResult struct {
	RequestID string
	Query     safety.ValidatedQuery
	Attempts  []Attempt
	Selection schema.Selection
	// CatalogStale reports that the schema context came from an expired epoch
	// because the metadata source was unreachable.
	CatalogStale bool
}

// AcceptedAttempts returns how many attempts the request consumed.
func (r GenerateResult) AttemptCount() int {
	return len(r.Attempts)
}

func exhaustedError(cap int) error {
	return fmt.Errorf("%w after %d attempts", ErrRetryExhausted, cap)
}
