// Package genai defines the text generation boundary. The generator is an
// opaque external capability: prompt in, raw candidate text out. It is never
// assumed deterministic and never trusted; all safety lives downstream in the
// validator.
package genai

import (
	"context"
	"errors"
)

// Sentinel failure kinds. Callers branch with errors.Is; every kind counts
// toward the request's attempt cap but none is a safety rejection.
var (
	ErrTimeout     = errors.New("genai: generation timed out")
	ErrRateLimited = errors.New("genai: rate limited")
	ErrService     = errors.New("genai: service error")
)

type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type Response struct {
	// Text is the raw candidate output. It may be malformed, fenced in
	// markdown, truncated or contain multiple statements; extraction and
	// validation are the safety validator's job.
	Text string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
