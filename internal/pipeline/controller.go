package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/claimscope/claimscope/internal/genai"
	"github.com/claimscope/claimscope/internal/observability"
	"github.com/claimscope/claimscope/internal/prompt"
	"github.com/claimscope/claimscope/internal/safety"
	"github.com/claimscope/claimscope/internal/schema"
)

const (
	defaultMaxAttempts = 3
	maxAttemptCap      = 10
)

// ControllerConfig tunes the generate-validate loop.
type ControllerConfig struct {
	MaxAttempts int
	Temperature float64
	MaxTokens   int
	Examples    []prompt.Example
}

// Controller runs the bounded generate-validate loop for one question. Every
// attempt, including generator failures, counts toward the cap; validation
// rejections feed the next prompt's correction section.
type Controller struct {
	generator   genai.Generator
	validator   *safety.Validator
	logger      *slog.Logger
	examples    []prompt.Example
	maxAttempts int
	temperature float64
	maxTokens   int
}

func NewController(generator genai.Generator, validator *safety.Validator, logger *slog.Logger, cfg ControllerConfig) *Controller {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = defaultMaxAttempts
	}
	if attempts > maxAttemptCap {
		attempts = maxAttemptCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		generator:   generator,
		validator:   validator,
		logger:      logger,
		examples:    cfg.Examples,
		maxAttempts: attempts,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Run produces a validated query or exhausts the attempt cap. The returned
// attempt history is complete for every exit path, including context
// cancellation mid-loop.
func (c *Controller) Run(ctx context.Context, question string, selection schema.Selection) (safety.ValidatedQuery, []Attempt, error) {
	attempts := make([]Attempt, 0, c.maxAttempts)
	var rejected []prompt.RejectedAttempt

	for index := 1; index <= c.maxAttempts; index++ {
		if err := ctx.Err(); err != nil {
			return safety.ValidatedQuery{}, attempts, err
		}

		composed := prompt.Compose(question, selection, c.examples, rejected)

		start := time.Now()
		response, err := c.generator.Generate(ctx, genai.Request{
			Prompt:      composed,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return safety.ValidatedQuery{}, attempts, ctx.Err()
			}
			observability.ObserveGenerationAttempt(string(OutcomeGenerationFailure), time.Since(start))
			attempts = append(attempts, Attempt{
				Index:   index,
				Outcome: OutcomeGenerationFailure,
				Detail:  err.Error(),
			})
			c.logger.Warn("generation attempt failed",
				slog.Int("attempt", index),
				slog.String("error", err.Error()),
			)
			continue
		}

		query, err := c.validator.Validate(response.Text, selection)
		if err != nil {
			var rejection *safety.RejectionError
			if !errors.As(err, &rejection) {
				return safety.ValidatedQuery{}, attempts, err
			}
			observability.ObserveGenerationAttempt(string(OutcomeRejected), time.Since(start))
			observability.ObserveSafetyRejection(string(rejection.Reason))
			attempts = append(attempts, Attempt{
				Index:   index,
				Outcome: OutcomeRejected,
				SQL:     response.Text,
				Reason:  rejection.Reason,
				Detail:  rejection.Detail,
			})
			rejected = append(rejected, prompt.RejectedAttempt{
				SQL:    response.Text,
				Reason: rejection.Detail,
			})
			c.logger.Info("candidate rejected",
				slog.Int("attempt", index),
				slog.String("reason", string(rejection.Reason)),
			)
			continue
		}

		observability.ObserveGenerationAttempt(string(OutcomeAccepted), time.Since(start))
		attempts = append(attempts, Attempt{
			Index:   index,
			Outcome: OutcomeAccepted,
			SQL:     query.SQL(),
		})
		return query, attempts, nil
	}

	observability.IncrementRetryExhausted()
	c.logger.Warn("retry attempts exhausted", slog.Int("attempts", len(attempts)))
	return safety.ValidatedQuery{}, attempts, exhaustedError(c.maxAttempts)
}
