package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
)

// Update is a partial state update produced by a stage. A nil Update leaves
// the accumulated state unchanged.
type Update[S any] func(S) S

// Stage represents a single unit of work in a pipeline over state S.
type Stage[S any] struct {
	// Name uniquely identifies this stage within the pipeline
	Name string

	// Run executes the stage against the accumulated state and returns a
	// partial update to merge into it
	Run func(ctx context.Context, state S) (Update[S], error)

	// Fallback, when set, converts a Run failure into a degraded update so
	// the pipeline continues instead of aborting
	Fallback func(state S, err error) Update[S]

	// Retry specifies how to handle transient Run failures
	Retry *RetryConfig
}

// RetryConfig defines how to handle stage failures.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first
	MaxAttempts int

	// BackoffMultiplier determines how the wait grows between attempts
	BackoffMultiplier float64

	// BackoffBase is the wait after the first failure. Zero means one second.
	BackoffBase time.Duration
}

// Outcome enumerates how a stage concluded.
type Outcome string

const (
	// OutcomeApplied means Run succeeded and its update was merged.
	OutcomeApplied Outcome = "applied"

	// OutcomeFellBack means Run failed and the fallback update was merged.
	OutcomeFellBack Outcome = "fell_back"

	// OutcomeFailed means Run failed with no fallback and the pipeline aborted.
	OutcomeFailed Outcome = "failed"
)

// StageResult records a single stage execution.
type StageResult struct {
	Stage    string
	Outcome  Outcome
	Err      error // the Run error for fell_back and failed outcomes
	Attempts int
	Duration time.Duration
}

// run executes the stage with retries, honoring context cancellation during
// backoff waits. It reports how many attempts were made.
func (s *Stage[S]) run(ctx context.Context, state S) (Update[S], int, error) {
	attempts := 1
	multiplier := 1.0
	base := time.Second
	if s.Retry != nil {
		if s.Retry.MaxAttempts > 0 {
			attempts = s.Retry.MaxAttempts
		}
		if s.Retry.BackoffMultiplier > 0 {
			multiplier = s.Retry.BackoffMultiplier
		}
		if s.Retry.BackoffBase > 0 {
			base = s.Retry.BackoffBase
		}
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := errors.CheckContext(ctx, "stage "+s.Name); err != nil {
			return nil, attempt + 1, err
		}

		update, err := s.Run(ctx, state)
		if err == nil {
			return update, attempt + 1, nil
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}

		// Wait before retrying, with exponential backoff
		backoff := time.Duration(float64(base) * math.Pow(multiplier, float64(attempt)))
		select {
		case <-ctx.Done():
			return nil, attempt + 1, errors.Wrap(ctx.Err(), errors.Canceled, "context canceled during retry backoff")
		case <-time.After(backoff):
		}
	}

	return nil, attempts, lastErr
}
