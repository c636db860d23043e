package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
)

// docState is a small accumulated state used throughout these tests.
type docState struct {
	Draft    string
	Review   string
	Finished bool
}

func draftStage(text string) Stage[docState] {
	return Stage[docState]{
		Name: "draft",
		Run: func(ctx context.Context, state docState) (Update[docState], error) {
			return func(s docState) docState {
				s.Draft = text
				return s
			}, nil
		},
	}
}

func TestPipelineFold(t *testing.T) {
	p := New[docState]("doc").
		MustAddStage(draftStage("first draft")).
		MustAddStage(Stage[docState]{
			Name: "review",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				// Later stages observe earlier updates.
				review := "reviewed: " + state.Draft
				return func(s docState) docState {
					s.Review = review
					return s
				}, nil
			},
		}).
		MustAddStage(Stage[docState]{
			Name: "finish",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				return func(s docState) docState {
					s.Finished = true
					return s
				}, nil
			},
		})

	state, trace, err := p.Execute(context.Background(), docState{})
	require.NoError(t, err)

	assert.Equal(t, "first draft", state.Draft)
	assert.Equal(t, "reviewed: first draft", state.Review)
	assert.True(t, state.Finished)

	require.Len(t, trace, 3)
	assert.Equal(t, []string{"draft", "review", "finish"}, p.Stages())
	for _, result := range trace {
		assert.Equal(t, OutcomeApplied, result.Outcome)
		assert.Equal(t, 1, result.Attempts)
		assert.NoError(t, result.Err)
	}
}

func TestPipelineNilUpdateIsNoop(t *testing.T) {
	p := New[docState]("doc").
		MustAddStage(draftStage("kept")).
		MustAddStage(Stage[docState]{
			Name: "skip",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				return nil, nil
			},
		})

	state, trace, err := p.Execute(context.Background(), docState{})
	require.NoError(t, err)
	assert.Equal(t, "kept", state.Draft)
	assert.Equal(t, OutcomeApplied, trace[1].Outcome)
}

func TestPipelineFallbackContinues(t *testing.T) {
	stageErr := fmt.Errorf("model unavailable")

	p := New[docState]("doc").
		MustAddStage(draftStage("first draft")).
		MustAddStage(Stage[docState]{
			Name: "review",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				return nil, stageErr
			},
			Fallback: func(state docState, err error) Update[docState] {
				return func(s docState) docState {
					s.Review = "default review"
					return s
				}
			},
		}).
		MustAddStage(Stage[docState]{
			Name: "finish",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				return func(s docState) docState {
					s.Finished = true
					return s
				}, nil
			},
		})

	state, trace, err := p.Execute(context.Background(), docState{})
	require.NoError(t, err)

	assert.Equal(t, "default review", state.Review)
	assert.True(t, state.Finished, "stages after a fallback still run")

	require.Len(t, trace, 3)
	assert.Equal(t, OutcomeFellBack, trace[1].Outcome)
	assert.ErrorIs(t, trace[1].Err, stageErr)
}

func TestPipelineAbortsWithoutFallback(t *testing.T) {
	p := New[docState]("doc").
		MustAddStage(draftStage("first draft")).
		MustAddStage(Stage[docState]{
			Name: "review",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				return nil, fmt.Errorf("model unavailable")
			},
		}).
		MustAddStage(Stage[docState]{
			Name: "finish",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				t.Fatal("stage after abort must not run")
				return nil, nil
			},
		})

	state, trace, err := p.Execute(context.Background(), docState{})
	require.Error(t, err)
	assert.Equal(t, errors.StageExecutionFailed, errors.Code(err))

	// Partial state from completed stages is preserved.
	assert.Equal(t, "first draft", state.Draft)
	require.Len(t, trace, 2)
	assert.Equal(t, OutcomeApplied, trace[0].Outcome)
	assert.Equal(t, OutcomeFailed, trace[1].Outcome)
}

func TestPipelineRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0

	p := New[docState]("doc").
		MustAddStage(Stage[docState]{
			Name: "flaky",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				calls++
				if calls < 3 {
					return nil, fmt.Errorf("transient failure %d", calls)
				}
				return func(s docState) docState {
					s.Draft = "eventually"
					return s
				}, nil
			},
			Retry: &RetryConfig{
				MaxAttempts:       3,
				BackoffMultiplier: 2.0,
				BackoffBase:       time.Millisecond,
			},
		})

	state, trace, err := p.Execute(context.Background(), docState{})
	require.NoError(t, err)

	assert.Equal(t, "eventually", state.Draft)
	assert.Equal(t, 3, calls)
	require.Len(t, trace, 1)
	assert.Equal(t, OutcomeApplied, trace[0].Outcome)
	assert.Equal(t, 3, trace[0].Attempts)
}

func TestPipelineRetryExhaustionFallsBack(t *testing.T) {
	calls := 0

	p := New[docState]("doc").
		MustAddStage(Stage[docState]{
			Name: "flaky",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				calls++
				return nil, fmt.Errorf("persistent failure")
			},
			Fallback: func(state docState, err error) Update[docState] {
				return func(s docState) docState {
					s.Draft = "fallback draft"
					return s
				}
			},
			Retry: &RetryConfig{
				MaxAttempts: 2,
				BackoffBase: time.Millisecond,
			},
		})

	state, trace, err := p.Execute(context.Background(), docState{})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, "fallback draft", state.Draft)
	require.Len(t, trace, 1)
	assert.Equal(t, OutcomeFellBack, trace[0].Outcome)
	assert.Equal(t, 2, trace[0].Attempts)
}

func TestPipelineCancellationSkipsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := New[docState]("doc").
		MustAddStage(Stage[docState]{
			Name: "slow",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				cancel()
				return nil, ctx.Err()
			},
			Fallback: func(state docState, err error) Update[docState] {
				t.Fatal("fallback must not run on cancellation")
				return nil
			},
		})

	_, trace, err := p.Execute(ctx, docState{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.Len(t, trace, 1)
	assert.Equal(t, OutcomeFailed, trace[0].Outcome)
}

func TestPipelineCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := New[docState]("doc").
		MustAddStage(Stage[docState]{
			Name: "flaky",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				return nil, fmt.Errorf("transient failure")
			},
			Retry: &RetryConfig{
				MaxAttempts: 2,
				BackoffBase: time.Hour,
			},
		})

	_, _, err := p.Execute(ctx, docState{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, errors.Canceled, errors.Code(err))
}

func TestPipelineObserver(t *testing.T) {
	var seen []string

	p := New[docState]("doc").
		MustAddStage(draftStage("first draft")).
		MustAddStage(Stage[docState]{
			Name: "review",
			Run: func(ctx context.Context, state docState) (Update[docState], error) {
				return nil, fmt.Errorf("boom")
			},
			Fallback: func(state docState, err error) Update[docState] {
				return nil
			},
		})

	p.Observe(func(state docState, result StageResult) {
		seen = append(seen, fmt.Sprintf("%s:%s", result.Stage, result.Outcome))
	})

	_, _, err := p.Execute(context.Background(), docState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"draft:applied", "review:fell_back"}, seen)
}

func TestPipelineConfigurationErrors(t *testing.T) {
	p := New[docState]("doc")

	err := p.AddStage(Stage[docState]{Name: "incomplete"})
	assert.True(t, errors.Is(err, ErrInvalidStage))

	require.NoError(t, p.AddStage(draftStage("x")))
	err = p.AddStage(draftStage("y"))
	assert.True(t, errors.Is(err, ErrDuplicateStage))

	empty := New[docState]("empty")
	_, _, err = empty.Execute(context.Background(), docState{})
	assert.True(t, errors.Is(err, ErrNoStages))
}
