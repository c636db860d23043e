package optimizer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/promptforge/internal/testutil"
	"github.com/XiaoConstantine/promptforge/pkg/cache"
	"github.com/XiaoConstantine/promptforge/pkg/core"
	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/pipeline"
)

const testGenerationResponse = `Here is my analysis.

PROMPT:
Summarize the code change in plain language.

ADDITIONAL_EXAMPLES:
Input: Fix typo
Output: Corrects a spelling mistake.

DESIGN_PRINCIPLES:
Keep instructions short.`

const testImprovementResponse = `ALTERNATIVE 1: [Focus: clarity]
Summarize the change in one sentence.

ALTERNATIVE 2: [Focus: specificity]
Summarize the code change for reviewers, naming every file touched.`

// matchPrompt matches Generate calls whose prompt contains the given marker,
// letting each stage answer differently.
func matchPrompt(marker string) interface{} {
	return mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, marker)
	})
}

func validRequest() Request {
	return Request{
		Role:     "software developers",
		Examples: []Example{{Input: "Write a function", Output: "def example_function():"}},
	}
}

func TestWorkflowOptimize(t *testing.T) {
	mockLLM := new(testutil.MockLLM)
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt engineering guide"), mock.Anything).Return("Guide for the audience.", nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("Based on these"), mock.Anything).Return(testGenerationResponse, nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt evaluation guide"), mock.Anything).Return("Evaluation framework.", nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("Evaluate this prompt"), mock.Anything).Return("Strong prompt. Overall score 8/10.", nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("generate 3 improved"), mock.Anything).Return(testImprovementResponse, nil)

	wf, err := NewWorkflow(mockLLM)
	require.NoError(t, err)

	result, err := wf.Optimize(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, StepCompleted, result.Step)
	assert.True(t, result.Completed())
	assert.Equal(t, "mock", result.Provider)
	assert.Equal(t, "Summarize the code change in plain language.", result.GeneratedPrompt)
	require.Len(t, result.Evaluations, 1)
	assert.Equal(t, "Strong prompt. Overall score 8/10.", result.Evaluations[0])
	require.Len(t, result.Alternatives, 2)
	assert.Equal(t, "Summarize the code change for reviewers, naming every file touched.", result.FinalPrompt)

	require.Len(t, result.Trace, 6)
	for i, name := range StageNames() {
		assert.Equal(t, name, result.Trace[i].Stage)
		assert.Equal(t, pipeline.OutcomeApplied, result.Trace[i].Outcome)
	}
	mockLLM.AssertExpectations(t)
}

func TestWorkflowGuideFallbackContinues(t *testing.T) {
	mockLLM := new(testutil.MockLLM)
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt engineering guide"), mock.Anything).Return(nil, fmt.Errorf("model unavailable"))
	mockLLM.On("Generate", mock.Anything, matchPrompt("Based on these"), mock.Anything).Return(testGenerationResponse, nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt evaluation guide"), mock.Anything).Return("Evaluation framework.", nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("Evaluate this prompt"), mock.Anything).Return("Solid overall.", nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("generate 3 improved"), mock.Anything).Return(testImprovementResponse, nil)

	wf, err := NewWorkflow(mockLLM, WithStageRetry(nil))
	require.NoError(t, err)

	var outcomes []string
	result, err := wf.OptimizeWithProgress(context.Background(), validRequest(),
		func(_ State, r pipeline.StageResult) {
			outcomes = append(outcomes, fmt.Sprintf("%s:%s", r.Stage, r.Outcome))
		})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"generate_guide:fell_back",
		"generate_prompt:applied",
		"generate_eval_guide:applied",
		"evaluate_prompt:applied",
		"improve_prompts:applied",
		"finalize:applied",
	}, outcomes)
	assert.True(t, result.Completed())

	require.Len(t, result.Trace, 6)
	assert.Equal(t, pipeline.OutcomeFellBack, result.Trace[0].Outcome)
	assert.Contains(t, result.Trace[0].Error, "model unavailable")
}

func TestWorkflowFullDegradation(t *testing.T) {
	mockLLM := new(testutil.MockLLM)
	mockLLM.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(nil, fmt.Errorf("provider outage"))

	wf, err := NewWorkflow(mockLLM, WithStageRetry(nil))
	require.NoError(t, err)

	result, err := wf.Optimize(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, defaultPrompt, result.GeneratedPrompt)
	assert.Equal(t, []string{fallbackEvaluation}, result.Evaluations)
	assert.Equal(t, []string{defaultPrompt}, result.Alternatives)
	assert.Equal(t, defaultPrompt, result.FinalPrompt)
	assert.Equal(t, StepCompleted, result.Step)
}

func TestWorkflowUnparsableGenerationCascades(t *testing.T) {
	mockLLM := new(testutil.MockLLM)
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt engineering guide"), mock.Anything).Return("Guide.", nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("Based on these"), mock.Anything).Return("The model ignored the format.", nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt evaluation guide"), mock.Anything).Return("Framework.", nil)

	wf, err := NewWorkflow(mockLLM, WithStageRetry(nil))
	require.NoError(t, err)

	result, err := wf.Optimize(context.Background(), validRequest())
	require.NoError(t, err)

	// With no PROMPT: section the evaluation and improvement stages cannot
	// run, and the finalize default stands in for the blank recommendation.
	assert.Equal(t, "", result.GeneratedPrompt)
	assert.Equal(t, []string{fallbackEvaluation}, result.Evaluations)
	assert.Empty(t, result.Alternatives)
	assert.Equal(t, defaultPrompt, result.FinalPrompt)
	assert.Equal(t, StepCompleted, result.Step)
}

func TestWorkflowRetriesTransientFailures(t *testing.T) {
	mockLLM := new(testutil.MockLLM)
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt engineering guide"), mock.Anything).
		Return(nil, fmt.Errorf("transient")).Once()
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt engineering guide"), mock.Anything).
		Return("Guide after retry.", nil).Once()
	mockLLM.On("Generate", mock.Anything, matchPrompt("Based on these"), mock.Anything).Return(testGenerationResponse, nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt evaluation guide"), mock.Anything).Return("Framework.", nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("Evaluate this prompt"), mock.Anything).Return("Fine.", nil)
	mockLLM.On("Generate", mock.Anything, matchPrompt("generate 3 improved"), mock.Anything).Return(testImprovementResponse, nil)

	wf, err := NewWorkflow(mockLLM, WithStageRetry(&pipeline.RetryConfig{
		MaxAttempts:       3,
		BackoffMultiplier: 2,
		BackoffBase:       time.Millisecond,
	}))
	require.NoError(t, err)

	var guideResult pipeline.StageResult
	result, err := wf.OptimizeWithProgress(context.Background(), validRequest(),
		func(_ State, r pipeline.StageResult) {
			if r.Stage == StageGenerateGuide {
				guideResult = r
			}
		})
	require.NoError(t, err)

	assert.Equal(t, pipeline.OutcomeApplied, guideResult.Outcome)
	assert.Equal(t, 2, guideResult.Attempts)
	assert.True(t, result.Completed())
	mockLLM.AssertExpectations(t)
}

func TestWorkflowAggregatesUsage(t *testing.T) {
	mockLLM := new(testutil.MockLLM)
	mockLLM.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(&core.LLMResponse{
		Content: "PROMPT:\nGenerated prompt text.\nADDITIONAL_EXAMPLES:\nnone",
		Usage:   &core.TokenInfo{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil)

	wf, err := NewWorkflow(mockLLM)
	require.NoError(t, err)

	result, err := wf.Optimize(context.Background(), validRequest())
	require.NoError(t, err)

	// Five stages call the model once each; finalize does not.
	require.NotNil(t, result.Usage)
	assert.Equal(t, 50, result.Usage.PromptTokens)
	assert.Equal(t, 25, result.Usage.CompletionTokens)
	assert.Equal(t, 75, result.Usage.TotalTokens)
}

func TestWorkflowValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		message string
	}{
		{
			name:    "blank role",
			req:     Request{Role: "  ", Examples: []Example{{Input: "in", Output: "out"}}},
			message: "role cannot be empty",
		},
		{
			name:    "no examples",
			req:     Request{Role: "software developers"},
			message: "at least one example is required",
		},
		{
			name: "blank example field",
			req: Request{
				Role:     "software developers",
				Examples: []Example{{Input: "in", Output: "out"}, {Input: "in", Output: "   "}},
			},
			message: "example 2 input and output cannot be empty",
		},
	}

	mockLLM := new(testutil.MockLLM)
	wf, err := NewWorkflow(mockLLM)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wf.Optimize(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, errors.ValidationFailed, errors.Code(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestWorkflowCancellation(t *testing.T) {
	mockLLM := new(testutil.MockLLM)
	wf, err := NewWorkflow(mockLLM)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = wf.Optimize(ctx, validRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewWorkflowRequiresLLM(t *testing.T) {
	_, err := NewWorkflow(nil)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestWorkflowOptions(t *testing.T) {
	mockLLM := new(testutil.MockLLM)

	wf, err := NewWorkflow(mockLLM,
		WithTemperature(0.2),
		WithMaxTokens(512),
		WithCallTimeout(30*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 0.2, wf.temperature)
	assert.Equal(t, 512, wf.maxTokens)
	assert.Equal(t, 30*time.Second, wf.callTimeout)
}

func TestWorkflowResponseCache(t *testing.T) {
	mockLLM := new(testutil.MockLLM)
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt engineering guide"), mock.Anything).Return("Guide for the audience.", nil).Once()
	mockLLM.On("Generate", mock.Anything, matchPrompt("Based on these"), mock.Anything).Return(testGenerationResponse, nil).Once()
	mockLLM.On("Generate", mock.Anything, matchPrompt("prompt evaluation guide"), mock.Anything).Return("Evaluation framework.", nil).Once()
	mockLLM.On("Generate", mock.Anything, matchPrompt("Evaluate this prompt"), mock.Anything).Return("Strong prompt. Overall score 8/10.", nil).Once()
	mockLLM.On("Generate", mock.Anything, matchPrompt("generate 3 improved"), mock.Anything).Return(testImprovementResponse, nil).Once()

	respCache := cache.NewMemory(cache.MemoryConfig{})
	defer respCache.Close()

	wf, err := NewWorkflow(mockLLM, WithStageRetry(nil), WithResponseCache(respCache, time.Minute))
	require.NoError(t, err)

	first, err := wf.Optimize(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, first.Completed())

	// The second identical run is served entirely from the cache; the Once
	// expectations above fail if the model is called again.
	second, err := wf.Optimize(context.Background(), validRequest())
	require.NoError(t, err)
	require.True(t, second.Completed())
	assert.Equal(t, first.FinalPrompt, second.FinalPrompt)
	assert.GreaterOrEqual(t, respCache.Stats().Hits, int64(5))

	mockLLM.AssertExpectations(t)
}

func TestWorkflowCallTimeoutBoundsStages(t *testing.T) {
	mockLLM := new(testutil.MockLLM)
	mockLLM.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(nil, context.DeadlineExceeded)

	wf, err := NewWorkflow(mockLLM, WithStageRetry(nil), WithCallTimeout(5*time.Millisecond))
	require.NoError(t, err)

	// Every stage times out and falls back, so the run still completes
	// with degraded output.
	result, err := wf.Optimize(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, result.Completed())
	assert.Equal(t, defaultPrompt, result.GeneratedPrompt)
}
