// Package optimizer implements the staged prompt optimization workflow: a
// model drafts a prompt from input/output examples, critiques the draft, and
// proposes improved alternatives, with degraded defaults substituted for
// stages that fail.
package optimizer

import (
	"context"
	"strings"
	"time"

	"github.com/XiaoConstantine/promptforge/pkg/cache"
	"github.com/XiaoConstantine/promptforge/pkg/core"
	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/pipeline"
)

// Stage names, in execution order.
const (
	StageGenerateGuide     = "generate_guide"
	StageGeneratePrompt    = "generate_prompt"
	StageGenerateEvalGuide = "generate_eval_guide"
	StageEvaluatePrompt    = "evaluate_prompt"
	StageImprovePrompts    = "improve_prompts"
	StageFinalize          = "finalize"
)

const (
	workflowName       = "prompt_optimization"
	defaultTemperature = 0.7
)

// StageNames returns the stage sequence a run executes.
func StageNames() []string {
	return []string{
		StageGenerateGuide,
		StageGeneratePrompt,
		StageGenerateEvalGuide,
		StageEvaluatePrompt,
		StageImprovePrompts,
		StageFinalize,
	}
}

// Workflow drives the six stage prompt optimization pipeline against a
// single model. A Workflow is safe for concurrent use.
type Workflow struct {
	llm         core.LLM
	selector    Selector
	retry       *pipeline.RetryConfig
	temperature float64
	maxTokens   int
	callTimeout time.Duration
	respCache   cache.Cache
	cacheTTL    time.Duration
}

type WorkflowOption func(*Workflow)

// WithSelector overrides the strategy the finalize stage uses to pick the
// final recommendation.
func WithSelector(s Selector) WorkflowOption {
	return func(w *Workflow) { w.selector = s }
}

// WithStageRetry overrides the per-stage retry policy. Passing nil disables
// retries so every stage gets a single attempt.
func WithStageRetry(rc *pipeline.RetryConfig) WorkflowOption {
	return func(w *Workflow) { w.retry = rc }
}

// WithTemperature overrides the sampling temperature used for every stage.
func WithTemperature(t float64) WorkflowOption {
	return func(w *Workflow) { w.temperature = t }
}

// WithMaxTokens caps the tokens generated per stage. Zero leaves the
// provider's default in place.
func WithMaxTokens(n int) WorkflowOption {
	return func(w *Workflow) { w.maxTokens = n }
}

// WithCallTimeout bounds each model call. Zero disables the bound, leaving
// only the caller's context deadline.
func WithCallTimeout(d time.Duration) WorkflowOption {
	return func(w *Workflow) { w.callTimeout = d }
}

// WithResponseCache serves repeated identical stage calls from c instead of
// the model. Entries are kept for ttl; zero keeps them until evicted.
func WithResponseCache(c cache.Cache, ttl time.Duration) WorkflowOption {
	return func(w *Workflow) {
		w.respCache = c
		w.cacheTTL = ttl
	}
}

func NewWorkflow(llm core.LLM, opts ...WorkflowOption) (*Workflow, error) {
	if llm == nil {
		return nil, errors.New(errors.InvalidInput, "workflow requires an LLM")
	}
	w := &Workflow{
		llm:         llm,
		selector:    LongestSelector{},
		retry:       &pipeline.RetryConfig{MaxAttempts: 3, BackoffMultiplier: 2},
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.respCache != nil {
		w.llm = cache.Wrap(w.llm, w.respCache, w.cacheTTL)
	}
	return w, nil
}

// Optimize validates req and runs the full pipeline for it.
func (w *Workflow) Optimize(ctx context.Context, req Request) (*Result, error) {
	return w.optimize(ctx, req, nil)
}

// OptimizeWithProgress behaves like Optimize and additionally reports each
// stage outcome to progress as the run advances.
func (w *Workflow) OptimizeWithProgress(ctx context.Context, req Request, progress pipeline.Observer[State]) (*Result, error) {
	return w.optimize(ctx, req, progress)
}

func (w *Workflow) optimize(ctx context.Context, req Request, progress pipeline.Observer[State]) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// The pipeline is rebuilt per run so concurrent runs can carry their
	// own observers.
	pipe := pipeline.New[State](workflowName).
		MustAddStage(w.guideStage()).
		MustAddStage(w.promptStage()).
		MustAddStage(w.evalGuideStage()).
		MustAddStage(w.evaluateStage()).
		MustAddStage(w.improveStage()).
		MustAddStage(w.finalizeStage())
	if progress != nil {
		pipe.Observe(progress)
	}

	initial := State{
		Role:                   strings.TrimSpace(req.Role),
		BasicRequirements:      strings.TrimSpace(req.BasicRequirements),
		AdditionalRequirements: strings.TrimSpace(req.AdditionalRequirements),
		Examples:               req.Examples,
		Step:                   StepStarted,
		Provider:               w.llm.ProviderName(),
	}

	final, trace, err := pipe.Execute(ctx, initial)
	if err != nil {
		return nil, errors.Wrap(err, errors.PipelineExecutionFailed, "prompt optimization workflow failed")
	}
	res := resultFromState(final)
	res.Trace = traceFromPipeline(trace)
	return res, nil
}

func (w *Workflow) generate(ctx context.Context, prompt string) (*core.LLMResponse, error) {
	if w.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.callTimeout)
		defer cancel()
	}
	opts := []core.GenerateOption{core.WithTemperature(w.temperature)}
	if w.maxTokens > 0 {
		opts = append(opts, core.WithMaxTokens(w.maxTokens))
	}
	return w.llm.Generate(ctx, prompt, opts...)
}

func (w *Workflow) guideStage() pipeline.Stage[State] {
	return pipeline.Stage[State]{
		Name:  StageGenerateGuide,
		Retry: w.retry,
		Run: func(ctx context.Context, s State) (pipeline.Update[State], error) {
			if s.Role == "" {
				return nil, errors.New(errors.InvalidPipelineState, "role is required to generate a prompt engineering guide")
			}
			resp, err := w.generate(ctx, guidePrompt(s.Role))
			if err != nil {
				return nil, errors.Wrap(err, errors.LLMGenerationFailed, "failed to generate prompt engineering guide")
			}
			return func(s State) State {
				s.Transcript = append(s.Transcript, Message{Role: RoleAssistant, Content: resp.Content})
				s.Usage.Add(resp.Usage)
				s.Step = StepGuideGenerated
				return s
			}, nil
		},
		Fallback: func(State, error) pipeline.Update[State] {
			return func(s State) State {
				s.Step = StepGuideSkipped
				return s
			}
		},
	}
}

func (w *Workflow) promptStage() pipeline.Stage[State] {
	return pipeline.Stage[State]{
		Name:  StageGeneratePrompt,
		Retry: w.retry,
		Run: func(ctx context.Context, s State) (pipeline.Update[State], error) {
			if len(s.Examples) == 0 {
				return nil, errors.New(errors.InvalidPipelineState, "at least one example is required to generate a prompt")
			}
			resp, err := w.generate(ctx, generationPrompt(s))
			if err != nil {
				return nil, errors.Wrap(err, errors.LLMGenerationFailed, "failed to generate prompt from examples")
			}
			current := ExtractPromptSection(resp.Content)
			return func(s State) State {
				s.Transcript = append(s.Transcript, Message{Role: RoleAssistant, Content: resp.Content})
				s.Usage.Add(resp.Usage)
				s.CurrentPrompt = current
				s.Step = StepPromptGenerated
				return s
			}, nil
		},
		Fallback: func(State, error) pipeline.Update[State] {
			return func(s State) State {
				s.CurrentPrompt = defaultPrompt
				s.Step = StepPromptFallback
				return s
			}
		},
	}
}

func (w *Workflow) evalGuideStage() pipeline.Stage[State] {
	return pipeline.Stage[State]{
		Name:  StageGenerateEvalGuide,
		Retry: w.retry,
		Run: func(ctx context.Context, s State) (pipeline.Update[State], error) {
			if s.Role == "" {
				return nil, errors.New(errors.InvalidPipelineState, "role is required to generate an evaluation guide")
			}
			resp, err := w.generate(ctx, evaluationGuidePrompt(s.Role))
			if err != nil {
				return nil, errors.Wrap(err, errors.LLMGenerationFailed, "failed to generate evaluation guide")
			}
			return func(s State) State {
				s.Transcript = append(s.Transcript, Message{Role: RoleAssistant, Content: resp.Content})
				s.Usage.Add(resp.Usage)
				s.Step = StepEvalGuideGenerated
				return s
			}, nil
		},
		Fallback: func(State, error) pipeline.Update[State] {
			return func(s State) State {
				s.Step = StepEvalGuideSkipped
				return s
			}
		},
	}
}

func (w *Workflow) evaluateStage() pipeline.Stage[State] {
	return pipeline.Stage[State]{
		Name:  StageEvaluatePrompt,
		Retry: w.retry,
		Run: func(ctx context.Context, s State) (pipeline.Update[State], error) {
			if s.CurrentPrompt == "" {
				return nil, errors.New(errors.InvalidPipelineState, "a current prompt is required for evaluation")
			}
			resp, err := w.generate(ctx, evaluationPrompt(s))
			if err != nil {
				return nil, errors.Wrap(err, errors.LLMGenerationFailed, "failed to evaluate prompt")
			}
			return func(s State) State {
				s.Transcript = append(s.Transcript, Message{Role: RoleAssistant, Content: resp.Content})
				s.Usage.Add(resp.Usage)
				s.Evaluations = append(s.Evaluations, resp.Content)
				s.Step = StepPromptEvaluated
				return s
			}, nil
		},
		Fallback: func(State, error) pipeline.Update[State] {
			return func(s State) State {
				s.Evaluations = append(s.Evaluations, fallbackEvaluation)
				s.Step = StepEvaluationFallback
				return s
			}
		},
	}
}

func (w *Workflow) improveStage() pipeline.Stage[State] {
	return pipeline.Stage[State]{
		Name:  StageImprovePrompts,
		Retry: w.retry,
		Run: func(ctx context.Context, s State) (pipeline.Update[State], error) {
			if s.CurrentPrompt == "" {
				return nil, errors.New(errors.InvalidPipelineState, "a current prompt is required to generate improvements")
			}
			if len(s.Evaluations) == 0 {
				return nil, errors.New(errors.InvalidPipelineState, "evaluation feedback is required to generate improvements")
			}
			resp, err := w.generate(ctx, improvementPrompt(s))
			if err != nil {
				return nil, errors.Wrap(err, errors.LLMGenerationFailed, "failed to generate improved prompts")
			}
			alts := ExtractAlternatives(resp.Content)
			if len(alts) == 0 {
				alts = []string{s.CurrentPrompt}
			}
			return func(s State) State {
				s.Transcript = append(s.Transcript, Message{Role: RoleAssistant, Content: resp.Content})
				s.Usage.Add(resp.Usage)
				s.Alternatives = alts
				s.Step = StepAlternativesGenerated
				return s
			}, nil
		},
		Fallback: func(State, error) pipeline.Update[State] {
			return func(s State) State {
				if s.CurrentPrompt != "" {
					s.Alternatives = []string{s.CurrentPrompt}
				}
				s.Step = StepImprovementFallback
				return s
			}
		},
	}
}

func (w *Workflow) finalizeStage() pipeline.Stage[State] {
	return pipeline.Stage[State]{
		Name: StageFinalize,
		Run: func(ctx context.Context, s State) (pipeline.Update[State], error) {
			final, err := w.selector.Select(ctx, s)
			if err != nil {
				return nil, errors.Wrap(err, errors.LLMGenerationFailed, "failed to select the final prompt")
			}
			if strings.TrimSpace(final) == "" {
				final = defaultPrompt
			}
			return func(s State) State {
				s.FinalPrompt = final
				s.Step = StepCompleted
				return s
			}, nil
		},
	}
}

func traceFromPipeline(trace []pipeline.StageResult) []StageTrace {
	if len(trace) == 0 {
		return nil
	}
	out := make([]StageTrace, 0, len(trace))
	for _, r := range trace {
		st := StageTrace{
			Stage:    r.Stage,
			Outcome:  r.Outcome,
			Attempts: r.Attempts,
			Duration: r.Duration,
		}
		if r.Err != nil {
			st.Error = r.Err.Error()
		}
		out = append(out, st)
	}
	return out
}

func resultFromState(s State) *Result {
	res := &Result{
		Role:              s.Role,
		Provider:          s.Provider,
		BasicRequirements: s.BasicRequirements,
		Examples:          s.Examples,
		GeneratedPrompt:   s.CurrentPrompt,
		Evaluations:       s.Evaluations,
		Alternatives:      s.Alternatives,
		FinalPrompt:       s.FinalPrompt,
		Step:              s.Step,
	}
	if s.Usage != (core.TokenInfo{}) {
		usage := s.Usage
		res.Usage = &usage
	}
	return res
}
