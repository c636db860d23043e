package optimizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/XiaoConstantine/promptforge/pkg/core"
	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/pipeline"
)

// Step identifies how far an optimization run has progressed and how its
// most recent stage concluded.
type Step string

const (
	StepStarted               Step = "started"
	StepGuideGenerated        Step = "guide_generated"
	StepGuideSkipped          Step = "guide_skipped"
	StepPromptGenerated       Step = "prompt_generated"
	StepPromptFallback        Step = "prompt_fallback"
	StepEvalGuideGenerated    Step = "evaluation_guide_generated"
	StepEvalGuideSkipped      Step = "eval_guide_skipped"
	StepPromptEvaluated       Step = "prompt_evaluated"
	StepEvaluationFallback    Step = "evaluation_fallback"
	StepAlternativesGenerated Step = "alternatives_generated"
	StepImprovementFallback   Step = "improvement_fallback"
	StepCompleted             Step = "completed"
)

// Example pairs an input with the output the optimized prompt should produce
// for it.
type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Message is one entry in the model transcript accumulated during a run.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request describes one prompt optimization job.
type Request struct {
	Role                   string    `json:"role"`
	Examples               []Example `json:"examples"`
	BasicRequirements      string    `json:"basic_requirements,omitempty"`
	AdditionalRequirements string    `json:"additional_requirements,omitempty"`
	Provider               string    `json:"model_type,omitempty"`
}

// Validate reports the first problem that would prevent the workflow from
// running.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Role) == "" {
		return errors.New(errors.ValidationFailed, "role cannot be empty")
	}
	if len(r.Examples) == 0 {
		return errors.New(errors.ValidationFailed, "at least one example is required")
	}
	for i, ex := range r.Examples {
		if strings.TrimSpace(ex.Input) == "" || strings.TrimSpace(ex.Output) == "" {
			return errors.WithFields(
				errors.New(errors.ValidationFailed, fmt.Sprintf("example %d input and output cannot be empty", i+1)),
				errors.Fields{"example": i + 1})
		}
	}
	return nil
}

// State is the accumulated workflow state threaded through the stages. Each
// stage reads the fields written by its predecessors and contributes its own.
type State struct {
	Role                   string
	BasicRequirements      string
	AdditionalRequirements string
	Examples               []Example
	Transcript             []Message
	CurrentPrompt          string
	Evaluations            []string
	Alternatives           []string
	FinalPrompt            string
	Step                   Step
	Provider               string
	Usage                  core.TokenInfo
}

// Result is the externally visible outcome of a run.
type Result struct {
	Role              string          `json:"role"`
	Provider          string          `json:"model_type"`
	BasicRequirements string          `json:"basic_requirements,omitempty"`
	Examples          []Example       `json:"original_examples"`
	GeneratedPrompt   string          `json:"generated_prompt"`
	Evaluations       []string        `json:"evaluations"`
	Alternatives      []string        `json:"alternative_prompts"`
	FinalPrompt       string          `json:"final_recommendation"`
	Step              Step            `json:"step"`
	Trace             []StageTrace    `json:"trace,omitempty"`
	Usage             *core.TokenInfo `json:"usage,omitempty"`
}

// StageTrace records how one stage of the run concluded.
type StageTrace struct {
	Stage    string           `json:"stage"`
	Outcome  pipeline.Outcome `json:"outcome"`
	Attempts int              `json:"attempts"`
	Duration time.Duration    `json:"duration"`
	Error    string           `json:"error,omitempty"`
}

// Completed reports whether the run made it through the finalize stage.
func (r *Result) Completed() bool {
	return r != nil && r.Step == StepCompleted
}
