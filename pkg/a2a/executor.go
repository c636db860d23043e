package a2a

import (
	"context"
	"fmt"
	"strings"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/optimizer"
	"github.com/XiaoConstantine/promptforge/pkg/pipeline"
)

// Executor runs one unit of agent work extracted from an inbound message.
// Implementations return the text of the final artifact; intermediate status
// text is delivered through report, which may be nil.
type Executor interface {
	Execute(ctx context.Context, input string, report func(update string)) (string, error)
}

// OptimizeService is the slice of the optimizer service the executor needs.
// *optimizer.Service satisfies it.
type OptimizeService interface {
	OptimizeWithProgress(ctx context.Context, req optimizer.Request, progress pipeline.Observer[optimizer.State]) (*optimizer.Result, error)
}

// OptimizerExecutor bridges the a2a protocol to the prompt optimization
// service. Inbound text is parsed into an optimization request; unrecognized
// input completes the task with a usage help document instead of failing.
type OptimizerExecutor struct {
	service         OptimizeService
	defaultProvider string
}

// ExecutorOption configures an OptimizerExecutor.
type ExecutorOption func(*OptimizerExecutor)

// WithDefaultProvider sets the provider used when a request does not name
// one. An empty value keeps optimizer.DefaultProvider.
func WithDefaultProvider(provider string) ExecutorOption {
	return func(e *OptimizerExecutor) {
		if provider != "" {
			e.defaultProvider = provider
		}
	}
}

// NewOptimizerExecutor creates an executor backed by the given service.
func NewOptimizerExecutor(service OptimizeService, opts ...ExecutorOption) *OptimizerExecutor {
	e := &OptimizerExecutor{service: service, defaultProvider: optimizer.DefaultProvider}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute parses input into an optimization request, runs it, and returns the
// rendered result. Stage transitions are reported as they happen.
func (e *OptimizerExecutor) Execute(ctx context.Context, input string, report func(update string)) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", errors.New(errors.InvalidInput, "please provide the prompt details to optimize")
	}

	req, ok := optimizer.ParseRequest(input)
	if !ok {
		return optimizer.UsageHelp(), nil
	}

	if req.Provider == "" {
		req.Provider = e.defaultProvider
	}
	emit(report, "Starting prompt optimization for %q using the %s model", req.Role, strings.ToUpper(req.Provider))

	result, err := e.service.OptimizeWithProgress(ctx, req, func(_ optimizer.State, res pipeline.StageResult) {
		switch res.Outcome {
		case pipeline.OutcomeApplied:
			emit(report, "Stage %s completed", res.Stage)
		case pipeline.OutcomeFellBack:
			emit(report, "Stage %s fell back to a default result", res.Stage)
		}
	})
	if err != nil {
		return "", err
	}

	return optimizer.FormatResult(result), nil
}

func emit(report func(string), format string, args ...interface{}) {
	if report == nil {
		return
	}
	report(fmt.Sprintf(format, args...))
}

// errorText renders an error as a user-facing status message, keeping the
// three categories surfaced to agent clients distinct.
func errorText(err error) string {
	switch errors.Code(err) {
	case errors.InvalidInput, errors.ValidationFailed:
		return fmt.Sprintf("Input validation error: %v", err)
	case errors.PipelineExecutionFailed, errors.StageExecutionFailed, errors.LLMGenerationFailed:
		return fmt.Sprintf("Runtime error: %v", err)
	default:
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}
