// Package pipeline drives an ordered list of stages as a fold over an
// accumulated state. Each stage produces a partial update that a reducer
// merges into the state before the next stage runs; a failing stage
// substitutes its configured fallback update instead of aborting the
// sequence.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/logging"
)

var (
	// ErrNoStages indicates Execute was called on an empty pipeline.
	ErrNoStages = errors.New(errors.InvalidPipelineState, "pipeline has no stages")

	// ErrDuplicateStage indicates an attempt to add a stage with an existing name.
	ErrDuplicateStage = errors.New(errors.ValidationFailed, "duplicate stage name")

	// ErrInvalidStage indicates a stage without a name or run function.
	ErrInvalidStage = errors.New(errors.InvalidPipelineState, "stage requires a name and a run function")
)

// Observer receives each stage result as soon as the stage concludes,
// together with the state accumulated so far.
type Observer[S any] func(state S, result StageResult)

// Pipeline executes a fixed, ordered list of stages over state S.
type Pipeline[S any] struct {
	name      string
	stages    []Stage[S]
	index     map[string]struct{}
	observers []Observer[S]
}

// New creates an empty pipeline.
func New[S any](name string) *Pipeline[S] {
	return &Pipeline[S]{
		name:  name,
		index: make(map[string]struct{}),
	}
}

// Name returns the pipeline name.
func (p *Pipeline[S]) Name() string {
	return p.name
}

// AddStage appends a stage to the execution order.
func (p *Pipeline[S]) AddStage(stage Stage[S]) error {
	if stage.Name == "" || stage.Run == nil {
		return errors.WithFields(ErrInvalidStage, errors.Fields{"stage": stage.Name})
	}
	if _, exists := p.index[stage.Name]; exists {
		return errors.WithFields(ErrDuplicateStage, errors.Fields{"stage": stage.Name})
	}

	p.stages = append(p.stages, stage)
	p.index[stage.Name] = struct{}{}
	return nil
}

// MustAddStage is AddStage for statically constructed pipelines, panicking
// on configuration mistakes.
func (p *Pipeline[S]) MustAddStage(stage Stage[S]) *Pipeline[S] {
	if err := p.AddStage(stage); err != nil {
		panic(err)
	}
	return p
}

// Observe registers an observer for per-stage progress.
func (p *Pipeline[S]) Observe(fn Observer[S]) *Pipeline[S] {
	p.observers = append(p.observers, fn)
	return p
}

// Stages returns the stage names in execution order.
func (p *Pipeline[S]) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name)
	}
	return names
}

// Execute folds the stages over the initial state and returns the final
// state along with the per-stage trace. Cancellation aborts regardless of
// fallback configuration; on abort the state and trace accumulated so far
// are returned together with the error.
func (p *Pipeline[S]) Execute(ctx context.Context, initial S) (S, []StageResult, error) {
	logger := logging.GetLogger()
	state := initial

	if len(p.stages) == 0 {
		return state, nil, errors.WithFields(ErrNoStages, errors.Fields{"pipeline": p.name})
	}

	trace := make([]StageResult, 0, len(p.stages))
	for _, stage := range p.stages {
		stageCtx := logging.WithStage(ctx, stage.Name)

		if err := errors.CheckContext(stageCtx, "pipeline "+p.name); err != nil {
			return state, trace, err
		}

		start := time.Now()
		update, attempts, err := stage.run(stageCtx, state)
		result := StageResult{
			Stage:    stage.Name,
			Attempts: attempts,
			Duration: time.Since(start),
		}

		switch {
		case err == nil:
			if update != nil {
				state = update(state)
			}
			result.Outcome = OutcomeApplied
			logger.Debug(stageCtx, "Stage %s applied after %d attempt(s)", stage.Name, attempts)

		case stageCtx.Err() != nil:
			result.Outcome = OutcomeFailed
			result.Err = err
			trace = append(trace, result)
			p.notify(state, result)
			return state, trace, err

		case stage.Fallback != nil:
			if fallback := stage.Fallback(state, err); fallback != nil {
				state = fallback(state)
			}
			result.Outcome = OutcomeFellBack
			result.Err = err
			logger.Warn(stageCtx, "Stage %s fell back to default output: %v", stage.Name, err)

		default:
			result.Outcome = OutcomeFailed
			result.Err = err
			trace = append(trace, result)
			p.notify(state, result)
			return state, trace, errors.WithFields(
				errors.Wrap(err, errors.StageExecutionFailed, fmt.Sprintf("stage %s failed", stage.Name)),
				errors.Fields{
					"pipeline": p.name,
					"stage":    stage.Name,
					"attempts": attempts,
				})
		}

		trace = append(trace, result)
		p.notify(state, result)
	}

	return state, trace, nil
}

func (p *Pipeline[S]) notify(state S, result StageResult) {
	for _, fn := range p.observers {
		fn(state, result)
	}
}
