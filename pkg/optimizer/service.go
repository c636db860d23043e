package optimizer

import (
	"context"
	"sync"

	"github.com/XiaoConstantine/promptforge/pkg/llms"
	"github.com/XiaoConstantine/promptforge/pkg/logging"
	"github.com/XiaoConstantine/promptforge/pkg/pipeline"
)

// DefaultProvider is used when a request does not name a model provider.
const DefaultProvider = "gemini"

// Service routes optimization requests to a per-provider workflow, creating
// models and workflows on first use and reusing them afterwards.
type Service struct {
	mu        sync.Mutex
	factory   *llms.Factory
	workflows map[string]*Workflow
	opts      []WorkflowOption
}

// NewService returns a Service whose workflows are built with opts.
func NewService(opts ...WorkflowOption) *Service {
	return NewServiceWithFactory(llms.NewFactory(), opts...)
}

// NewServiceWithFactory is like NewService but uses factory to create
// models, so callers can pre-configure per-provider credentials and model
// overrides. A nil factory falls back to a fresh one.
func NewServiceWithFactory(factory *llms.Factory, opts ...WorkflowOption) *Service {
	if factory == nil {
		factory = llms.NewFactory()
	}
	return &Service{
		factory:   factory,
		workflows: make(map[string]*Workflow),
		opts:      opts,
	}
}

// Workflow returns the cached workflow for provider, creating it on first
// use. Provider names are canonicalized by the model factory, so aliases
// share one workflow.
func (s *Service) Workflow(ctx context.Context, provider string) (*Workflow, error) {
	llm, err := s.factory.GetModel(provider)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := llm.ProviderName()
	if wf, ok := s.workflows[key]; ok {
		return wf, nil
	}
	wf, err := NewWorkflow(llm, s.opts...)
	if err != nil {
		return nil, err
	}
	s.workflows[key] = wf
	logging.GetLogger().Info(ctx, "Created workflow for provider %s using model %s", key, llm.ModelID())
	return wf, nil
}

// Optimize routes req to the workflow for its provider, falling back to
// DefaultProvider when the request does not name one.
func (s *Service) Optimize(ctx context.Context, req Request) (*Result, error) {
	return s.OptimizeWithProgress(ctx, req, nil)
}

// OptimizeWithProgress behaves like Optimize and additionally reports each
// stage outcome to progress as the run advances.
func (s *Service) OptimizeWithProgress(ctx context.Context, req Request, progress pipeline.Observer[State]) (*Result, error) {
	provider := req.Provider
	if provider == "" {
		provider = DefaultProvider
	}
	wf, err := s.Workflow(ctx, provider)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithModelID(ctx, wf.llm.ModelID())
	return wf.optimize(ctx, req, progress)
}

// ClearCache drops all cached workflows and models. Subsequent requests
// rebuild them from the environment.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows = make(map[string]*Workflow)
	s.factory.ClearCache()
}
