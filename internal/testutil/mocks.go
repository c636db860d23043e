package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/XiaoConstantine/promptforge/pkg/core"
)

// MockStreamConfig configures how the mock LLM streams responses during tests.
type MockStreamConfig struct {
	Content    string
	ChunkSize  int
	ChunkDelay time.Duration
	Error      error
	ErrorAfter int
	Usage      *core.TokenInfo
}

// MockLLM is a mock implementation of core.LLM.
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.LLMResponse, error) {
	args := m.Called(ctx, prompt, opts)
	// Handle both string and struct returns
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if response, ok := args.Get(0).(*core.LLMResponse); ok {
		return response, args.Error(1)
	}
	// Fall back to string conversion for simple cases
	return &core.LLMResponse{Content: args.String(0)}, args.Error(1)
}

func (m *MockLLM) GenerateWithJSON(ctx context.Context, prompt string, opts ...core.GenerateOption) (map[string]interface{}, error) {
	args := m.Called(ctx, prompt, opts)
	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.(map[string]interface{}), args.Error(1)
}

func (m *MockLLM) StreamGenerate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.StreamResponse, error) {
	args := m.Called(ctx, prompt, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	config, ok := args.Get(0).(*MockStreamConfig)
	if !ok {
		// Fall back to string conversion for simple cases
		config = &MockStreamConfig{Content: args.String(0)}
	}

	chunkSize := config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 10
	}

	streamCtx, cancel := context.WithCancel(ctx)
	chunks := make(chan core.StreamChunk)

	go func() {
		defer close(chunks)

		if config.Error != nil && config.ErrorAfter <= 0 {
			chunks <- core.StreamChunk{Error: config.Error}
			return
		}

		var sent int
		for i := 0; i < len(config.Content); i += chunkSize {
			select {
			case <-streamCtx.Done():
				return
			default:
			}

			end := i + chunkSize
			if end > len(config.Content) {
				end = len(config.Content)
			}
			sent++

			if config.Error != nil && sent >= config.ErrorAfter {
				chunks <- core.StreamChunk{Error: config.Error}
				return
			}

			chunks <- core.StreamChunk{Content: config.Content[i:end]}

			if config.ChunkDelay > 0 {
				time.Sleep(config.ChunkDelay)
			}
		}

		if config.Usage != nil {
			chunks <- core.StreamChunk{Usage: config.Usage}
		}
		chunks <- core.StreamChunk{Done: true}
	}()

	return &core.StreamResponse{ChunkChannel: chunks, Cancel: cancel}, nil
}

func (m *MockLLM) ProviderName() string {
	if len(m.expectedCallsFor("ProviderName")) > 0 {
		return m.Called().String(0)
	}
	return "mock"
}

func (m *MockLLM) ModelID() string {
	if len(m.expectedCallsFor("ModelID")) > 0 {
		return m.Called().String(0)
	}
	return "mock-model"
}

func (m *MockLLM) Capabilities() []core.Capability {
	return []core.Capability{
		core.CapabilityCompletion,
		core.CapabilityChat,
		core.CapabilityJSON,
	}
}

// expectedCallsFor lets identity methods answer with defaults unless a test
// registered an expectation, so most tests never have to stub them.
func (m *MockLLM) expectedCallsFor(method string) []*mock.Call {
	var calls []*mock.Call
	for _, call := range m.ExpectedCalls {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}
