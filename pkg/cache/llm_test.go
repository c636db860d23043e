package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/promptforge/internal/testutil"
	"github.com/XiaoConstantine/promptforge/pkg/core"
	"github.com/XiaoConstantine/promptforge/pkg/errors"
)

func TestCachedLLMRepeatCall(t *testing.T) {
	inner := new(testutil.MockLLM)
	inner.On("Generate", mock.Anything, "prompt", mock.Anything).
		Return(&core.LLMResponse{Content: "answer", Usage: &core.TokenInfo{TotalTokens: 7}}, nil).Once()

	m := NewMemory(MemoryConfig{})
	defer m.Close()
	llm := Wrap(inner, m, time.Minute)

	first, err := llm.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "answer", first.Content)
	assert.Equal(t, false, first.Metadata["cache_hit"])

	second, err := llm.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "answer", second.Content)
	assert.Equal(t, true, second.Metadata["cache_hit"])
	require.NotNil(t, second.Usage)
	assert.Equal(t, 7, second.Usage.TotalTokens)

	inner.AssertExpectations(t)
}

func TestCachedLLMDistinctOptions(t *testing.T) {
	inner := new(testutil.MockLLM)
	inner.On("Generate", mock.Anything, "prompt", mock.Anything).
		Return(&core.LLMResponse{Content: "answer"}, nil).Twice()

	m := NewMemory(MemoryConfig{})
	defer m.Close()
	llm := Wrap(inner, m, time.Minute)

	_, err := llm.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	_, err = llm.Generate(context.Background(), "prompt", core.WithTemperature(0.1))
	require.NoError(t, err)

	inner.AssertExpectations(t)
}

func TestCachedLLMErrorNotCached(t *testing.T) {
	inner := new(testutil.MockLLM)
	inner.On("Generate", mock.Anything, "prompt", mock.Anything).
		Return(nil, errors.New(errors.LLMGenerationFailed, "generation failed")).Twice()

	m := NewMemory(MemoryConfig{})
	defer m.Close()
	llm := Wrap(inner, m, time.Minute)

	_, err := llm.Generate(context.Background(), "prompt")
	assert.Error(t, err)
	_, err = llm.Generate(context.Background(), "prompt")
	assert.Error(t, err)

	inner.AssertExpectations(t)
}

func TestCachedLLMPassthrough(t *testing.T) {
	inner := new(testutil.MockLLM)
	inner.On("GenerateWithJSON", mock.Anything, "prompt", mock.Anything).
		Return(map[string]interface{}{"ok": true}, nil).Twice()

	m := NewMemory(MemoryConfig{})
	defer m.Close()
	llm := Wrap(inner, m, time.Minute)

	assert.Equal(t, "mock", llm.ProviderName())
	assert.Equal(t, "mock-model", llm.ModelID())
	assert.Contains(t, llm.Capabilities(), core.CapabilityCompletion)

	// Structured calls reach the model every time.
	out, err := llm.GenerateWithJSON(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
	_, err = llm.GenerateWithJSON(context.Background(), "prompt")
	require.NoError(t, err)

	inner.AssertExpectations(t)
}

func TestCachedLLMStreamPassthrough(t *testing.T) {
	inner := new(testutil.MockLLM)
	inner.On("StreamGenerate", mock.Anything, "prompt", mock.Anything).
		Return(&testutil.MockStreamConfig{Content: "streamed answer", ChunkSize: 5}, nil).Twice()

	m := NewMemory(MemoryConfig{})
	defer m.Close()
	llm := Wrap(inner, m, time.Minute)

	// Streams reach the model every time.
	for i := 0; i < 2; i++ {
		stream, err := llm.StreamGenerate(context.Background(), "prompt")
		require.NoError(t, err)

		var sb strings.Builder
		for chunk := range stream.ChunkChannel {
			require.NoError(t, chunk.Error)
			if chunk.Done {
				break
			}
			sb.WriteString(chunk.Content)
		}
		assert.Equal(t, "streamed answer", sb.String())
	}

	inner.AssertExpectations(t)
}
