package optimizer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/promptforge/internal/testutil"
)

func TestLongestSelector(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected string
	}{
		{
			name: "picks longest alternative",
			state: State{
				CurrentPrompt: "current",
				Alternatives:  []string{"short", "a much longer candidate", "mid length"},
			},
			expected: "a much longer candidate",
		},
		{
			name:     "no alternatives falls back to current prompt",
			state:    State{CurrentPrompt: "current"},
			expected: "current",
		},
		{
			name: "first of equal lengths wins",
			state: State{
				Alternatives: []string{"aaaa", "bbbb"},
			},
			expected: "aaaa",
		},
		{
			name:     "everything empty",
			state:    State{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LongestSelector{}.Select(context.Background(), tt.state)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestJudgeSelector(t *testing.T) {
	state := State{
		Role:          "software developers",
		CurrentPrompt: "current",
		Alternatives:  []string{"first candidate", "second candidate that is much longer"},
	}

	t.Run("follows the judge verdict", func(t *testing.T) {
		mockLLM := new(testutil.MockLLM)
		mockLLM.On("Generate", mock.Anything, matchPrompt("Reply with the number"), mock.Anything).Return("1", nil)

		got, err := JudgeSelector{LLM: mockLLM}.Select(context.Background(), state)
		require.NoError(t, err)
		assert.Equal(t, "first candidate", got)
		mockLLM.AssertExpectations(t)
	})

	t.Run("judge failure degrades to longest", func(t *testing.T) {
		mockLLM := new(testutil.MockLLM)
		mockLLM.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(nil, fmt.Errorf("judge offline"))

		got, err := JudgeSelector{LLM: mockLLM}.Select(context.Background(), state)
		require.NoError(t, err)
		assert.Equal(t, "second candidate that is much longer", got)
	})

	t.Run("unparseable verdict degrades to longest", func(t *testing.T) {
		mockLLM := new(testutil.MockLLM)
		mockLLM.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("they are all equally good", nil)

		got, err := JudgeSelector{LLM: mockLLM}.Select(context.Background(), state)
		require.NoError(t, err)
		assert.Equal(t, "second candidate that is much longer", got)
	})

	t.Run("no alternatives skips the judge call", func(t *testing.T) {
		mockLLM := new(testutil.MockLLM)

		got, err := JudgeSelector{LLM: mockLLM}.Select(context.Background(), State{CurrentPrompt: "current"})
		require.NoError(t, err)
		assert.Equal(t, "current", got)
	})
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		response string
		max      int
		expected int
	}{
		{"2", 3, 2},
		{"Candidate 3.", 3, 3},
		{"I pick option 1 because it is clearest", 3, 1},
		{"(2)", 3, 2},
		{"none of them", 3, 0},
		{"7", 3, 0},
		{"", 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.response, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseChoice(tt.response, tt.max))
		})
	}
}
