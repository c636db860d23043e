package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPromptSection(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
	}{
		{
			name: "full response",
			response: `Here is my analysis.

PROMPT:
Summarize the code change in plain language.
Keep it under two sentences.

ADDITIONAL_EXAMPLES:
Input: Fix typo
Output: Corrects a spelling mistake.

DESIGN_PRINCIPLES:
Keep instructions short.`,
			expected: "Summarize the code change in plain language.\nKeep it under two sentences.",
		},
		{
			name: "stops at design principles",
			response: `PROMPT:
Write tests first.

DESIGN_PRINCIPLES:
Test driven.`,
			expected: "Write tests first.",
		},
		{
			name:     "marker with surrounding text",
			response: "Sure! PROMPT:\nDo the thing.\n",
			expected: "Do the thing.",
		},
		{
			name:     "no prompt marker",
			response: "The model ignored the format instructions entirely.",
			expected: "",
		},
		{
			name:     "empty response",
			response: "",
			expected: "",
		},
		{
			name:     "prompt runs to end of response",
			response: "PROMPT:\nFirst line.\nSecond line.",
			expected: "First line.\nSecond line.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractPromptSection(tt.response))
		})
	}
}

func TestExtractAlternatives(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected []string
	}{
		{
			name: "three alternatives with focus lines",
			response: `ALTERNATIVE 1: [Focus: clarity]
Summarize the change in one sentence.

ALTERNATIVE 2: [Focus: specificity]
[Focus: naming the files touched]
Summarize the code change for reviewers.
Name every file touched.

ALTERNATIVE 3: [Focus: edge cases]
Cover renames and deletions explicitly.`,
			expected: []string{
				"Summarize the change in one sentence.",
				"Summarize the code change for reviewers.\nName every file touched.",
				"Cover renames and deletions explicitly.",
			},
		},
		{
			name: "empty alternative is discarded",
			response: `ALTERNATIVE 1: [Focus: clarity]

ALTERNATIVE 2: [Focus: brevity]
Keep it short.`,
			expected: []string{"Keep it short."},
		},
		{
			name:     "no markers",
			response: "The model produced free-form advice instead.",
			expected: nil,
		},
		{
			name:     "empty response",
			response: "",
			expected: nil,
		},
		{
			name: "final alternative is flushed",
			response: `ALTERNATIVE 1:
Only one candidate here.`,
			expected: []string{"Only one candidate here."},
		},
		{
			name: "header requires a colon",
			response: `ALTERNATIVE ONE
Not a header, so this text belongs to nothing.`,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractAlternatives(tt.response))
		})
	}
}

func TestFormatExamples(t *testing.T) {
	examples := []Example{
		{Input: "Write a function", Output: "def example_function():"},
		{Input: "Create a class", Output: "class ExampleClass:"},
	}
	assert.Equal(t,
		"Input: Write a function\nOutput: def example_function():\n\nInput: Create a class\nOutput: class ExampleClass:",
		formatExamples(examples))

	assert.Equal(t, "No examples provided", formatExamples(nil))
	assert.Equal(t, "No valid examples found", formatExamples([]Example{{Input: " ", Output: ""}}))
}

func TestNumberedExamples(t *testing.T) {
	examples := []Example{
		{Input: "a", Output: "b"},
		{Input: "c", Output: "d"},
	}
	assert.Equal(t, "Example 1:\nInput: a\nOutput: b\n\nExample 2:\nInput: c\nOutput: d", numberedExamples(examples))
}

func TestGenerationPromptIncludesRequirements(t *testing.T) {
	s := State{
		Role:     "software developers",
		Examples: []Example{{Input: "in", Output: "out"}},
	}
	base := generationPrompt(s)
	assert.Contains(t, base, "Based on these 1 examples")
	assert.Contains(t, base, "The target audience is software developers.")
	assert.NotContains(t, base, "Core requirements")
	assert.NotContains(t, base, "Additional requirements")

	s.BasicRequirements = "Prompts must request JSON output."
	s.AdditionalRequirements = "Avoid first person phrasing."
	full := generationPrompt(s)
	assert.Contains(t, full, "Core requirements the prompt must satisfy:\nPrompts must request JSON output.")
	assert.Contains(t, full, "Additional requirements:\nAvoid first person phrasing.")
}

func TestImprovementPromptFeedback(t *testing.T) {
	s := State{
		Role:          "software developers",
		CurrentPrompt: "Do the thing.",
	}
	assert.Contains(t, improvementPrompt(s), "No evaluation available")

	s.Evaluations = []string{"first pass", "latest critique"}
	withFeedback := improvementPrompt(s)
	assert.Contains(t, withFeedback, "latest critique")
	assert.NotContains(t, withFeedback, "first pass")
}
