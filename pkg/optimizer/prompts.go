package optimizer

import (
	"fmt"
	"strings"
)

// defaultPrompt stands in for a generated prompt when synthesis fails, and
// for the final recommendation when every candidate came back blank.
const defaultPrompt = "Please provide a clear and specific response to the user's request."

// fallbackEvaluation stands in for a critique when the evaluation stage fails.
const fallbackEvaluation = "Basic evaluation: The prompt appears functional but may need refinement."

const guideTemplate = `Generate a detailed prompt engineering guide. The audience is %[1]s.

Include best practices, common patterns, and specific techniques that work well for %[1]s.
Focus on clarity, specificity, and effectiveness for this particular audience.

Provide the guide in a structured format with examples.`

const generationTemplate = `Based on these %[1]d examples of how I want my prompt to work:

%[2]s

Generate a prompt that could have generated the examples' outputs, and include a better set of examples.

The target audience is %[3]s.

Provide:
1. A well-crafted prompt that would generate similar outputs
2. 3-5 additional high-quality examples that demonstrate the prompt's effectiveness
3. Brief explanation of the prompt's design principles

Format your response as:

PROMPT:
[Your generated prompt here]

ADDITIONAL_EXAMPLES:
[New examples in the same input/output format]

DESIGN_PRINCIPLES:
[Brief explanation]`

const evaluationGuideTemplate = `Generate a detailed prompt evaluation guide. The audience is %[1]s.

Include criteria for evaluating prompts specifically for %[1]s, such as:
- Clarity and specificity
- Effectiveness for the target use case
- Potential edge cases
- Performance considerations
- Maintainability and scalability

Provide a structured evaluation framework.`

const evaluationTemplate = `Evaluate this prompt for %[1]s:

PROMPT TO EVALUATE:
%[2]s

ORIGINAL EXAMPLES IT SHOULD HANDLE:
%[3]s

Provide a detailed evaluation including:
1. Strengths of the current prompt
2. Potential weaknesses or limitations
3. How well it addresses the target audience (%[1]s)
4. Specific areas for improvement
5. Overall score (1-10) with justification

Be thorough and constructive in your evaluation.`

const improvementTemplate = `Based on the evaluation, generate 3 improved alternative prompts for %[1]s.

CURRENT PROMPT:
%[2]s

EVALUATION FEEDBACK:
%[3]s

ORIGINAL EXAMPLES TO HANDLE:
%[4]s

Generate 3 distinct improved versions that address the identified weaknesses while maintaining the strengths. Each should:
1. Be specifically tailored for %[1]s
2. Address the feedback from the evaluation
3. Maintain or improve upon the original prompt's capabilities
4. Have a clear improvement focus (e.g., clarity, specificity, edge case handling)

Format as:

ALTERNATIVE 1: [Focus: specific improvement area]
[Improved prompt 1]

ALTERNATIVE 2: [Focus: specific improvement area]
[Improved prompt 2]

ALTERNATIVE 3: [Focus: specific improvement area]
[Improved prompt 3]

For each alternative, briefly explain the key improvements made.`

func guidePrompt(role string) string {
	return fmt.Sprintf(guideTemplate, role)
}

func generationPrompt(s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, generationTemplate, len(s.Examples), numberedExamples(s.Examples), s.Role)
	if s.BasicRequirements != "" {
		fmt.Fprintf(&b, "\n\nCore requirements the prompt must satisfy:\n%s", s.BasicRequirements)
	}
	if s.AdditionalRequirements != "" {
		fmt.Fprintf(&b, "\n\nAdditional requirements:\n%s", s.AdditionalRequirements)
	}
	return b.String()
}

func evaluationGuidePrompt(role string) string {
	return fmt.Sprintf(evaluationGuideTemplate, role)
}

func evaluationPrompt(s State) string {
	return fmt.Sprintf(evaluationTemplate, s.Role, s.CurrentPrompt, formatExamples(s.Examples))
}

func improvementPrompt(s State) string {
	feedback := "No evaluation available"
	if len(s.Evaluations) > 0 {
		feedback = s.Evaluations[len(s.Evaluations)-1]
	}
	return fmt.Sprintf(improvementTemplate, s.Role, s.CurrentPrompt, feedback, formatExamples(s.Examples))
}

// numberedExamples renders examples with an ordinal header, the form the
// generation stage presents to the model.
func numberedExamples(examples []Example) string {
	parts := make([]string, 0, len(examples))
	for i, ex := range examples {
		parts = append(parts, fmt.Sprintf("Example %d:\nInput: %s\nOutput: %s", i+1, ex.Input, ex.Output))
	}
	return strings.Join(parts, "\n\n")
}

// formatExamples renders examples as plain input/output pairs for the
// evaluation and improvement stages.
func formatExamples(examples []Example) string {
	if len(examples) == 0 {
		return "No examples provided"
	}
	parts := make([]string, 0, len(examples))
	for _, ex := range examples {
		if strings.TrimSpace(ex.Input) == "" && strings.TrimSpace(ex.Output) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Input: %s\nOutput: %s", ex.Input, ex.Output))
	}
	if len(parts) == 0 {
		return "No valid examples found"
	}
	return strings.Join(parts, "\n\n")
}
