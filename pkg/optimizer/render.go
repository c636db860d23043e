package optimizer

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	evaluationPreviewLimit  = 500
	alternativePreviewLimit = 300
	maxRenderedAlternatives = 3
)

var upperCaser = cases.Upper(language.English)

// FormatResult renders a finished run as Markdown suitable for chat style
// agent responses. Long evaluations and alternatives are truncated; the full
// texts stay available on the Result itself.
func FormatResult(res *Result) string {
	var b strings.Builder

	b.WriteString("**Prompt optimization complete**\n\n")
	fmt.Fprintf(&b, "**Target audience:** %s\n", res.Role)
	fmt.Fprintf(&b, "**Model:** %s\n", upperCaser.String(res.Provider))
	fmt.Fprintf(&b, "**Examples processed:** %d\n", len(res.Examples))

	fmt.Fprintf(&b, "\n**Generated prompt:**\n```\n%s\n```\n", res.GeneratedPrompt)

	if len(res.Evaluations) > 0 {
		fmt.Fprintf(&b, "\n**Evaluation:**\n%s\n", truncate(res.Evaluations[0], evaluationPreviewLimit))
	}

	if len(res.Alternatives) > 0 {
		fmt.Fprintf(&b, "\n**Alternatives (%d):**\n", len(res.Alternatives))
		for i, alt := range res.Alternatives {
			if i == maxRenderedAlternatives {
				break
			}
			fmt.Fprintf(&b, "\n**Alternative %d:**\n```\n%s\n```\n", i+1, truncate(alt, alternativePreviewLimit))
		}
	}

	fmt.Fprintf(&b, "\n**Final recommendation:**\n```\n%s\n```\n", res.FinalPrompt)
	b.WriteString("\n---\nUse the final recommendation directly, or adapt one of the alternatives to your needs.\n")

	return b.String()
}

const usageHelp = "**Prompt optimizer usage**\n\n" +
	"Send a JSON object with the following fields:\n\n" +
	"```json\n" +
	"{\n" +
	"    \"role\": \"target audience, e.g. 'software developers' or 'book authors'\",\n" +
	"    \"examples\": [\n" +
	"        {\"input\": \"example input\", \"output\": \"expected output\"}\n" +
	"    ],\n" +
	"    \"model_type\": \"gemini (default), openai, or anthropic\",\n" +
	"    \"additional_requirements\": \"optional extra constraints\"\n" +
	"}\n" +
	"```\n\n" +
	"**Supported providers:**\n" +
	"- `gemini`: Google Gemini 2.0 Flash (default)\n" +
	"- `openai`: OpenAI GPT-4o-mini\n" +
	"- `anthropic`: Anthropic Claude Sonnet\n\n" +
	"**Quick start:**\n" +
	"Send a keyword such as \"software developer\" or \"content writer\" and a starter configuration is generated for you.\n\n" +
	"**Example: optimize a software development prompt with OpenAI**\n" +
	"```json\n" +
	"{\n" +
	"    \"role\": \"software developers\",\n" +
	"    \"model_type\": \"openai\",\n" +
	"    \"examples\": [\n" +
	"        {\"input\": \"Write a function to calculate fibonacci numbers\", \"output\": \"def fibonacci(n):\\n    if n <= 1:\\n        return n\\n    return fibonacci(n-1) + fibonacci(n-2)\"},\n" +
	"        {\"input\": \"Create a REST API endpoint\", \"output\": \"@app.route('/api/users', methods=['GET'])\\ndef get_users():\\n    return jsonify(users)\"}\n" +
	"    ],\n" +
	"    \"additional_requirements\": \"Focus on clean, maintainable code\"\n" +
	"}\n" +
	"```\n\n" +
	"**Example: optimize a customer support prompt with Gemini**\n" +
	"```json\n" +
	"{\n" +
	"    \"role\": \"customer support representatives\",\n" +
	"    \"model_type\": \"gemini\",\n" +
	"    \"examples\": [\n" +
	"        {\"input\": \"Customer complains about delayed delivery\", \"output\": \"I sincerely apologize for the delay. Let me check your order status immediately.\"}\n" +
	"    ]\n" +
	"}\n" +
	"```\n"

// UsageHelp returns the Markdown guide shown when a request cannot be
// parsed.
func UsageHelp() string {
	return usageHelp
}

// truncate caps s at limit runes, appending an ellipsis marker when text was
// dropped.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
