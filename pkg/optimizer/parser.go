package optimizer

import "strings"

// Response section markers the model is instructed to emit.
const (
	markerPrompt      = "PROMPT:"
	markerExamples    = "ADDITIONAL_EXAMPLES:"
	markerPrinciples  = "DESIGN_PRINCIPLES:"
	markerAlternative = "ALTERNATIVE"
	focusPrefix       = "[Focus:"
	focusSuffix       = "]"
)

// ExtractPromptSection returns the text between the PROMPT: marker and the
// next section marker, trimmed. It returns the empty string when the
// response carries no PROMPT: marker, which callers treat as a failed
// extraction.
func ExtractPromptSection(response string) string {
	if response == "" {
		return ""
	}

	var prompt []string
	inPrompt := false
	for _, line := range strings.Split(response, "\n") {
		switch {
		case strings.Contains(line, markerPrompt):
			inPrompt = true
		case strings.Contains(line, markerExamples) || strings.Contains(line, markerPrinciples):
			inPrompt = false
		case inPrompt:
			prompt = append(prompt, line)
		}
	}
	return strings.TrimSpace(strings.Join(prompt, "\n"))
}

// ExtractAlternatives splits a response into the candidate prompts delimited
// by ALTERNATIVE headers. Focus annotation lines and blank lines are
// dropped; alternatives that end up empty are discarded.
func ExtractAlternatives(response string) []string {
	if response == "" {
		return nil
	}

	var alternatives []string
	var current []string
	inAlternative := false

	flush := func() {
		if !inAlternative || len(current) == 0 {
			return
		}
		if text := strings.TrimSpace(strings.Join(current, "\n")); text != "" {
			alternatives = append(alternatives, text)
		}
	}

	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.Contains(line, markerAlternative) && strings.Contains(line, ":"):
			flush()
			current = nil
			inAlternative = true
		case inAlternative && trimmed != "":
			if strings.HasPrefix(trimmed, focusPrefix) && strings.HasSuffix(trimmed, focusSuffix) {
				continue
			}
			current = append(current, line)
		}
	}
	flush()

	return alternatives
}
