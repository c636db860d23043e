package optimizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
)

// ParseExamplesText reads examples from free-form text. Two forms are
// accepted: a JSON array of objects with input and output fields, or blocks
// introduced by "Input:" and "Output:" lines where input lines may carry
// key=value pairs. Structured inputs are stored JSON-encoded so template
// variables survive the round trip. Empty text yields no examples and no
// error.
func ParseExamplesText(text string) ([]Example, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		return parseExamplesJSON(trimmed)
	}
	return parseExamplesBlocks(trimmed), nil
}

func parseExamplesJSON(text string) ([]Example, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "examples must be a JSON array of input/output objects")
	}

	examples := make([]Example, 0, len(raw))
	for i, entry := range raw {
		input, okIn := entry["input"]
		output, okOut := entry["output"]
		if !okIn || !okOut {
			return nil, errors.New(errors.InvalidInput,
				fmt.Sprintf("example %d must include input and output fields", i+1))
		}
		examples = append(examples, Example{
			Input:  normalizeExampleField(input),
			Output: normalizeExampleField(output),
		})
	}
	return examples, nil
}

// normalizeExampleField coerces a decoded JSON value to the string form the
// workflow consumes. Structured values stay JSON so nothing is lost.
func normalizeExampleField(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

func parseExamplesBlocks(text string) []Example {
	var (
		examples []Example
		input    map[string]string
		output   string
		mode     string
	)

	flush := func() {
		if len(input) == 0 || strings.TrimSpace(output) == "" {
			return
		}
		examples = append(examples, Example{
			Input:  renderBlockInput(input),
			Output: strings.TrimSpace(output),
		})
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "input:"):
			flush()
			input = make(map[string]string)
			output = ""
			mode = "input"
			if rest := strings.TrimSpace(line[len("input:"):]); rest != "" {
				input["text"] = rest
			}
		case strings.HasPrefix(lower, "output:"):
			output = strings.TrimSpace(line[len("output:"):])
			mode = "output"
		case mode == "input":
			if key, value, ok := strings.Cut(line, "="); ok {
				input[strings.TrimSpace(key)] = strings.TrimSpace(value)
			} else if input["text"] == "" {
				input["text"] = line
			} else {
				input["text"] += " " + line
			}
		case mode == "output":
			// Output lines keep their indentation; code examples depend on it.
			output += "\n" + strings.TrimRight(raw, " \t")
		}
	}
	flush()

	return examples
}

// renderBlockInput keeps plain text inputs plain and JSON-encodes inputs
// built from key=value pairs.
func renderBlockInput(input map[string]string) string {
	if len(input) == 1 {
		if text, ok := input["text"]; ok {
			return text
		}
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprint(input)
	}
	return string(encoded)
}
