package optimizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
)

var variablePattern = regexp.MustCompile(`\{([^}]+)\}`)

// ExtractVariables returns the distinct {placeholder} names in prompt, in
// order of first appearance.
func ExtractVariables(prompt string) []string {
	matches := variablePattern.FindAllStringSubmatch(prompt, -1)
	seen := make(map[string]struct{}, len(matches))
	var vars []string
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		vars = append(vars, m[1])
	}
	return vars
}

// ParseVariableDefinitions reads newline separated key=value definitions.
// Blank lines are ignored.
func ParseVariableDefinitions(text string) (map[string]string, error) {
	defs := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errors.New(errors.InvalidInput,
				fmt.Sprintf("variable definition %q must use key=value format", line))
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return nil, errors.New(errors.InvalidInput,
				fmt.Sprintf("variable definition %q has an empty key or value", line))
		}
		defs[key] = value
	}
	return defs, nil
}

// SubstituteVariables replaces every {key} placeholder that has a
// definition. Placeholders without a definition are left in place.
func SubstituteVariables(prompt string, defs map[string]string) string {
	for key, value := range defs {
		prompt = strings.ReplaceAll(prompt, "{"+key+"}", value)
	}
	return prompt
}

// TemplateCheck is the outcome of resolving a prompt template against a set
// of variable definitions.
type TemplateCheck struct {
	// Rendered is the prompt with every defined placeholder substituted.
	Rendered string
	// Missing lists placeholders that had no definition, in order of first
	// appearance. An empty list means the template resolved completely.
	Missing []string
}

// CheckTemplate substitutes defs into prompt and reports which placeholders
// remain unresolved.
func CheckTemplate(prompt string, defs map[string]string) TemplateCheck {
	rendered := SubstituteVariables(prompt, defs)
	return TemplateCheck{
		Rendered: rendered,
		Missing:  ExtractVariables(rendered),
	}
}
