package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONResponse attempts to parse a string response as JSON. Model output
// often arrives wrapped in a markdown code fence, so fences are stripped
// before parsing.
func ParseJSONResponse(response string) (map[string]interface{}, error) {
	var result map[string]interface{}
	err := json.Unmarshal([]byte(StripCodeFence(response)), &result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response as JSON: %w", err)
	}
	return result, nil
}

// StripCodeFence removes a surrounding markdown code fence, including any
// language tag on the opening line. Text without a fence is returned as is.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
