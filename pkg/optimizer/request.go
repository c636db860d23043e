package optimizer

import (
	"encoding/json"
	"strings"
)

var (
	developerKeywords = []string{"developer", "programming", "code", "software"}
	writerKeywords    = []string{"writer", "author", "content", "writing"}
)

// ParseRequest interprets raw user input as an optimization request. A JSON
// object is decoded directly; other input is matched against a small set of
// keywords that produce a starter request. ok is false when the input fits
// neither form, which callers usually answer with UsageHelp.
func ParseRequest(input string) (Request, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Request{}, false
	}

	if strings.HasPrefix(trimmed, "{") {
		var req Request
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return Request{}, false
		}
		return req, true
	}

	return presetRequest(trimmed)
}

func presetRequest(input string) (Request, bool) {
	lower := strings.ToLower(input)
	for _, kw := range developerKeywords {
		if strings.Contains(lower, kw) {
			return developerPreset(), true
		}
	}
	for _, kw := range writerKeywords {
		if strings.Contains(lower, kw) {
			return writerPreset(), true
		}
	}
	return Request{}, false
}

// Presets leave Provider empty so the caller's default applies.
func developerPreset() Request {
	return Request{
		Role: "software developers",
		Examples: []Example{
			{Input: "Write a function", Output: "def example_function():"},
			{Input: "Create a class", Output: "class ExampleClass:"},
		},
	}
}

func writerPreset() Request {
	return Request{
		Role: "content writers",
		Examples: []Example{
			{Input: "Write an article", Output: "Here's a compelling article..."},
			{Input: "Create a blog post", Output: "Welcome to our blog..."},
		},
	}
}
