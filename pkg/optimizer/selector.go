package optimizer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/XiaoConstantine/promptforge/pkg/core"
	"github.com/XiaoConstantine/promptforge/pkg/logging"
)

// Selector picks the final recommendation from a finished run's state.
type Selector interface {
	Select(ctx context.Context, state State) (string, error)
}

// LongestSelector picks the longest alternative, falling back to the current
// prompt when no alternatives survived. Length is a crude proxy for detail;
// use JudgeSelector when a second model call per run is acceptable.
type LongestSelector struct{}

func (LongestSelector) Select(_ context.Context, state State) (string, error) {
	if len(state.Alternatives) == 0 {
		return state.CurrentPrompt, nil
	}
	best := state.Alternatives[0]
	for _, alt := range state.Alternatives[1:] {
		if utf8.RuneCountInString(alt) > utf8.RuneCountInString(best) {
			best = alt
		}
	}
	return best, nil
}

const judgeTemplate = `You are selecting the best prompt for %[1]s.

CANDIDATE PROMPTS:
%[2]s

Reply with the number of the best candidate and nothing else.`

// JudgeSelector asks a model to rank the alternatives. When the judge call
// fails or its answer cannot be parsed, selection degrades to
// LongestSelector rather than failing the run.
type JudgeSelector struct {
	LLM core.LLM
}

func (j JudgeSelector) Select(ctx context.Context, state State) (string, error) {
	if j.LLM == nil || len(state.Alternatives) == 0 {
		return LongestSelector{}.Select(ctx, state)
	}

	var b strings.Builder
	for i, alt := range state.Alternatives {
		fmt.Fprintf(&b, "%d.\n%s\n\n", i+1, alt)
	}
	prompt := fmt.Sprintf(judgeTemplate, state.Role, strings.TrimSpace(b.String()))

	resp, err := j.LLM.Generate(ctx, prompt, core.WithTemperature(0))
	if err != nil {
		logging.GetLogger().Warn(ctx, "Judge selection failed, falling back to longest alternative: %v", err)
		return LongestSelector{}.Select(ctx, state)
	}

	choice := parseChoice(resp.Content, len(state.Alternatives))
	if choice == 0 {
		logging.GetLogger().Warn(ctx, "Judge reply %q named no candidate, falling back to longest alternative", resp.Content)
		return LongestSelector{}.Select(ctx, state)
	}
	return state.Alternatives[choice-1], nil
}

// parseChoice scans a judge reply for the first in-range candidate number.
// It returns zero when none is found.
func parseChoice(response string, max int) int {
	for _, field := range strings.Fields(response) {
		field = strings.Trim(field, ".,:()[]")
		n, err := strconv.Atoi(field)
		if err == nil && n >= 1 && n <= max {
			return n
		}
	}
	return 0
}
