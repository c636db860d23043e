package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/optimizer"
	"github.com/XiaoConstantine/promptforge/pkg/pipeline"
)

// NewOptimizeCommand runs a single optimization from the command line.
func NewOptimizeCommand() *cobra.Command {
	var role string
	var examplesArg string
	var provider string
	var basicRequirements string
	var additionalRequirements string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize a prompt for a target audience",
		Long: `Run the full optimization pipeline once: generate a prompt engineering
guide for the audience, draft a prompt from the examples, evaluate the
draft, generate improved alternatives, and recommend the strongest one.

Examples are given as a JSON array of input/output objects or as text
blocks introduced by "Input:" and "Output:" lines. Prefix the value with
@ to read it from a file.`,
		Example: `  # Inline JSON examples
  promptforge optimize --role "software developers" \
    --examples '[{"input": "Write a function", "output": "def example_function():"}]'

  # Examples from a file, raw JSON output
  promptforge optimize --role "content writers" --examples @examples.txt --json

  # Pin the provider
  promptforge optimize --role "data analysts" --examples @examples.txt --provider anthropic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			prov, err := resolveProvider(cfg, provider)
			if err != nil {
				return err
			}

			text := examplesArg
			if strings.HasPrefix(text, "@") {
				data, err := os.ReadFile(strings.TrimPrefix(text, "@"))
				if err != nil {
					return errors.Wrap(err, errors.InvalidInput, "failed to read examples file")
				}
				text = string(data)
			}
			examples, err := optimizer.ParseExamplesText(text)
			if err != nil {
				return err
			}

			req := optimizer.Request{
				Role:                   role,
				Examples:               examples,
				BasicRequirements:      basicRequirements,
				AdditionalRequirements: additionalRequirements,
				Provider:               prov,
			}

			respCache := buildCache(cfg)
			if respCache != nil {
				defer respCache.Close()
			}
			service := buildService(cfg, respCache)
			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var progress pipeline.Observer[optimizer.State]
			if !jsonOut {
				fmt.Printf("Optimizing a prompt for %q using %s\n", role, prov)
				progress = func(_ optimizer.State, res pipeline.StageResult) {
					switch res.Outcome {
					case pipeline.OutcomeApplied:
						fmt.Printf("  %-20s done in %s\n", res.Stage, res.Duration.Round(time.Millisecond))
					case pipeline.OutcomeFellBack:
						fmt.Printf("  %-20s fell back: %v\n", res.Stage, res.Err)
					case pipeline.OutcomeFailed:
						fmt.Printf("  %-20s failed: %v\n", res.Stage, res.Err)
					}
				}
			}

			result, err := service.OptimizeWithProgress(ctx, req, progress)
			if err != nil {
				return err
			}
			recordRun(ctx, store, req, result)

			if jsonOut {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Println()
			fmt.Println(optimizer.FormatResult(result))
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Target audience for the prompt (required)")
	cmd.Flags().StringVar(&examplesArg, "examples", "", "Examples as JSON or Input:/Output: text, or @file to read them from a file (required)")
	cmd.Flags().StringVar(&provider, "provider", "", "Model provider: gemini, openai or anthropic (overrides config)")
	cmd.Flags().StringVar(&basicRequirements, "basic-requirements", "", "Requirements the generated prompt must satisfy")
	cmd.Flags().StringVar(&additionalRequirements, "additional-requirements", "", "Extra requirements for the improvement stage")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the raw result as JSON instead of Markdown")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("examples")

	return cmd
}
