// Package commands implements the promptforge command tree.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const cliVersion = "1.0.0"

// NewRootCommand builds the promptforge command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promptforge",
		Short: "Prompt optimization pipeline and agent server",
		Long: `Promptforge turns a target audience and a handful of input/output examples
into a refined prompt: a model drafts a prompt from the examples, critiques
the draft, proposes improved alternatives, and recommends the strongest one.

The CLI provides:
- One-shot prompt optimization from the command line
- An agent server exposing the optimizer over the a2a protocol
- Batch optimization of parquet example corpora
- A queryable history of recorded runs`,
		Version: cliVersion,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Provider credentials commonly live in a .env file; absence is
			// fine.
			_ = godotenv.Load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to a YAML config file (defaults apply when omitted)")
	cmd.PersistentFlags().String("log-level", "", "Minimum log severity: debug, info, warn, error or fatal (overrides config)")

	cmd.AddCommand(
		NewServeCommand(),
		NewOptimizeCommand(),
		NewBatchCommand(),
		NewHistoryCommand(),
		NewVersionCommand(),
	)

	return cmd
}
