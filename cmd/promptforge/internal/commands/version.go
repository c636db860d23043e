package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCommand reports the CLI version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the promptforge version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("promptforge %s\n", cliVersion)
		},
	}
}
