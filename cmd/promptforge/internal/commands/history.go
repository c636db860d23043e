package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/promptforge/pkg/config"
	"github.com/XiaoConstantine/promptforge/pkg/history"
	"github.com/XiaoConstantine/promptforge/pkg/optimizer"
)

// NewHistoryCommand groups the subcommands that inspect recorded runs.
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded optimization runs",
		Long: `List, show, delete and prune the optimization runs recorded by the
optimize, batch and serve commands.`,
	}

	cmd.AddCommand(
		newHistoryListCommand(),
		newHistoryShowCommand(),
		newHistoryDeleteCommand(),
		newHistoryPruneCommand(),
	)

	return cmd
}

// openHistoryStore opens the store at the configured path. Unlike recording,
// inspection works even when history.enabled is false; the flag only controls
// whether new runs are written.
func openHistoryStore(cfg *config.Config) (*history.Store, error) {
	return history.NewStore(history.Config{Path: cfg.History.Path})
}

func newHistoryListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openHistoryStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No recorded runs.")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s  %s  %-10s %-10s %s\n",
					rec.ID, rec.CreatedAt.Format(time.RFC3339), rec.Provider, rec.Step, rec.Role)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openHistoryStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				out, err := json.MarshalIndent(rec.Result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Printf("Run %s recorded %s\n\n", rec.ID, rec.CreatedAt.Format(time.RFC3339))
			fmt.Println(optimizer.FormatResult(&rec.Result))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the stored result as JSON")

	return cmd
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openHistoryStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := openHistoryStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			pruned, err := store.Prune(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d runs older than %s\n", pruned, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Delete runs older than this age")

	return cmd
}
