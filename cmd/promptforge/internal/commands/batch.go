package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/promptforge/pkg/datasets"
	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/optimizer"
)

// NewBatchCommand optimizes a prompt for every role in a parquet corpus.
func NewBatchCommand() *cobra.Command {
	var corpusPath string
	var provider string
	var concurrency int
	var outputDir string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Optimize prompts for every role in a parquet corpus",
		Long: `Read a parquet corpus with role, input and output string columns, group
its rows into one optimization request per role, and run the requests
concurrently. Completed runs are recorded in the history store.`,
		Example: `  # Optimize every role in the corpus
  promptforge batch --corpus corpus.parquet

  # Write one Markdown result per role
  promptforge batch --corpus corpus.parquet --output results/

  # Cap concurrency and pin the provider
  promptforge batch --corpus corpus.parquet --concurrency 2 --provider openai`,
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
			if concurrency <= 0 {
				concurrency = cfg.Batch.Concurrency
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			groups, err := datasets.LoadCorpus(ctx, corpusPath)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				return errors.New(errors.InvalidInput, "corpus contains no examples")
			}
			requests := datasets.Requests(groups, prov)

			if outputDir != "" {
				if err := os.MkdirAll(outputDir, 0o755); err != nil {
					return errors.Wrap(err, errors.StorageFailed, "failed to create output directory")
				}
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

			fmt.Printf("Optimizing prompts for %d roles with concurrency %d\n", len(requests), concurrency)
			results := service.OptimizeBatch(ctx, requests, concurrency)

			var failed int
			for _, br := range results {
				if br.Err != nil {
					failed++
					fmt.Printf("  %-30s failed: %v\n", br.Request.Role, br.Err)
					continue
				}
				recordRun(ctx, store, br.Request, br.Result)
				fmt.Printf("  %-30s %s\n", br.Request.Role, br.Result.Step)
				if outputDir != "" {
					path := filepath.Join(outputDir, roleFileName(br.Request.Role))
					if err := os.WriteFile(path, []byte(optimizer.FormatResult(br.Result)), 0o644); err != nil {
						return errors.Wrap(err, errors.StorageFailed,
							fmt.Sprintf("failed to write %s", path))
					}
				}
			}

			fmt.Printf("Done: %d roles optimized, %d failed\n", len(results)-failed, failed)
			if failed > 0 {
				return errors.New(errors.PipelineExecutionFailed,
					fmt.Sprintf("%d of %d batch requests failed", failed, len(results)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&corpusPath, "corpus", "", "Parquet corpus with role, input and output columns (required)")
	cmd.Flags().StringVar(&provider, "provider", "", "Model provider for every request (overrides config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrent optimizations (defaults to batch.concurrency from config)")
	cmd.Flags().StringVar(&outputDir, "output", "", "Directory to write one Markdown result per role")
	_ = cmd.MarkFlagRequired("corpus")

	return cmd
}

// roleFileName renders a role as a safe Markdown file name.
func roleFileName(role string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == ' ' || r == '-' || r == '_':
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(role))
	if slug == "" {
		slug = "role"
	}
	return slug + ".md"
}
