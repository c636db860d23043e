package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/promptforge/pkg/cache"
	"github.com/XiaoConstantine/promptforge/pkg/config"
	"github.com/XiaoConstantine/promptforge/pkg/core"
	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/history"
	"github.com/XiaoConstantine/promptforge/pkg/llms"
	"github.com/XiaoConstantine/promptforge/pkg/logging"
	"github.com/XiaoConstantine/promptforge/pkg/optimizer"
	"github.com/XiaoConstantine/promptforge/pkg/pipeline"
)

// loadConfig reads the --config flag, builds the runtime configuration, and
// points the global logger at the configured severity.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}

	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Logging.Level),
		Outputs:  []logging.Output{logging.NewConsoleOutput(true)},
	}))
	return cfg, nil
}

// resolveProvider applies a --provider override, canonicalized the way the
// model factory canonicalizes names.
func resolveProvider(cfg *config.Config, flag string) (string, error) {
	if flag == "" {
		return cfg.LLM.Provider, nil
	}
	p := strings.ToLower(strings.TrimSpace(flag))
	if p == "google" {
		p = "gemini"
	}
	for _, supported := range llms.SupportedProviders() {
		if p == supported {
			return p, nil
		}
	}
	return "", errors.New(errors.InvalidInput,
		fmt.Sprintf("unsupported provider %q: expected one of %s",
			flag, strings.Join(llms.SupportedProviders(), ", ")))
}

// buildCache returns the configured response cache, or nil when caching is
// disabled. The caller owns closing it.
func buildCache(cfg *config.Config) *cache.Memory {
	if !cfg.LLM.Cache.Enabled {
		return nil
	}
	return cache.NewMemory(cache.MemoryConfig{
		MaxBytes:        cfg.LLM.Cache.MaxSize,
		CleanupInterval: time.Minute,
	})
}

// buildService wires the configured providers, generation settings and
// optional response cache into an optimizer service.
func buildService(cfg *config.Config, respCache *cache.Memory) *optimizer.Service {
	factory := llms.NewFactory()
	for name, pc := range cfg.LLM.Providers {
		factory.Configure(name, llms.ProviderOptions{
			Model:   core.ModelID(pc.Model),
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
		})
	}

	opts := []optimizer.WorkflowOption{optimizer.WithTemperature(cfg.LLM.Temperature)}
	if cfg.LLM.MaxTokens > 0 {
		opts = append(opts, optimizer.WithMaxTokens(cfg.LLM.MaxTokens))
	}
	if cfg.LLM.Timeout > 0 {
		opts = append(opts, optimizer.WithCallTimeout(cfg.LLM.Timeout.Std()))
	}
	if cfg.LLM.MaxRetries > 0 {
		opts = append(opts, optimizer.WithStageRetry(&pipeline.RetryConfig{
			MaxAttempts:       cfg.LLM.MaxRetries + 1,
			BackoffMultiplier: 2,
		}))
	} else {
		opts = append(opts, optimizer.WithStageRetry(nil))
	}
	if respCache != nil {
		opts = append(opts, optimizer.WithResponseCache(respCache, cfg.LLM.Cache.TTL.Std()))
	}

	return optimizer.NewServiceWithFactory(factory, opts...)
}

// openHistory opens the run history store, or returns nil when history is
// disabled.
func openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	return history.NewStore(history.Config{
		Path:          cfg.History.Path,
		RetainFor:     cfg.History.RetainFor.Std(),
		PruneInterval: cfg.History.PruneInterval.Std(),
	})
}

// recordRun persists a completed run. Runs that failed or only produced
// degraded output are not recorded.
func recordRun(ctx context.Context, store *history.Store, req optimizer.Request, result *optimizer.Result) {
	if store == nil || result == nil || !result.Completed() {
		return
	}
	if _, err := store.Put(ctx, req, result); err != nil {
		logging.GetLogger().Warn(ctx, "Failed to record optimization run: %v", err)
	}
}

// recordingService wraps the optimizer service so runs executed by the agent
// server land in the history store.
type recordingService struct {
	service *optimizer.Service
	store   *history.Store
}

func (r *recordingService) OptimizeWithProgress(ctx context.Context, req optimizer.Request, progress pipeline.Observer[optimizer.State]) (*optimizer.Result, error) {
	result, err := r.service.OptimizeWithProgress(ctx, req, progress)
	if err == nil {
		recordRun(ctx, r.store, req, result)
	}
	return result, err
}
