package llms

import (
	"fmt"
	"strings"
	"sync"

	"github.com/XiaoConstantine/promptforge/pkg/core"
	"github.com/XiaoConstantine/promptforge/pkg/errors"
)

// SupportedProviders returns the provider names accepted by NewLLM.
func SupportedProviders() []string {
	return []string{"gemini", "openai", "anthropic"}
}

// NewLLM creates a client for the given provider. Provider names are
// case-insensitive, an empty model selects the provider's default, and an
// empty API key falls back to the provider's environment variable.
func NewLLM(provider string, apiKey string, model core.ModelID) (core.LLM, error) {
	switch canonicalProvider(provider) {
	case "gemini":
		return NewGeminiLLM(apiKey, model)
	case "openai":
		var opts []OpenAIOption
		if apiKey != "" {
			opts = append(opts, WithAPIKey(apiKey))
		}
		return NewOpenAILLM(model, opts...)
	case "anthropic":
		return NewAnthropicLLM(apiKey, model)
	default:
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput,
				fmt.Sprintf("unsupported provider %q: expected one of %s", provider, strings.Join(SupportedProviders(), ", "))),
			errors.Fields{"provider": provider})
	}
}

// ProviderOptions carries per-provider construction overrides. Zero values
// keep the provider's defaults.
type ProviderOptions struct {
	Model   core.ModelID
	APIKey  string
	BaseURL string
}

// Factory creates and caches one client per provider so that repeated
// requests reuse HTTP connections and SDK state.
type Factory struct {
	mu        sync.Mutex
	cache     map[string]core.LLM
	overrides map[string]ProviderOptions
}

// NewFactory creates an empty Factory.
func NewFactory() *Factory {
	return &Factory{
		cache:     make(map[string]core.LLM),
		overrides: make(map[string]ProviderOptions),
	}
}

// Configure records construction overrides for a provider and drops its
// cached client so the next GetModel call picks them up.
func (f *Factory) Configure(provider string, opts ProviderOptions) {
	key := canonicalProvider(provider)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[key] = opts
	delete(f.cache, key)
}

// GetModel returns the cached client for a provider, creating it with the
// provider's default model on first use.
func (f *Factory) GetModel(provider string) (core.LLM, error) {
	key := canonicalProvider(provider)

	f.mu.Lock()
	defer f.mu.Unlock()

	if llm, ok := f.cache[key]; ok {
		return llm, nil
	}

	llm, err := newLLMWithOptions(key, f.overrides[key])
	if err != nil {
		return nil, err
	}
	f.cache[key] = llm
	return llm, nil
}

// newLLMWithOptions creates a client applying overrides the plain NewLLM
// signature cannot express. Only the OpenAI client accepts a base URL, for
// OpenAI-compatible gateways.
func newLLMWithOptions(provider string, o ProviderOptions) (core.LLM, error) {
	if provider == "openai" && o.BaseURL != "" {
		opts := []OpenAIOption{WithOpenAIBaseURL(o.BaseURL)}
		if o.APIKey != "" {
			opts = append(opts, WithAPIKey(o.APIKey))
		}
		return NewOpenAILLM(o.Model, opts...)
	}
	return NewLLM(provider, o.APIKey, o.Model)
}

// ClearCache drops all cached clients. Subsequent GetModel calls recreate
// them, picking up any changed environment configuration.
func (f *Factory) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]core.LLM)
}

// canonicalProvider normalizes a provider name for lookups.
func canonicalProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "google" {
		return "gemini"
	}
	return p
}

// isSupportedModel reports whether the model is registered for the provider.
func isSupportedModel(provider string, model core.ModelID) bool {
	for _, m := range core.ProviderModels[provider] {
		if m == model {
			return true
		}
	}
	return false
}
