// Package config loads and validates the YAML configuration consumed by the
// promptforge binary.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
)

// Config is the complete configuration for the promptforge binary.
type Config struct {
	// Server configuration for the serve command
	Server ServerConfig `yaml:"server,omitempty" validate:"omitempty"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm" validate:"required"`

	// History configuration
	History HistoryConfig `yaml:"history,omitempty" validate:"omitempty"`

	// Batch configuration
	Batch BatchConfig `yaml:"batch,omitempty" validate:"omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// ServerConfig controls the agent server started by the serve command.
type ServerConfig struct {
	// Host is the listen address.
	Host string `yaml:"host,omitempty"`

	// Port is the listen port.
	Port int `yaml:"port,omitempty" validate:"min=0,max=65535"`

	// Name is the agent name published on the agent card.
	Name string `yaml:"name,omitempty"`

	// Description is the agent description published on the agent card.
	Description string `yaml:"description,omitempty"`

	// URL overrides the public base URL advertised on the agent card, for
	// deployments behind a proxy or load balancer.
	URL string `yaml:"url,omitempty" validate:"omitempty,url"`

	// MaxTaskAge is how long finished tasks stay queryable before cleanup.
	MaxTaskAge Duration `yaml:"max_task_age,omitempty" validate:"min=0"`
}

// LLMConfig controls model selection and generation behavior.
type LLMConfig struct {
	// Provider is the default model provider for requests that do not name
	// one.
	Provider string `yaml:"provider" validate:"required,oneof=gemini openai anthropic"`

	// Temperature is the sampling temperature used for every stage.
	Temperature float64 `yaml:"temperature,omitempty" validate:"min=0,max=2"`

	// MaxTokens caps the tokens generated per stage. Zero keeps the
	// provider's default.
	MaxTokens int `yaml:"max_tokens,omitempty" validate:"min=0"`

	// Timeout bounds each model call. Zero leaves only the HTTP client
	// timeout.
	Timeout Duration `yaml:"timeout,omitempty" validate:"min=0"`

	// MaxRetries is how many times a failed stage is retried before its
	// fallback output is used.
	MaxRetries int `yaml:"max_retries,omitempty" validate:"min=0,max=10"`

	// Cache controls in-memory caching of identical model calls.
	Cache CacheConfig `yaml:"cache,omitempty" validate:"omitempty"`

	// Providers holds per-provider overrides keyed by provider name.
	Providers map[string]ProviderConfig `yaml:"providers,omitempty" validate:"omitempty,dive"`
}

// CacheConfig controls the model response cache.
type CacheConfig struct {
	// Enabled turns on response caching.
	Enabled bool `yaml:"enabled,omitempty"`

	// MaxSize is the cache budget in bytes.
	MaxSize int64 `yaml:"max_size,omitempty" validate:"min=0"`

	// TTL is how long cached responses stay valid. Zero keeps them until
	// evicted.
	TTL Duration `yaml:"ttl,omitempty" validate:"min=0"`
}

// ProviderConfig carries optional overrides for one model provider.
type ProviderConfig struct {
	// Model overrides the provider's default model.
	Model string `yaml:"model,omitempty"`

	// APIKey overrides the provider's environment credential.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL points the OpenAI client at an OpenAI-compatible gateway.
	BaseURL string `yaml:"base_url,omitempty" validate:"omitempty,url"`
}

// HistoryConfig controls the persistent record of optimization runs.
type HistoryConfig struct {
	// Enabled turns on run history.
	Enabled bool `yaml:"enabled,omitempty"`

	// Path is the SQLite database file.
	Path string `yaml:"path,omitempty"`

	// RetainFor is how long records are kept. Zero keeps them forever.
	RetainFor Duration `yaml:"retain_for,omitempty" validate:"min=0"`

	// PruneInterval is how often old records are pruned in the background.
	// Zero disables background pruning.
	PruneInterval Duration `yaml:"prune_interval,omitempty" validate:"min=0"`
}

// BatchConfig controls corpus batch runs.
type BatchConfig struct {
	// Concurrency is how many optimization requests run at once.
	Concurrency int `yaml:"concurrency,omitempty" validate:"min=0,max=64"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum severity logged: debug, info, warn, error or
	// fatal.
	Level string `yaml:"level,omitempty"`
}

// Duration is a time.Duration that YAML values can set with a Go duration
// string ("90s", "24h") or a plain number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case int64:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(v * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: expected a duration string or a number of seconds", v)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration value %v: expected a duration string or a number of seconds", raw)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// providerEnvVars maps canonical provider names to the environment variables
// checked for API keys, in priority order.
var providerEnvVars = map[string][]string{
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
}

// Load reads the configuration file at path, layering it over the defaults
// and applying environment overrides. An empty path skips the file and
// returns the environment-adjusted defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.InvalidInput,
				fmt.Sprintf("failed to read config file %s", path))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, errors.InvalidInput,
				fmt.Sprintf("failed to parse config file %s", path))
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize canonicalizes provider naming so lookups, environment overrides
// and the model factory agree on one key per provider.
func (c *Config) normalize() error {
	c.LLM.Provider = canonicalProvider(c.LLM.Provider)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if len(c.LLM.Providers) == 0 {
		return nil
	}
	canonical := make(map[string]ProviderConfig, len(c.LLM.Providers))
	for name, pc := range c.LLM.Providers {
		key := canonicalProvider(name)
		if _, dup := canonical[key]; dup {
			return errors.New(errors.InvalidInput,
				fmt.Sprintf("providers section configures %q twice (google is an alias for gemini)", key))
		}
		canonical[key] = pc
	}
	c.LLM.Providers = canonical
	return nil
}

// applyEnvironment lets provider API key environment variables override the
// file so credentials stay out of config files.
func (c *Config) applyEnvironment() {
	for provider, names := range providerEnvVars {
		for _, name := range names {
			value := os.Getenv(name)
			if value == "" {
				continue
			}
			if c.LLM.Providers == nil {
				c.LLM.Providers = make(map[string]ProviderConfig)
			}
			pc := c.LLM.Providers[provider]
			pc.APIKey = value
			c.LLM.Providers[provider] = pc
			break
		}
	}
}

func canonicalProvider(name string) string {
	p := strings.ToLower(strings.TrimSpace(name))
	if p == "google" {
		return "gemini"
	}
	return p
}
