package core

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
)

type TokenInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates another usage sample into t. Nil samples are ignored.
func (t *TokenInfo) Add(other *TokenInfo) {
	if other == nil {
		return
	}
	t.PromptTokens += other.PromptTokens
	t.CompletionTokens += other.CompletionTokens
	t.TotalTokens += other.TotalTokens
}

type LLMResponse struct {
	Content  string
	Usage    *TokenInfo
	Metadata map[string]interface{}
}

type StreamChunk struct {
	Content string     // The text content of this chunk
	Done    bool       // Indicates if this is the final chunk
	Error   error      // Any error that occurred during streaming
	Usage   *TokenInfo // Optional token usage information (may be nil)
}

// StreamResponse encapsulates a streaming response.
type StreamResponse struct {
	ChunkChannel <-chan StreamChunk // Channel receiving response chunks
	Cancel       func()             // Function to cancel the stream
}

type Capability string

const (
	CapabilityCompletion Capability = "completion"
	CapabilityChat       Capability = "chat"
	CapabilityJSON       Capability = "json"
	CapabilityStreaming  Capability = "streaming"
)

// LLM represents an interface for language models.
type LLM interface {
	// Generate produces text completions based on the given prompt
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*LLMResponse, error)

	// GenerateWithJSON produces structured JSON output based on the given prompt
	GenerateWithJSON(ctx context.Context, prompt string, options ...GenerateOption) (map[string]interface{}, error)

	StreamGenerate(ctx context.Context, prompt string, options ...GenerateOption) (*StreamResponse, error)

	ProviderName() string
	ModelID() string
	Capabilities() []Capability
}

// GenerateOption represents an option for text generation.
type GenerateOption func(*GenerateOptions)

// GenerateOptions holds configuration for text generation.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// NewGenerateOptions creates a new GenerateOptions with default values.
// The 0.7 default temperature matches the workflow's model configuration.
func NewGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		MaxTokens:   8192,
		Temperature: 0.7,
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = t
	}
}

// WithTopP sets the nucleus sampling probability.
func WithTopP(p float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopP = p
	}
}

// WithStopSequences sets the stop sequences.
func WithStopSequences(sequences ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Stop = sequences
	}
}

type EndpointConfig struct {
	BaseURL    string            // Base API URL
	Path       string            // Specific endpoint path
	Headers    map[string]string // Common headers
	TimeoutSec int               // Request timeout in seconds
}

// DefaultTimeoutSec is the request timeout applied when none is configured.
const DefaultTimeoutSec = 60

// TransportConfig configures HTTP connection pooling behavior for LLM requests.
type TransportConfig struct {
	MaxIdleConns        int           // Total idle connections across all hosts (default: 100)
	MaxIdleConnsPerHost int           // Idle connections per host (default: 100)
	MaxConnsPerHost     int           // Max concurrent connections per host (default: 100)
	IdleConnTimeout     time.Duration // How long idle connections stay open (default: 90s)
	TLSHandshakeTimeout time.Duration // TLS handshake timeout (default: 10s)
}

// DefaultTransportConfig returns defaults suited to concurrent LLM requests.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// ToTransport converts the config to an http.Transport.
// Proxy settings come from the standard environment variables
// (HTTPS_PROXY/HTTP_PROXY), matching how deployments front these APIs.
func (tc TransportConfig) ToTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        tc.MaxIdleConns,
		MaxIdleConnsPerHost: tc.MaxIdleConnsPerHost,
		MaxConnsPerHost:     tc.MaxConnsPerHost,
		IdleConnTimeout:     tc.IdleConnTimeout,
		TLSHandshakeTimeout: tc.TLSHandshakeTimeout,
	}
}

// BaseLLMOption configures BaseLLM behavior.
type BaseLLMOption func(*BaseLLM)

// WithTransportConfig sets custom HTTP transport configuration.
func WithTransportConfig(config TransportConfig) BaseLLMOption {
	return func(b *BaseLLM) {
		b.client.Transport = config.ToTransport()
	}
}

// WithProxyURL routes requests through an explicit proxy instead of the
// environment configuration.
func WithProxyURL(proxy *url.URL) BaseLLMOption {
	return func(b *BaseLLM) {
		if transport, ok := b.client.Transport.(*http.Transport); ok {
			transport.Proxy = http.ProxyURL(proxy)
		}
	}
}

// BaseLLM provides a base implementation of the LLM interface.
type BaseLLM struct {
	providerName string
	modelID      ModelID
	capabilities []Capability

	endpoint *EndpointConfig // Optional endpoint configuration
	client   *http.Client    // Common HTTP client
}

// ProviderName implements LLM interface.
func (b *BaseLLM) ProviderName() string {
	return b.providerName
}

// ModelID implements LLM interface.
func (b *BaseLLM) ModelID() string {
	return string(b.modelID)
}

// Capabilities implements LLM interface.
func (b *BaseLLM) Capabilities() []Capability {
	return b.capabilities
}

func NewBaseLLM(providerName string, modelID ModelID, capabilities []Capability, endpoint *EndpointConfig, opts ...BaseLLMOption) *BaseLLM {
	var timeout time.Duration
	if endpoint != nil && endpoint.TimeoutSec > 0 {
		timeout = time.Duration(endpoint.TimeoutSec) * time.Second
	} else {
		timeout = DefaultTimeoutSec * time.Second
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: DefaultTransportConfig().ToTransport(),
	}

	llm := &BaseLLM{
		providerName: providerName,
		modelID:      modelID,
		capabilities: capabilities,
		endpoint:     endpoint,
		client:       client,
	}

	// Apply custom options (e.g., WithTransportConfig)
	for _, opt := range opts {
		opt(llm)
	}

	return llm
}

func ValidateEndpointConfig(cfg *EndpointConfig) error {
	if cfg == nil {
		return nil // Valid to have no endpoint config
	}

	if cfg.BaseURL == "" {
		return errors.New(errors.InvalidInput, "base URL required in endpoint configuration")
	}

	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = DefaultTimeoutSec
	}

	return nil
}

// GetEndpointConfig returns the current endpoint configuration.
func (b *BaseLLM) GetEndpointConfig() *EndpointConfig {
	return b.endpoint
}

// GetHTTPClient returns the HTTP client.
func (b *BaseLLM) GetHTTPClient() *http.Client {
	return b.client
}

// ModelID represents the available model IDs.
type ModelID string

const (
	// Google Gemini models. The flash experimental model is the system default.
	ModelGoogleGeminiFlashExp ModelID = "gemini-2.0-flash-exp"
	ModelGoogleGeminiFlash    ModelID = "gemini-2.0-flash"
	ModelGoogleGeminiPro      ModelID = "gemini-2.5-pro"

	// OpenAI models.
	ModelOpenAIGPT4oMini ModelID = "gpt-4o-mini"
	ModelOpenAIGPT4o     ModelID = "gpt-4o"
	ModelOpenAIGPT41Mini ModelID = "gpt-4.1-mini"

	// Anthropic models. The Sonnet ID is spelled out because the pinned
	// SDK version predates its ModelClaudeSonnet4_5_20250929 constant.
	ModelAnthropicSonnet ModelID = "claude-sonnet-4-5-20250929"
	ModelAnthropicHaiku  ModelID = ModelID(anthropic.ModelClaude_3_Haiku_20240307)
)

// ProviderModels lists the models known to work with each supported provider.
var ProviderModels = map[string][]ModelID{
	"gemini": {
		ModelGoogleGeminiFlashExp, ModelGoogleGeminiFlash, ModelGoogleGeminiPro,
	},
	"openai": {
		ModelOpenAIGPT4oMini, ModelOpenAIGPT4o, ModelOpenAIGPT41Mini,
	},
	"anthropic": {
		ModelAnthropicSonnet, ModelAnthropicHaiku,
	},
}

// DefaultModels maps each provider to the model used when none is configured.
var DefaultModels = map[string]ModelID{
	"gemini":    ModelGoogleGeminiFlashExp,
	"openai":    ModelOpenAIGPT4oMini,
	"anthropic": ModelAnthropicSonnet,
}
