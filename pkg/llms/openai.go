package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/XiaoConstantine/promptforge/pkg/core"
	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/llms/openai"
	"github.com/XiaoConstantine/promptforge/pkg/logging"
	"github.com/XiaoConstantine/promptforge/pkg/utils"
)

const openAIDefaultBaseURL = "https://api.openai.com"

// OpenAILLM implements the core.LLM interface for OpenAI's models.
type OpenAILLM struct {
	*core.BaseLLM
	apiKey string
}

// OpenAIOption is a functional option for configuring the OpenAI provider.
type OpenAIOption func(*OpenAIConfig)

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	baseURL string
	path    string
	apiKey  string
	headers map[string]string
	timeout time.Duration
}

// NewOpenAILLM creates a new OpenAILLM instance with functional options.
// An empty API key falls back to the OPENAI_API_KEY environment variable,
// and an empty model selects the provider default.
func NewOpenAILLM(modelID core.ModelID, opts ...OpenAIOption) (*OpenAILLM, error) {
	config := &OpenAIConfig{
		baseURL: openAIDefaultBaseURL,
		path:    "/v1/chat/completions",
		timeout: core.DefaultTimeoutSec * time.Second,
		headers: make(map[string]string),
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.apiKey == "" {
		config.apiKey = os.Getenv("OPENAI_API_KEY")
	}

	// API key validation - required for the official OpenAI API endpoint
	if config.apiKey == "" && config.baseURL == openAIDefaultBaseURL {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "OpenAI API key is required for api.openai.com"),
			errors.Fields{"env_var": "OPENAI_API_KEY"})
	}

	if modelID == "" {
		modelID = core.DefaultModels["openai"]
	}
	// Validate the model only against the official endpoint so that
	// compatible third-party APIs can serve custom model names.
	if config.baseURL == openAIDefaultBaseURL && !isSupportedModel("openai", modelID) {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "unsupported model for official OpenAI API"),
			errors.Fields{"model": modelID})
	}

	endpointCfg := &core.EndpointConfig{
		BaseURL:    config.baseURL,
		Path:       config.path,
		Headers:    config.headers,
		TimeoutSec: int(config.timeout.Seconds()),
	}

	if config.apiKey != "" {
		endpointCfg.Headers["Authorization"] = "Bearer " + config.apiKey
	}
	endpointCfg.Headers["Content-Type"] = "application/json"

	capabilities := []core.Capability{
		core.CapabilityCompletion,
		core.CapabilityChat,
		core.CapabilityJSON,
		core.CapabilityStreaming,
	}

	return &OpenAILLM{
		BaseLLM: core.NewBaseLLM("openai", modelID, capabilities, endpointCfg),
		apiKey:  config.apiKey,
	}, nil
}

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) OpenAIOption {
	return func(c *OpenAIConfig) { c.apiKey = apiKey }
}

// WithOpenAIBaseURL sets the base URL.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(c *OpenAIConfig) { c.baseURL = baseURL }
}

// WithOpenAIPath sets the endpoint path.
func WithOpenAIPath(path string) OpenAIOption {
	return func(c *OpenAIConfig) { c.path = path }
}

// WithOpenAITimeout sets the request timeout.
func WithOpenAITimeout(timeout time.Duration) OpenAIOption {
	return func(c *OpenAIConfig) { c.timeout = timeout }
}

// WithHeader sets a custom header.
func WithHeader(key, value string) OpenAIOption {
	return func(c *OpenAIConfig) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// Generate implements the core.LLM interface.
func (o *OpenAILLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	request := &openai.ChatCompletionRequest{
		Model: o.ModelID(),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    "user",
				Content: prompt,
			},
		},
		MaxTokens:   &opts.MaxTokens,
		Temperature: &opts.Temperature,
	}

	if opts.TopP > 0 {
		request.TopP = &opts.TopP
	}
	if len(opts.Stop) > 0 {
		request.Stop = opts.Stop
	}

	response, err := o.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, errors.New(errors.InvalidResponse, "no choices returned from OpenAI API")
	}

	usage := &core.TokenInfo{
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		TotalTokens:      response.Usage.TotalTokens,
	}

	return &core.LLMResponse{
		Content: response.Choices[0].Message.Content,
		Usage:   usage,
		Metadata: map[string]interface{}{
			"finish_reason": response.Choices[0].FinishReason,
			"id":            response.ID,
			"model":         response.Model,
		},
	}, nil
}

// GenerateWithJSON implements the core.LLM interface.
func (o *OpenAILLM) GenerateWithJSON(ctx context.Context, prompt string, options ...core.GenerateOption) (map[string]interface{}, error) {
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	request := &openai.ChatCompletionRequest{
		Model: o.ModelID(),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    "user",
				Content: prompt,
			},
		},
		MaxTokens:   &opts.MaxTokens,
		Temperature: &opts.Temperature,
		ResponseFormat: &openai.ResponseFormat{
			Type: "json_object",
		},
	}

	if opts.TopP > 0 {
		request.TopP = &opts.TopP
	}
	if len(opts.Stop) > 0 {
		request.Stop = opts.Stop
	}

	response, err := o.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, errors.New(errors.InvalidResponse, "no choices returned from OpenAI API")
	}

	return utils.ParseJSONResponse(response.Choices[0].Message.Content)
}

// StreamGenerate implements the core.LLM interface.
func (o *OpenAILLM) StreamGenerate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.StreamResponse, error) {
	logger := logging.GetLogger()
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	request := &openai.ChatCompletionRequest{
		Model: o.ModelID(),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    "user",
				Content: prompt,
			},
		},
		MaxTokens:   &opts.MaxTokens,
		Temperature: &opts.Temperature,
		Stream:      true,
	}

	if opts.TopP > 0 {
		request.TopP = &opts.TopP
	}
	if len(opts.Stop) > 0 {
		request.Stop = opts.Stop
	}

	chunkChan := make(chan core.StreamChunk)
	streamCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(chunkChan)
		defer cancelFunc()

		resp, err := o.makeStreamingRequest(streamCtx, request)
		if err != nil {
			chunkChan <- core.StreamChunk{
				Error: errors.Wrap(err, errors.LLMGenerationFailed, "streaming request failed"),
			}
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case <-streamCtx.Done():
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			if data == "[DONE]" {
				chunkChan <- core.StreamChunk{Done: true}
				return
			}

			var streamResponse openai.ChatCompletionStreamResponse
			if err := json.Unmarshal([]byte(data), &streamResponse); err != nil {
				logger.Debug(ctx, "Error parsing stream chunk: %v", err)
				continue
			}

			if len(streamResponse.Choices) > 0 {
				choice := streamResponse.Choices[0]
				if choice.Delta.Content != "" {
					chunkChan <- core.StreamChunk{Content: choice.Delta.Content}
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					chunkChan <- core.StreamChunk{Done: true}
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			chunkChan <- core.StreamChunk{
				Error: errors.Wrap(err, errors.LLMGenerationFailed, "error reading stream"),
			}
		}
	}()

	return &core.StreamResponse{
		ChunkChannel: chunkChan,
		Cancel:       cancelFunc,
	}, nil
}

// makeRequest sends a chat completion request to the OpenAI API.
func (o *OpenAILLM) makeRequest(ctx context.Context, request *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to marshal request")
	}

	endpoint := o.GetEndpointConfig()
	url := endpoint.BaseURL + endpoint.Path

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to create request")
	}

	for key, value := range endpoint.Headers {
		req.Header.Set(key, value)
	}

	resp, err := o.GetHTTPClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.LLMGenerationFailed, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.LLMGenerationFailed, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeOpenAIError(resp.StatusCode, body)
	}

	var response openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, errors.InvalidResponse, "failed to parse response")
	}

	return &response, nil
}

// makeStreamingRequest sends a streaming chat completion request to the OpenAI API.
func (o *OpenAILLM) makeStreamingRequest(ctx context.Context, request *openai.ChatCompletionRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to marshal request")
	}

	endpoint := o.GetEndpointConfig()
	url := endpoint.BaseURL + endpoint.Path

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to create request")
	}

	for key, value := range endpoint.Headers {
		req.Header.Set(key, value)
	}

	resp, err := o.GetHTTPClient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.LLMGenerationFailed, "request failed")
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, decodeOpenAIError(resp.StatusCode, body)
	}

	return resp, nil
}

func decodeOpenAIError(status int, body []byte) error {
	var errorResp openai.ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error.Message == "" {
		return errors.WithFields(
			errors.New(errors.LLMGenerationFailed, "API request failed"),
			errors.Fields{"status": status, "body": string(body)})
	}
	return errors.WithFields(
		errors.New(errors.LLMGenerationFailed, errorResp.Error.Message),
		errors.Fields{"type": errorResp.Error.Type, "code": errorResp.Error.Code})
}
