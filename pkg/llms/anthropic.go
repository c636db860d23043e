package llms

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/XiaoConstantine/promptforge/pkg/core"
	errs "github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/logging"
	"github.com/XiaoConstantine/promptforge/pkg/utils"
)

// AnthropicLLM implements the core.LLM interface for Anthropic's models.
type AnthropicLLM struct {
	client *anthropic.Client
	*core.BaseLLM
}

// NewAnthropicLLM creates a new AnthropicLLM instance. An empty API key falls
// back to the ANTHROPIC_API_KEY environment variable, and an empty model
// selects the provider default. Additional request options are passed to the
// underlying SDK client.
func NewAnthropicLLM(apiKey string, model core.ModelID, opts ...option.RequestOption) (*AnthropicLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errs.WithFields(
			errs.New(errs.InvalidInput, "API key is required"),
			errs.Fields{"env_var": "ANTHROPIC_API_KEY"})
	}

	if model == "" {
		model = core.DefaultModels["anthropic"]
	}
	if !isValidAnthropicModel(string(model)) {
		return nil, errs.WithFields(
			errs.New(errs.InvalidInput, "unsupported Anthropic model"),
			errs.Fields{"model": model})
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(clientOpts...)

	capabilities := []core.Capability{
		core.CapabilityCompletion,
		core.CapabilityChat,
		core.CapabilityJSON,
		core.CapabilityStreaming,
	}

	return &AnthropicLLM{
		client:  &client,
		BaseLLM: core.NewBaseLLM("anthropic", model, capabilities, nil),
	}, nil
}

// isValidAnthropicModel checks if the model is a valid Anthropic model.
// Prefix matching lets newly released models work without a registry update.
func isValidAnthropicModel(model string) bool {
	validPrefixes := []string{
		"claude-3",
		"claude-4",
		"claude-haiku",
		"claude-sonnet",
		"claude-opus",
	}

	for _, prefix := range validPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// Generate implements the core.LLM interface.
func (a *AnthropicLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	logger := logging.GetLogger()
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: anthropic.Model(a.ModelID()),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		MaxTokens:   int64(opts.MaxTokens),
		Temperature: anthropic.Float(opts.Temperature),
	})

	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
		}
		return nil, errs.WithFields(
			errs.Wrap(err, errs.LLMGenerationFailed, "failed to generate response"),
			errs.Fields{
				"model":      a.ModelID(),
				"max_tokens": opts.MaxTokens,
			})
	}

	if message == nil {
		return nil, errs.New(errs.LLMGenerationFailed, "Received nil response from Anthropic API")
	}

	if len(message.Content) == 0 {
		return nil, errs.New(errs.LLMGenerationFailed, "Received empty content from Anthropic API")
	}

	// Extract text from response using union type methods
	var responseText string
	if block := message.Content[0]; block.Type == "text" {
		responseText = block.Text
	}

	usage := &core.TokenInfo{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}

	logger.Debug(ctx, "Anthropic response: %d prompt tokens, %d completion tokens", message.Usage.InputTokens, message.Usage.OutputTokens)

	return &core.LLMResponse{Content: responseText, Usage: usage}, nil
}

// GenerateWithJSON implements the core.LLM interface.
func (a *AnthropicLLM) GenerateWithJSON(ctx context.Context, prompt string, options ...core.GenerateOption) (map[string]interface{}, error) {
	response, err := a.Generate(ctx, prompt, options...)
	if err != nil {
		return nil, err
	}

	return utils.ParseJSONResponse(response.Content)
}

// StreamGenerate implements streaming text generation using the official SDK's iterator pattern.
func (a *AnthropicLLM) StreamGenerate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.StreamResponse, error) {
	logger := logging.GetLogger()
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	chunkChan := make(chan core.StreamChunk)
	streamCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(chunkChan)
		defer cancelFunc()

		stream := a.client.Messages.NewStreaming(streamCtx, anthropic.MessageNewParams{
			Model: anthropic.Model(a.ModelID()),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewTextBlock(prompt),
				),
			},
			MaxTokens:   int64(opts.MaxTokens),
			Temperature: anthropic.Float(opts.Temperature),
		})

		defer stream.Close()

		var tokenInfo core.TokenInfo

		for stream.Next() {
			event := stream.Current()

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if textDelta := variant.Delta.AsTextDelta(); textDelta.Text != "" {
					chunkChan <- core.StreamChunk{Content: textDelta.Text}
				}

			case anthropic.MessageStartEvent:
				tokenInfo.PromptTokens = int(variant.Message.Usage.InputTokens)

			case anthropic.MessageDeltaEvent:
				tokenInfo.CompletionTokens = int(variant.Usage.OutputTokens)
				tokenInfo.TotalTokens = tokenInfo.PromptTokens + tokenInfo.CompletionTokens

				chunkChan <- core.StreamChunk{
					Usage: &tokenInfo,
				}

			case anthropic.MessageStopEvent:
				chunkChan <- core.StreamChunk{Done: true}

			case anthropic.ContentBlockStartEvent:
				// Beginning of a content block, nothing to do

			default:
				logger.Debug(streamCtx, "Received event type: %T", event)
			}
		}

		if err := stream.Err(); err != nil {
			var apiErr *anthropic.Error
			if errors.As(err, &apiErr) {
				logger.Error(streamCtx, "Anthropic streaming error: status code %d", apiErr.StatusCode)
			}
			chunkChan <- core.StreamChunk{
				Error: errs.Wrap(err, errs.LLMGenerationFailed, "streaming failed"),
			}
		}
	}()

	return &core.StreamResponse{
		ChunkChannel: chunkChan,
		Cancel:       cancelFunc,
	}, nil
}
