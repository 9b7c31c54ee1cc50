package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/opsflow/opsflow/core"
)

// OpenAIClient implements core.AIClient over the OpenAI chat
// completions API. Any OpenAI-compatible endpoint works via
// WithBaseURL.
type OpenAIClient struct {
	client       openai.Client
	defaultModel string
	logger       core.Logger
}

// ClientOption configures the OpenAI client
type ClientOption func(*clientConfig)

type clientConfig struct {
	apiKey  string
	baseURL string
	model   string
	logger  core.Logger
}

// WithAPIKey sets the API key (default: OPENAI_API_KEY)
func WithAPIKey(key string) ClientOption {
	return func(c *clientConfig) {
		c.apiKey = key
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint
func WithBaseURL(url string) ClientOption {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithModel sets the default model
func WithModel(model string) ClientOption {
	return func(c *clientConfig) {
		c.model = model
	}
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// NewOpenAIClient creates an OpenAI-backed AI client
func NewOpenAIClient(opts ...ClientOption) (*OpenAIClient, error) {
	cfg := &clientConfig{
		apiKey: core.GetEnvString("OPENAI_API_KEY", ""),
		model:  "gpt-4o-mini",
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.apiKey == "" {
		return nil, fmt.Errorf("openai api key not configured: set OPENAI_API_KEY or use WithAPIKey()")
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(cfg.apiKey)}
	if cfg.baseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &OpenAIClient{
		client:       openai.NewClient(requestOpts...),
		defaultModel: cfg.model,
		logger:       cfg.logger,
	}, nil
}

// GenerateResponse sends a single-turn chat completion request
func (c *OpenAIClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	if options == nil {
		options = &core.AIOptions{}
	}
	model := options.Model
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if options.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(options.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if options.Temperature > 0 {
		params.Temperature = openai.Float(options.Temperature)
	}
	if options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(options.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.logger.Error("Chat completion failed", map[string]interface{}{
			"operation": "chat_completion",
			"model":     model,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", core.ErrPlannerUnavailable, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion returned no choices", core.ErrPlannerUnavailable)
	}

	return &core.AIResponse{
		Content: completion.Choices[0].Message.Content,
		Model:   completion.Model,
		Usage: core.TokenUsage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

// Ensure OpenAIClient implements core.AIClient
var _ core.AIClient = (*OpenAIClient)(nil)
