package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/born-ml/textgrad/internal/tokenizer"
)

// Provider identifies an OpenAI-compatible chat completion service.
type Provider string

// Supported providers.
const (
	ProviderOpenAI Provider = "openai"
	ProviderGroq   Provider = "groq"
)

// groqBaseURL is Groq's OpenAI-compatible endpoint.
const groqBaseURL = "https://api.groq.com/openai/v1"

// ErrPromptTooLong is returned when the prompt alone fills the context window.
var ErrPromptTooLong = errors.New("engine: prompt exceeds context window")

// apiKeyEnv returns the environment variable holding the provider's key.
func (p Provider) apiKeyEnv() string {
	switch p {
	case ProviderGroq:
		return "GROQ_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// ChatConfig configures a Chat engine.
type ChatConfig struct {
	// Provider selects the endpoint and API key variable. Default: openai.
	Provider Provider

	// Model is the provider's model identifier. Required.
	Model string

	// APIKey overrides the provider's environment variable.
	APIKey string

	// BaseURL overrides the provider's endpoint (proxies, local servers).
	BaseURL string

	// SystemPrompt is used when a call does not supply one.
	// Default: DefaultSystemPrompt.
	SystemPrompt string

	// Defaults fills unset GenerateOptions fields.
	// Default: temperature 0.5, max tokens 1024, top_p 1.
	Defaults GenerateOptions

	// ContextWindow is the model's total token budget. 0 disables clamping.
	ContextWindow int

	// Tokenizer counts prompt tokens for clamping. Default: tokenizer.Approximate.
	Tokenizer tokenizer.Counter

	// RequestsPerSecond enables a client-side rate limit. 0 disables it.
	RequestsPerSecond float64

	// Burst is the rate limiter's bucket size. Default: 1.
	Burst int

	// HTTPClient overrides the transport.
	HTTPClient *http.Client

	// Logger for request logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// Chat is an Engine backed by an OpenAI-compatible chat completion API.
type Chat struct {
	client    *openai.Client
	model     string
	system    string
	defaults  GenerateOptions
	window    int
	tokenizer tokenizer.Counter
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewChat creates a Chat engine.
//
// Missing credentials or model are reported here as ErrConfig, never deferred
// to the first Generate call.
func NewChat(cfg ChatConfig) (*Chat, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Provider != ProviderOpenAI && cfg.Provider != ProviderGroq {
		return nil, configError("unknown provider %q", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, configError("model is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv(cfg.Provider.apiKeyEnv()))
	}
	if apiKey == "" {
		logger.Error("API key not set", slog.String("env", cfg.Provider.apiKeyEnv()))
		return nil, configError("please set the %s environment variable to use %s models", cfg.Provider.apiKeyEnv(), cfg.Provider)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	switch {
	case cfg.BaseURL != "":
		clientCfg.BaseURL = cfg.BaseURL
	case cfg.Provider == ProviderGroq:
		clientCfg.BaseURL = groqBaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	system := cfg.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	defaults := cfg.Defaults
	if defaults.Temperature == nil {
		defaults.Temperature = Float32(0.5)
	}
	if defaults.MaxTokens == nil {
		defaults.MaxTokens = Int(1024)
	}
	if defaults.TopP == nil {
		defaults.TopP = Float32(1)
	}

	counter := cfg.Tokenizer
	if counter == nil {
		counter = tokenizer.Approximate
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}

	logger.Info("initializing chat engine",
		slog.String("provider", string(cfg.Provider)),
		slog.String("model", cfg.Model),
	)

	return &Chat{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		system:    system,
		defaults:  defaults,
		window:    cfg.ContextWindow,
		tokenizer: counter,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// Model returns the model identifier.
func (c *Chat) Model() string {
	return c.model
}

// SystemPrompt returns the default system prompt.
func (c *Chat) SystemPrompt() string {
	return c.system
}

// Generate implements Engine.
func (c *Chat) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	system := opts.SystemPrompt
	if system == "" {
		system = c.system
	}
	temperature := derefOr(opts.Temperature, *c.defaults.Temperature)
	topP := derefOr(opts.TopP, *c.defaults.TopP)
	maxTokens := derefOr(opts.MaxTokens, *c.defaults.MaxTokens)

	if c.window > 0 {
		used := c.tokenizer.Count(system) + c.tokenizer.Count(prompt)
		remaining := c.window - used
		if remaining <= 0 {
			return "", fmt.Errorf("%w: %d prompt tokens, window %d", ErrPromptTooLong, used, c.window)
		}
		maxTokens = min(maxTokens, remaining)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		TopP:        topP,
	}
	if isReasoningModel(c.model) {
		// Reasoning models reject max_tokens and sampling overrides.
		req.MaxTokens = 0
		req.MaxCompletionTokens = maxTokens
		req.Temperature = 0
		req.TopP = 0
	}

	c.logger.Debug("generating text", slog.String("model", c.model), slog.Int("prompt_bytes", len(prompt)))
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", transientError(ErrEmptyResponse)
	}
	c.logger.Debug("received response",
		slog.String("model", c.model),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
	)
	return resp.Choices[0].Message.Content, nil
}

// classify maps provider failures onto ErrConfig / ErrTransient.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrConfig, err)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500, status == 0:
		return transientError(err)
	default:
		return fmt.Errorf("chat completion failed: %w", err)
	}
}

func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3")
}

func derefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
