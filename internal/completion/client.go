// Package completion talks to the upstream OpenAI-compatible
// chat-completion service and classifies its failure modes so the API
// layer can map each to a distinct caller-visible reply.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/rhyniox/voicerelay/internal/httpkit"
)

// Sentinel errors for the three distinguishable failure classes. The
// caller picks the HTTP status and reply text; this package never
// surfaces upstream error detail beyond the log.
var (
	// ErrMissingKey means no API credential is configured. Checked
	// before any network call is attempted.
	ErrMissingKey = errors.New("completion API key not configured")

	// ErrUpstream covers transport failures, timeouts, and non-2xx
	// responses from the completion endpoint.
	ErrUpstream = errors.New("completion service unavailable")

	// ErrEmptyCompletion means the endpoint answered 2xx but returned
	// no usable completion text.
	ErrEmptyCompletion = errors.New("completion response contained no text")
)

// Config holds the settings for one upstream endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Client sends persona-framed chat completions upstream.
type Client struct {
	api    *openai.Client
	apiKey string
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a completion client. The underlying HTTP client
// comes from httpkit so a hung upstream connection cannot stall a
// request forever; pass the per-call deadline via context as well.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = httpkit.NewClient(
		// Per-request deadlines come from the caller's context; the
		// client timeout is a backstop only.
		httpkit.WithTimeout(0),
	)

	return &Client{
		api:    openai.NewClientWithConfig(oc),
		apiKey: cfg.APIKey,
		cfg:    cfg,
		logger: logger.With("provider", "completion"),
	}
}

// Ask sends the system instructions and user message upstream and
// returns the raw completion text. All failures map onto the package
// sentinels via errors.Is.
func (c *Client) Ask(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingKey
	}

	c.logger.Debug("preparing completion request",
		"model", c.cfg.Model,
		"system_len", len(system),
		"user_len", len(user),
	)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			c.logger.Error("completion API error",
				"status", apiErr.HTTPStatusCode,
				"message", apiErr.Message,
			)
		} else {
			c.logger.Error("completion request failed", "error", err)
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.logger.Error("completion response empty", "model", resp.Model, "choices", len(resp.Choices))
		return "", ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("completion received",
		"model", resp.Model,
		"content_len", len(text),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return text, nil
}
