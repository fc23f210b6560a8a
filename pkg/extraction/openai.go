package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/sellside/dealgraph/pkg/types"
)

const (
	defaultModel = "gpt-4o-mini"
	maxRetries   = 2
)

// OpenAIConfig configures the extraction chat client.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// OpenAIClient implements ChatClient against the OpenAI chat completions
// API with bounded retries.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}
}

func (c *OpenAIClient) Close() error { return nil }

// Complete sends one system/user exchange and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			c.logger.Warn("retrying extraction request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			s := strings.ToLower(err.Error())
			if strings.Contains(s, "rate limit") || strings.Contains(s, "429") {
				if attempt == maxRetries {
					return "", &types.RateLimitError{Service: "openai", Err: err}
				}
				continue
			}
			if retriable(s) && attempt < maxRetries {
				continue
			}
			return "", &types.ConnectionError{Service: "openai", Op: "chat_completion", Err: err}
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no choices returned")
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("all retries exhausted: %w", lastErr)
}

func retriable(s string) bool {
	for _, marker := range []string{
		"timeout", "connection", "internal server error",
		"service unavailable", "bad gateway", "gateway timeout",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
