package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/sellside/dealgraph/pkg/types"
)

const (
	// DefaultModel is text-embedding-3-small, 1536 dimensions.
	DefaultModel      = "text-embedding-3-small"
	DefaultDimensions = 1536
	maxRetries        = 2
)

// OpenAIConfig configures the OpenAI embedding client.
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// OpenAIEmbedder calls the OpenAI embeddings API with bounded retries and a
// client-side rate limiter.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewOpenAIEmbedder creates an embedder from config. The logger may be nil.
func NewOpenAIEmbedder(cfg OpenAIConfig, logger *slog.Logger) *OpenAIEmbedder {
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
		limiter:    limiter,
		logger:     logger,
	}
}

func (o *OpenAIEmbedder) Dimensions() int { return o.dimensions }

func (o *OpenAIEmbedder) Close() error { return nil }

// Embed embeds a batch of texts in one API call, retrying transient
// failures with exponential backoff.
func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, types.ErrEmptyContent
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			o.logger.Warn("retrying embedding request",
				"attempt", attempt+1, "backoff", backoff, "batch_size", len(texts))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model:      o.model,
			Input:      texts,
			Dimensions: o.dimensions,
		})
		if err != nil {
			lastErr = err
			if isRateLimited(err) {
				if attempt == maxRetries {
					return nil, &types.RateLimitError{Service: "openai", Err: err}
				}
				continue
			}
			if isRetriable(err) && attempt < maxRetries {
				continue
			}
			return nil, &types.ConnectionError{Service: "openai", Op: "embed", Err: err}
		}

		if len(resp.Data) != len(texts) {
			return nil, &types.EmbeddingError{
				Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
			}
		}

		out := make([][]float32, len(resp.Data))
		for _, item := range resp.Data {
			if len(item.Embedding) != o.dimensions {
				return nil, &types.EmbeddingError{
					Err: fmt.Errorf("expected %d dimensions, got %d", o.dimensions, len(item.Embedding)),
				}
			}
			out[item.Index] = item.Embedding
		}
		return out, nil
	}

	return nil, &types.EmbeddingError{Err: fmt.Errorf("all retries exhausted: %w", lastErr)}
}

// EmbedQuery embeds a single query string.
func (o *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func isRateLimited(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "rate limit") || strings.Contains(s, "rate_limit") ||
		strings.Contains(s, "429")
}

func isRetriable(err error) bool {
	s := strings.ToLower(err.Error())
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
