package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sellside/dealgraph/pkg/types"
)

// CrossEncoderConfig configures the Jina-compatible reranker client. The
// same wire format is served by Jina AI, vLLM and LocalAI.
type CrossEncoderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CrossEncoder scores query/document pairs against a reranking HTTP API. A
// circuit breaker trips after repeated failures so the retrieval path falls
// back to the canonical sort instead of waiting out timeouts.
type CrossEncoder struct {
	cfg    CrossEncoderConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewCrossEncoder creates a cross-encoder client. The logger may be nil.
func NewCrossEncoder(cfg CrossEncoderConfig, logger *slog.Logger) *CrossEncoder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "BAAI/bge-reranker-base"
	}

	settings := gobreaker.Settings{
		Name:     "reranker",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &CrossEncoder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rank replaces each item's score with the cross-encoder's relevance score
// and applies the canonical sort. An empty input returns an empty slice.
func (c *CrossEncoder) Rank(ctx context.Context, query string, items []types.RetrievedItem) ([]types.RetrievedItem, error) {
	if len(items) == 0 {
		return []types.RetrievedItem{}, nil
	}

	documents := make([]string, len(items))
	for i, item := range items {
		documents[i] = item.Content
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.score(ctx, query, documents)
	})
	if err != nil {
		return nil, err
	}
	scores := result.(map[int]float64)

	out := make([]types.RetrievedItem, len(items))
	copy(out, items)
	for i := range out {
		if score, ok := scores[i]; ok {
			out[i].Score = score
		}
	}
	SortCanonical(out)
	return out, nil
}

func (c *CrossEncoder) score(ctx context.Context, query string, documents []string) (map[int]float64, error) {
	body, err := json.Marshal(rerankRequest{
		Model:     c.cfg.Model,
		Query:     query,
		Documents: documents,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &types.ConnectionError{Service: "reranker", Op: "rerank", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &types.RateLimitError{Service: "reranker", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &types.ConnectionError{
			Service: "reranker", Op: "rerank",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, payload),
		}
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	scores := make(map[int]float64, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Index >= 0 && r.Index < len(documents) {
			scores[r.Index] = r.RelevanceScore
		}
	}
	return scores, nil
}
