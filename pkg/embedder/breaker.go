package embedder

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerEmbedder wraps a Client with a circuit breaker so a failing
// provider trips fast instead of stalling every ingestion worker on
// timeouts.
type BreakerEmbedder struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerEmbedder wraps inner. The breaker opens when at least three
// requests have been seen in the window and 60% of them failed.
func NewBreakerEmbedder(inner Client, logger *slog.Logger) *BreakerEmbedder {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:     "embedder",
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

	return &BreakerEmbedder{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

func (b *BreakerEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.EmbedQuery(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

func (b *BreakerEmbedder) Dimensions() int { return b.inner.Dimensions() }

func (b *BreakerEmbedder) Close() error { return b.inner.Close() }
