// Package embedder produces dense vectors for chunks, entities and queries.
// The production client calls the OpenAI embeddings API; a badger-backed
// cache in front of it avoids re-embedding identical content, and a circuit
// breaker keeps a failing provider from stalling ingestion.
package embedder

import "context"

// Client is the embedding contract. Implementations must return vectors of
// exactly Dimensions() floats, in input order.
type Client interface {
	// Embed embeds a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed output dimensionality.
	Dimensions() int

	Close() error
}
