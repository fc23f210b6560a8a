package rerank

import (
	"context"
	"math"

	"github.com/sellside/dealgraph/pkg/embedder"
	"github.com/sellside/dealgraph/pkg/types"
)

// EmbeddingReranker scores items by cosine similarity between the query
// embedding and each item's content embedding. Not a true cross-encoder,
// but a reasonable middle ground when no reranking API is deployed.
type EmbeddingReranker struct {
	embedder embedder.Client
}

func NewEmbeddingReranker(client embedder.Client) *EmbeddingReranker {
	return &EmbeddingReranker{embedder: client}
}

func (e *EmbeddingReranker) Rank(ctx context.Context, query string, items []types.RetrievedItem) ([]types.RetrievedItem, error) {
	if len(items) == 0 {
		return []types.RetrievedItem{}, nil
	}

	texts := make([]string, 0, len(items)+1)
	texts = append(texts, query)
	for _, item := range items {
		texts = append(texts, item.Content)
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	queryVec := vectors[0]

	out := make([]types.RetrievedItem, len(items))
	copy(out, items)
	for i := range out {
		out[i].Score = cosine(queryVec, vectors[i+1])
	}
	SortCanonical(out)
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
