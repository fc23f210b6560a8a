// Package rerank orders merged retrieval candidates. The production
// reranker calls a Jina-compatible cross-encoder HTTP API; when it is
// unreachable the coordinator falls back to the canonical sort over the
// scores the retrieval paths already produced.
package rerank

import (
	"context"
	"sort"

	"github.com/sellside/dealgraph/pkg/types"
)

// Reranker reorders candidates by relevance to the query. Implementations
// must tolerate an empty input and return items sorted by score descending.
type Reranker interface {
	Rank(ctx context.Context, query string, items []types.RetrievedItem) ([]types.RetrievedItem, error)
}

// SortCanonical orders items in place: score descending, ties broken by
// source-channel precedence (analyst chat over Q&A over documents), then by
// recency. Every reranker's output passes through this so equal-scored
// items still land in a deterministic order.
func SortCanonical(items []types.RetrievedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if pa, pb := a.Channel.Precedence(), b.Channel.Precedence(); pa != pb {
			return pa > pb
		}
		return a.OccurredAt.After(b.OccurredAt)
	})
}

// NoopReranker applies only the canonical sort. It backs deployments
// without a cross-encoder and is the fallback when the breaker is open.
type NoopReranker struct{}

func (NoopReranker) Rank(ctx context.Context, query string, items []types.RetrievedItem) ([]types.RetrievedItem, error) {
	out := make([]types.RetrievedItem, len(items))
	copy(out, items)
	SortCanonical(out)
	return out, nil
}
