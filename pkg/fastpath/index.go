// Package fastpath provides the vector-similarity fallback over raw
// document chunks. Chunks are indexed immediately after parsing, before
// graph extraction completes, so queries have something to hit while the
// knowledge graph catches up.
//
// The production implementation stores chunks in Postgres with pgvector;
// an in-memory implementation backs tests and local development. Both are
// tenant-scoped: every query filters by group ID.
package fastpath

import (
	"context"

	"github.com/sellside/dealgraph/pkg/types"
)

// ScoredChunk pairs a chunk with its similarity score.
type ScoredChunk struct {
	Chunk *types.ChunkNode
	Score float64
}

// SearchOptions constrains a fast-path lookup.
type SearchOptions struct {
	Limit    int
	MinScore float64
}

// Index is the fast-path contract. Chunks are created once per parsed
// chunk and never mutated.
type Index interface {
	// IndexChunks stores a batch of chunks. Validation happens before any
	// write.
	IndexChunks(ctx context.Context, chunks []*types.ChunkNode) error

	// Search returns chunks similar to the query vector, scoped by group,
	// above the score threshold, ordered by score descending.
	Search(ctx context.Context, groupID string, vector []float32, opts SearchOptions) ([]ScoredChunk, error)

	// DeleteDocument removes all chunks of a document within a group,
	// used when a document is re-parsed.
	DeleteDocument(ctx context.Context, groupID, documentID string) error

	// EnsureSchema creates the table and vector index if missing. Safe to
	// run on every process start.
	EnsureSchema(ctx context.Context) error

	// Ping verifies connectivity for readiness probes.
	Ping(ctx context.Context) error

	Close()
}
