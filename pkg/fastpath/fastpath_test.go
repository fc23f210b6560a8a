package fastpath

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellside/dealgraph/pkg/types"
)

// unitVec returns a 2-d unit vector whose cosine similarity with (1, 0)
// is exactly sim.
func unitVec(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func chunk(id, groupID, documentID string, embedding []float32) *types.ChunkNode {
	return &types.ChunkNode{
		ID:         id,
		Content:    "chunk " + id,
		Embedding:  embedding,
		DocumentID: documentID,
		GroupID:    groupID,
		ChunkType:  "text",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSearchOrdersByScoreDescending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := NewMemoryIndex()
	group := "org_deal"

	require.NoError(t, index.IndexChunks(ctx, []*types.ChunkNode{
		chunk("ch-1", group, "doc-1", unitVec(0.9)),
		chunk("ch-2", group, "doc-1", unitVec(0.4)),
		chunk("ch-3", group, "doc-1", unitVec(0.95)),
	}))

	got, err := index.Search(ctx, group, []float32{1, 0}, SearchOptions{Limit: 10, MinScore: 0.3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "ch-3", got[0].Chunk.ID)
	assert.Equal(t, "ch-1", got[1].Chunk.ID)
	assert.Equal(t, "ch-2", got[2].Chunk.ID)
	assert.InDelta(t, 0.95, got[0].Score, 1e-6)
	assert.InDelta(t, 0.4, got[2].Score, 1e-6)
}

func TestSearchAppliesThresholdAndLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := NewMemoryIndex()
	group := "org_deal"

	require.NoError(t, index.IndexChunks(ctx, []*types.ChunkNode{
		chunk("ch-1", group, "doc-1", unitVec(0.9)),
		chunk("ch-2", group, "doc-1", unitVec(0.2)),
		chunk("ch-3", group, "doc-1", unitVec(0.8)),
	}))

	got, err := index.Search(ctx, group, []float32{1, 0}, SearchOptions{Limit: 1, MinScore: 0.5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ch-1", got[0].Chunk.ID)
}

func TestSearchScopedByGroup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := NewMemoryIndex()

	require.NoError(t, index.IndexChunks(ctx, []*types.ChunkNode{
		chunk("ch-a", "orgA_deal1", "doc-1", unitVec(0.9)),
		chunk("ch-b", "orgB_deal2", "doc-2", unitVec(0.9)),
	}))

	got, err := index.Search(ctx, "orgA_deal1", []float32{1, 0}, SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ch-a", got[0].Chunk.ID)
}

func TestIndexChunksIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := NewMemoryIndex()
	group := "org_deal"

	batch := []*types.ChunkNode{chunk("ch-1", group, "doc-1", unitVec(0.9))}
	require.NoError(t, index.IndexChunks(ctx, batch))
	require.NoError(t, index.IndexChunks(ctx, batch))

	got, err := index.Search(ctx, group, []float32{1, 0}, SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestIndexChunksValidatesBeforeWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := NewMemoryIndex()

	err := index.IndexChunks(ctx, []*types.ChunkNode{
		{ID: "ch-1", Content: "text", GroupID: "org_deal"}, // no document id
	})
	assert.True(t, types.IsValidationError(err))
}

func TestDeleteDocumentRemovesOnlyThatDocument(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := NewMemoryIndex()
	group := "org_deal"

	require.NoError(t, index.IndexChunks(ctx, []*types.ChunkNode{
		chunk("ch-1", group, "doc-1", unitVec(0.9)),
		chunk("ch-2", group, "doc-2", unitVec(0.8)),
	}))
	require.NoError(t, index.DeleteDocument(ctx, group, "doc-1"))

	got, err := index.Search(ctx, group, []float32{1, 0}, SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ch-2", got[0].Chunk.ID)
}

func TestSearchReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := NewMemoryIndex()
	group := "org_deal"

	require.NoError(t, index.IndexChunks(ctx, []*types.ChunkNode{
		chunk("ch-1", group, "doc-1", unitVec(0.9)),
	}))

	first, err := index.Search(ctx, group, []float32{1, 0}, SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Chunk.Content = "mutated by caller"

	second, err := index.Search(ctx, group, []float32{1, 0}, SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "chunk ch-1", second[0].Chunk.Content,
		"indexed chunks are immutable, callers get copies")
}

func TestFailingIndexReturnsConnectionError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	index := NewMemoryIndex()
	index.SetFailing(true)

	_, err := index.Search(ctx, "org_deal", []float32{1, 0}, SearchOptions{})
	assert.True(t, types.IsConnectionError(err))
}
