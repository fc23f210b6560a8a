package fastpath

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/sellside/dealgraph/pkg/types"
)

// MemoryIndex is an in-memory Index for tests and local development.
type MemoryIndex struct {
	mu      sync.RWMutex
	chunks  map[string]*types.ChunkNode
	failing bool
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{chunks: make(map[string]*types.ChunkNode)}
}

// SetFailing makes every subsequent call return a ConnectionError. Tests
// use this to exercise fallback paths.
func (m *MemoryIndex) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func (m *MemoryIndex) checkFailing() error {
	if m.failing {
		return &types.ConnectionError{Service: "fastpath", Op: "simulated"}
	}
	return nil
}

func (m *MemoryIndex) IndexChunks(ctx context.Context, chunks []*types.ChunkNode) error {
	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFailing(); err != nil {
		return err
	}
	for _, chunk := range chunks {
		if _, exists := m.chunks[chunk.GroupID+"|"+chunk.ID]; exists {
			continue
		}
		copied := *chunk
		m.chunks[chunk.GroupID+"|"+chunk.ID] = &copied
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, groupID string, vector []float32, opts SearchOptions) ([]ScoredChunk, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkFailing(); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var out []ScoredChunk
	for _, chunk := range m.chunks {
		if chunk.GroupID != groupID {
			continue
		}
		score := cosineSimilarity(vector, chunk.Embedding)
		if score < opts.MinScore {
			continue
		}
		copied := *chunk
		out = append(out, ScoredChunk{Chunk: &copied, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryIndex) DeleteDocument(ctx context.Context, groupID, documentID string) error {
	if groupID == "" {
		return types.ErrEmptyGroupID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFailing(); err != nil {
		return err
	}
	for key, chunk := range m.chunks {
		if chunk.GroupID == groupID && chunk.DocumentID == documentID {
			delete(m.chunks, key)
		}
	}
	return nil
}

func (m *MemoryIndex) EnsureSchema(ctx context.Context) error { return nil }

func (m *MemoryIndex) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkFailing()
}

func (m *MemoryIndex) Close() {}

func cosineSimilarity(a, b []float32) float64 {
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
