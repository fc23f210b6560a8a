package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/sellside/dealgraph/pkg/types"
)

// StaticEmbedder produces deterministic unit vectors from a content hash.
// It backs tests and local development without network access: identical
// text always maps to the identical vector.
type StaticEmbedder struct {
	dimensions int
	calls      int
}

// NewStaticEmbedder returns a deterministic embedder of the given
// dimensionality.
func NewStaticEmbedder(dimensions int) *StaticEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &StaticEmbedder{dimensions: dimensions}
}

func (s *StaticEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if text == "" {
			return nil, types.ErrEmptyContent
		}
		out[i] = s.vectorFor(text)
	}
	return out, nil
}

func (s *StaticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *StaticEmbedder) Dimensions() int { return s.dimensions }

func (s *StaticEmbedder) Close() error { return nil }

// Calls reports how many Embed batches were issued, used by cache tests.
func (s *StaticEmbedder) Calls() int { return s.calls }

func (s *StaticEmbedder) vectorFor(text string) []float32 {
	vector := make([]float32, s.dimensions)
	seed := sha256.Sum256([]byte(text))

	var norm float64
	for i := range vector {
		// Stretch the 32-byte digest across the vector by re-hashing with
		// the block index.
		block := sha256.Sum256(append(seed[:], byte(i), byte(i>>8)))
		bits := binary.LittleEndian.Uint32(block[:4])
		v := float64(bits)/float64(math.MaxUint32)*2 - 1
		vector[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vector {
			vector[i] = float32(float64(vector[i]) / norm)
		}
	}
	return vector
}
