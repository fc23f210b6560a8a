package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// CachedEmbedder fronts another Client with a badger key-value cache keyed
// by content hash. Identical text never hits the provider twice, which
// matters during re-ingestion of large deal rooms.
type CachedEmbedder struct {
	inner  Client
	db     *badger.DB
	prefix string
	logger *slog.Logger
}

// NewCachedEmbedder opens (or creates) a badger database at path. An empty
// path opens an in-memory database, used by tests.
func NewCachedEmbedder(inner Client, path string, logger *slog.Logger) (*CachedEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}

	return &CachedEmbedder{
		inner:  inner,
		db:     db,
		prefix: fmt.Sprintf("emb:%d:", inner.Dimensions()),
		logger: logger,
	}, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) Close() error {
	if err := c.db.Close(); err != nil {
		return err
	}
	return c.inner.Close()
}

// Embed serves cached vectors where possible and embeds only the misses,
// preserving input order.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		vector, err := c.get(text)
		if err != nil {
			return nil, err
		}
		if vector != nil {
			out[i] = vector
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	embedded, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vector := range embedded {
		out[missIdx[j]] = vector
		if err := c.put(missTexts[j], vector); err != nil {
			// A failed cache write costs a future miss, nothing more.
			c.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	return out, nil
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *CachedEmbedder) key(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return append([]byte(c.prefix), sum[:]...)
}

func (c *CachedEmbedder) get(text string) ([]float32, error) {
	var vector []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(text))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vector = decodeVector(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding cache read: %w", err)
	}
	return vector, nil
}

func (c *CachedEmbedder) put(text string, vector []float32) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.key(text), encodeVector(vector))
	})
}

func encodeVector(vector []float32) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(vector)*4))
	_ = binary.Write(buf, binary.LittleEndian, vector)
	return buf.Bytes()
}

func decodeVector(data []byte) []float32 {
	vector := make([]float32, len(data)/4)
	_ = binary.Read(bytes.NewReader(data), binary.LittleEndian, &vector)
	return vector
}
