package fastpath

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/sellside/dealgraph/pkg/types"
)

// PostgresIndex stores chunk embeddings in Postgres with pgvector and
// searches them with cosine distance.
type PostgresIndex struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPostgresIndex connects a pool. The caller owns the lifecycle.
func NewPostgresIndex(ctx context.Context, dsn string, dimensions int) (*PostgresIndex, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &PostgresIndex{pool: pool, dimensions: dimensions}, nil
}

func pgConnErr(op string, err error) error {
	return &types.ConnectionError{Service: "postgres", Op: op, Err: err}
}

// IndexChunks inserts a batch of chunks in one transaction. Re-inserting a
// chunk id is a no-op: chunks are immutable once created.
func (p *PostgresIndex) IndexChunks(ctx context.Context, chunks []*types.ChunkNode) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return err
		}
		if len(chunk.Embedding) != p.dimensions {
			return &types.ValidationError{
				Field:  "embedding",
				Reason: fmt.Sprintf("expected %d dimensions, got %d", p.dimensions, len(chunk.Embedding)),
			}
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return pgConnErr("index_chunks", err)
	}
	defer tx.Rollback(ctx)

	for _, chunk := range chunks {
		_, err := tx.Exec(ctx, `
			INSERT INTO deal_chunks
				(id, content, embedding, document_id, group_id, chunk_index,
				 page_number, chunk_type, token_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING
		`,
			chunk.ID, chunk.Content, pgvector.NewVector(chunk.Embedding),
			chunk.DocumentID, chunk.GroupID, chunk.ChunkIndex,
			chunk.PageNumber, chunk.ChunkType, chunk.TokenCount, chunk.CreatedAt,
		)
		if err != nil {
			return pgConnErr("index_chunks", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return pgConnErr("index_chunks", err)
	}
	return nil
}

// Search runs a cosine-distance lookup scoped by group. Similarity is
// 1 - distance, cut at MinScore, ordered descending.
func (p *PostgresIndex) Search(ctx context.Context, groupID string, vector []float32, opts SearchOptions) ([]ScoredChunk, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, content, document_id, group_id, chunk_index,
		       page_number, chunk_type, token_count, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM deal_chunks
		WHERE group_id = $2
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4
	`, pgvector.NewVector(vector), groupID, opts.MinScore, limit)
	if err != nil {
		return nil, pgConnErr("search", err)
	}
	defer rows.Close()

	var out []ScoredChunk
	for rows.Next() {
		chunk := &types.ChunkNode{}
		var score float64
		err := rows.Scan(
			&chunk.ID, &chunk.Content, &chunk.DocumentID, &chunk.GroupID,
			&chunk.ChunkIndex, &chunk.PageNumber, &chunk.ChunkType,
			&chunk.TokenCount, &chunk.CreatedAt, &score,
		)
		if err != nil {
			return nil, pgConnErr("search", err)
		}
		out = append(out, ScoredChunk{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, pgConnErr("search", err)
	}
	return out, nil
}

// DeleteDocument removes all chunks of one document within a group.
func (p *PostgresIndex) DeleteDocument(ctx context.Context, groupID, documentID string) error {
	if groupID == "" {
		return types.ErrEmptyGroupID
	}
	_, err := p.pool.Exec(ctx,
		`DELETE FROM deal_chunks WHERE group_id = $1 AND document_id = $2`,
		groupID, documentID,
	)
	if err != nil {
		return pgConnErr("delete_document", err)
	}
	return nil
}

// EnsureSchema creates the extension, table and indexes if missing.
func (p *PostgresIndex) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS deal_chunks (
			id          TEXT PRIMARY KEY,
			content     TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			document_id TEXT NOT NULL,
			group_id    TEXT NOT NULL,
			chunk_index INT NOT NULL,
			page_number INT,
			chunk_type  TEXT NOT NULL DEFAULT 'text',
			token_count INT NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, p.dimensions),
		`CREATE INDEX IF NOT EXISTS deal_chunks_group ON deal_chunks (group_id, document_id)`,
		`CREATE INDEX IF NOT EXISTS deal_chunks_embedding ON deal_chunks
			USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return pgConnErr("ensure_schema", err)
		}
	}
	return nil
}

// Ping verifies connectivity.
func (p *PostgresIndex) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return pgConnErr("ping", err)
	}
	return nil
}

// Close releases the pool.
func (p *PostgresIndex) Close() {
	p.pool.Close()
}
