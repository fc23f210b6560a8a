// Package dto holds the HTTP request and response shapes. Validation lives
// here so handlers stay thin; anything that passes Validate is safe to hand
// to the pipeline.
package dto

import (
	"errors"
	"strings"
	"time"

	"github.com/sellside/dealgraph/pkg/types"
)

// MaxContentLength bounds a single chunk or fact body.
const MaxContentLength = 100_000

var ErrContentTooLong = errors.New("content exceeds maximum length")

// Scope carries the tenant pair every request must name.
type Scope struct {
	OrganizationID string `json:"organization_id" binding:"required"`
	DealID         string `json:"deal_id" binding:"required"`
}

func (s Scope) TenantScope() (types.TenantScope, error) {
	return types.NewTenantScope(s.OrganizationID, s.DealID)
}

// Chunk is one parsed document chunk on the wire.
type Chunk struct {
	Content    string `json:"content" binding:"required"`
	ChunkIndex int    `json:"chunk_index"`
	PageNumber *int   `json:"page_number,omitempty"`
	ChunkType  string `json:"chunk_type,omitempty"`
	TokenCount int    `json:"token_count,omitempty"`
}

func (c Chunk) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return errors.New("chunk content cannot be empty")
	}
	if len(c.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// IngestDocumentRequest is the body of POST /api/v1/ingest/documents.
type IngestDocumentRequest struct {
	Scope        Scope      `json:"scope" binding:"required"`
	DocumentID   string     `json:"document_id" binding:"required"`
	DocumentName string     `json:"document_name"`
	Format       string     `json:"format,omitempty"`
	Chunks       []Chunk    `json:"chunks" binding:"required"`
	OccurredAt   *time.Time `json:"occurred_at,omitempty"`
}

func (r IngestDocumentRequest) Validate() error {
	if len(r.Chunks) == 0 {
		return errors.New("chunks cannot be empty")
	}
	for _, c := range r.Chunks {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IngestFactRequest is the body of the qa-responses and chat-facts routes.
type IngestFactRequest struct {
	Scope      Scope      `json:"scope" binding:"required"`
	MessageID  string     `json:"message_id"`
	Content    string     `json:"content" binding:"required"`
	Source     string     `json:"source,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

func (r IngestFactRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(r.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// IngestResponse reports the episodes an ingestion call produced.
type IngestResponse struct {
	EpisodeCount int      `json:"episode_count"`
	EpisodeIDs   []string `json:"episode_ids"`
	DurationMS   int64    `json:"duration_ms"`
}

// RetrieveRequest is the body of POST /api/v1/retrieve.
type RetrieveRequest struct {
	Scope      Scope      `json:"scope" binding:"required"`
	Query      string     `json:"query" binding:"required"`
	MaxResults int        `json:"max_results,omitempty"`
	BudgetMS   int        `json:"budget_ms,omitempty"`
	MinScore   float64    `json:"min_score,omitempty"`
	AsOf       *time.Time `json:"as_of,omitempty"`
}

// RetrieveResponse wraps the pipeline's retrieval result.
type RetrieveResponse struct {
	Items          []types.RetrievedItem `json:"items"`
	Citations      []types.Citation      `json:"citations"`
	PathUsed       types.RetrievalPath   `json:"path_used"`
	Latency        types.PhaseLatency    `json:"latency"`
	BudgetExceeded bool                  `json:"budget_exceeded,omitempty"`
	Degraded       bool                  `json:"degraded,omitempty"`
}

// ResolutionRequest names two entities for evaluate, merge or split.
type ResolutionRequest struct {
	Scope       Scope  `json:"scope" binding:"required"`
	DuplicateID string `json:"duplicate_id" binding:"required"`
	CanonicalID string `json:"canonical_id" binding:"required"`
}

// ResolutionOutcomeResponse reports an evaluation.
type ResolutionOutcomeResponse struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// AmbiguousPair is one candidate pair awaiting manual resolution.
type AmbiguousPair struct {
	First  *types.Entity `json:"first"`
	Second *types.Entity `json:"second"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
