package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sellside/dealgraph"
	"github.com/sellside/dealgraph/pkg/server/dto"
	"github.com/sellside/dealgraph/pkg/types"
)

// IngestHandler serves the three ingestion channels.
type IngestHandler struct {
	client *dealgraph.Client
}

func NewIngestHandler(client *dealgraph.Client) *IngestHandler {
	return &IngestHandler{client: client}
}

// AddDocument handles POST /api/v1/ingest/documents.
func (h *IngestHandler) AddDocument(c *gin.Context) {
	var req dto.IngestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	scope, err := req.Scope.TenantScope()
	if err != nil {
		badRequest(c, err)
		return
	}

	chunks := make([]dealgraph.DocumentChunk, len(req.Chunks))
	for i, chunk := range req.Chunks {
		chunks[i] = dealgraph.DocumentChunk{
			Content:    chunk.Content,
			ChunkIndex: chunk.ChunkIndex,
			PageNumber: chunk.PageNumber,
			ChunkType:  chunk.ChunkType,
			TokenCount: chunk.TokenCount,
		}
	}
	input := dealgraph.DocumentInput{
		DocumentID:   req.DocumentID,
		DocumentName: req.DocumentName,
		Format:       req.Format,
		Chunks:       chunks,
	}
	if req.OccurredAt != nil {
		input.OccurredAt = *req.OccurredAt
	}

	result, err := h.client.IngestDocumentChunks(c.Request.Context(), scope, input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ingestResponse(result))
}

// AddQAResponse handles POST /api/v1/ingest/qa-responses.
func (h *IngestHandler) AddQAResponse(c *gin.Context) {
	h.addFact(c, types.ChannelQAResponse)
}

// AddChatFact handles POST /api/v1/ingest/chat-facts.
func (h *IngestHandler) AddChatFact(c *gin.Context) {
	h.addFact(c, types.ChannelAnalystChat)
}

func (h *IngestHandler) addFact(c *gin.Context, channel types.SourceChannel) {
	var req dto.IngestFactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	scope, err := req.Scope.TenantScope()
	if err != nil {
		badRequest(c, err)
		return
	}

	input := dealgraph.FactInput{
		MessageID: req.MessageID,
		Content:   req.Content,
		Source:    req.Source,
	}
	if req.OccurredAt != nil {
		input.OccurredAt = *req.OccurredAt
	}

	var result *types.IngestionResult
	if channel == types.ChannelAnalystChat {
		result, err = h.client.IngestChatFact(c.Request.Context(), scope, input)
	} else {
		result, err = h.client.IngestQAResponse(c.Request.Context(), scope, input)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ingestResponse(result))
}

func ingestResponse(result *types.IngestionResult) dto.IngestResponse {
	return dto.IngestResponse{
		EpisodeCount: result.EpisodeCount,
		EpisodeIDs:   result.EpisodeIDs,
		DurationMS:   result.Duration.Milliseconds(),
	}
}

// Episodes handles GET /api/v1/episodes.
func (h *IngestHandler) Episodes(c *gin.Context) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit := intQuery(c, "limit", 20)

	episodes, err := h.client.Episodes(c.Request.Context(), scope, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"episodes": episodes})
}

func scopeFromQuery(c *gin.Context) (types.TenantScope, error) {
	return types.NewTenantScope(c.Query("organization_id"), c.Query("deal_id"))
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// timeQuery parses an RFC 3339 query parameter, defaulting to now.
func timeQuery(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.RFC3339, raw)
}
