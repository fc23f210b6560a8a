package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sellside/dealgraph"
	"github.com/sellside/dealgraph/pkg/server/dto"
)

// RetrieveHandler serves the query side.
type RetrieveHandler struct {
	client *dealgraph.Client
}

func NewRetrieveHandler(client *dealgraph.Client) *RetrieveHandler {
	return &RetrieveHandler{client: client}
}

// Search handles POST /api/v1/retrieve.
func (h *RetrieveHandler) Search(c *gin.Context) {
	var req dto.RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	scope, err := req.Scope.TenantScope()
	if err != nil {
		badRequest(c, err)
		return
	}

	opts := dealgraph.RetrieveOptions{
		MaxResults: req.MaxResults,
		MinScore:   req.MinScore,
	}
	if req.BudgetMS > 0 {
		opts.Budget = time.Duration(req.BudgetMS) * time.Millisecond
	}
	if req.AsOf != nil {
		opts.AsOf = *req.AsOf
	}

	result, err := h.client.Retrieve(c.Request.Context(), scope, req.Query, opts)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RetrieveResponse{
		Items:          result.Items,
		Citations:      result.Citations,
		PathUsed:       result.PathUsed,
		Latency:        result.Latency,
		BudgetExceeded: result.BudgetExceeded,
		Degraded:       result.Degraded,
	})
}

// FactAt handles GET /api/v1/facts. It answers the point-in-time question
// for one semantic key.
func (h *RetrieveHandler) FactAt(c *gin.Context) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	key := c.Query("semantic_key")
	at, err := timeQuery(c, "at")
	if err != nil {
		badRequest(c, err)
		return
	}

	fact, err := h.client.FactValidAt(c.Request.Context(), scope, key, at)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fact": fact})
}
