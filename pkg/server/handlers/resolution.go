package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sellside/dealgraph"
	"github.com/sellside/dealgraph/pkg/server/dto"
	"github.com/sellside/dealgraph/pkg/types"
)

// ResolutionHandler serves the manual entity-resolution operations.
type ResolutionHandler struct {
	client *dealgraph.Client
}

func NewResolutionHandler(client *dealgraph.Client) *ResolutionHandler {
	return &ResolutionHandler{client: client}
}

// Evaluate handles POST /api/v1/resolution/evaluate.
func (h *ResolutionHandler) Evaluate(c *gin.Context) {
	var req dto.ResolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	scope, err := req.Scope.TenantScope()
	if err != nil {
		badRequest(c, err)
		return
	}

	outcome, err := h.client.EvaluateResolution(c.Request.Context(), scope, req.DuplicateID, req.CanonicalID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ResolutionOutcomeResponse{
		Decision:   string(outcome.Decision),
		Confidence: outcome.Confidence,
		Reason:     outcome.Reason,
	})
}

// Merge handles POST /api/v1/resolution/merge.
func (h *ResolutionHandler) Merge(c *gin.Context) {
	h.apply(c, h.client.MergeEntities)
}

// Split handles POST /api/v1/resolution/split.
func (h *ResolutionHandler) Split(c *gin.Context) {
	h.apply(c, h.client.SplitEntities)
}

func (h *ResolutionHandler) apply(c *gin.Context, op func(ctx context.Context, scope types.TenantScope, duplicateID, canonicalID string) error) {
	var req dto.ResolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	scope, err := req.Scope.TenantScope()
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := op(c.Request.Context(), scope, req.DuplicateID, req.CanonicalID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Ambiguous handles GET /api/v1/resolution/ambiguous. It lists same-kind
// pairs the policy cannot decide, for the manual queue.
func (h *ResolutionHandler) Ambiguous(c *gin.Context) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	kind, ok := types.ParseKind(c.DefaultQuery("kind", "company"))
	if !ok {
		badRequest(c, &types.ValidationError{Field: "kind", Reason: "unknown entity kind"})
		return
	}
	limit := intQuery(c, "limit", 50)

	pairs, err := h.client.AmbiguousPairs(c.Request.Context(), scope, kind, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]dto.AmbiguousPair, len(pairs))
	for i, pair := range pairs {
		out[i] = dto.AmbiguousPair{First: pair[0], Second: pair[1]}
	}
	c.JSON(http.StatusOK, gin.H{"pairs": out})
}
