// Package handlers implements the HTTP endpoints over the pipeline client.
// Handlers bind and validate, call the client, and translate pipeline errors
// to status codes; nothing else lives here.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sellside/dealgraph/pkg/server/dto"
	"github.com/sellside/dealgraph/pkg/types"
)

// writeError maps pipeline errors onto the uniform error body.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case types.IsValidationError(err),
		errors.Is(err, types.ErrEmptyContent),
		errors.Is(err, types.ErrEmptyQuery),
		errors.Is(err, types.ErrEmptyGroupID):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, types.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case types.IsRateLimitError(err):
		status, code = http.StatusTooManyRequests, "rate_limited"
	case types.IsConnectionError(err):
		status, code = http.StatusServiceUnavailable, "upstream_unavailable"
	}

	c.JSON(status, dto.ErrorResponse{Error: code, Message: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
}
