package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marinewatch/marine/internal/domain"
	"github.com/marinewatch/marine/internal/logger"
)

// respondError maps the pipeline error taxonomy onto HTTP status codes.
// Concurrency conflicts are reported as 409 with an explanatory body since
// losing a trigger race means the work is already happening elsewhere.
func respondError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	switch {
	case errors.Is(err, domain.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":  err.Error(),
			"benign": true,
		})
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case domain.IsExternalTool(err):
		logger.CtxError(ctx, "External tool failure: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		logger.CtxError(ctx, "Internal failure: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
