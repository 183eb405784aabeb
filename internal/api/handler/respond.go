package handler

import (
	"errors"
	"net/http"

	"github.com/Laellekoenig/tables/internal/repository"
	"github.com/Laellekoenig/tables/internal/service"
	"github.com/gin-gonic/gin"
)

// respondError maps service and repository errors to HTTP responses.
// Ownership misses surface as 404 so resource existence is never leaked
// across users.
// Parameters:
//   - c: Gin request context.
//   - err: error to map.
// Returns: none (writes JSON response).
func respondError(c *gin.Context, err error) {
	var validation service.ValidationError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found."})
	case errors.Is(err, service.ErrNoCode),
		errors.Is(err, service.ErrNotAwaitingApproval),
		errors.Is(err, service.ErrSelfParent),
		errors.Is(err, service.ErrParentNotInProject),
		errors.Is(err, service.ErrParentHasNoOutput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
	}
}
