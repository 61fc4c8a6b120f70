package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/willsmith28/Cookbook/internal/recipes"
	"go.uber.org/zap"
)

type codedError interface {
	Code() string
}

// respondError writes the response for a failed operation. Domain errors map
// to client statuses; anything else is logged and reported as a 500 carrying
// the operation code.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	var (
		validationErr *recipes.ValidationError
		notFoundErr   *recipes.NotFoundError
		forbiddenErr  *recipes.ForbiddenError
		sequencingErr *recipes.SequencingError
		conflictErr   *recipes.ConflictError
		coded         codedError
	)
	switch {
	case errors.Is(err, errInvalidBody):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Request body must be a JSON object"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"fields":  validationErr.Fields,
			"message": strings.Join(validationErr.Messages(), " "),
		})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": notFoundErr.Error()})
	case errors.As(err, &forbiddenErr):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": forbiddenErr.Error()})
	case errors.As(err, &sequencingErr):
		c.JSON(http.StatusConflict, gin.H{"error": "step_sequence", "message": sequencingErr.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": conflictErr.Error()})
	case errors.As(err, &coded):
		h.logger.Error("request failed", zap.String("code", coded.Code()), zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": coded.Code()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func notFound(resource string) error {
	return &recipes.NotFoundError{Resource: resource}
}
