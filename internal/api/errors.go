package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaam8/surbate/internal/models"
	"go.uber.org/zap"
)

func statusOf(kind models.Kind) int {
	switch kind {
	case models.KindValidation, models.KindIneligible:
		return http.StatusBadRequest
	case models.KindUnauthorized:
		return http.StatusUnauthorized
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error as JSON. Unexpected errors never reach
// the client with their text.
func abortWithError(c *gin.Context, l *zap.Logger, err error) {
	kind := models.KindOf(err)
	body := gin.H{
		"error": models.Message(err),
		"kind":  kind,
	}
	var dup *models.DuplicateResponseError
	if errors.As(err, &dup) {
		body["response_code"] = dup.ResponseCode
	}
	if kind == models.KindUnexpected {
		l.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(statusOf(kind), body)
}

func abortBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":  "invalid request body",
		"kind":   models.KindValidation,
		"detail": err.Error(),
	})
}
