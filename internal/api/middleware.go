package api

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaam8/surbate/internal/models"
	"go.uber.org/zap"
)

const (
	adminTokenHeader = "X-Admin-Token"
	adminTokenKey    = "admin_token"
)

// requestLogger writes one line per request.
func requestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(started)),
			zap.String("ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			l.Error("request", fields...)
		case status >= 400:
			l.Warn("request", fields...)
		default:
			l.Info("request", fields...)
		}
	}
}

func adminToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(c.GetHeader(adminTokenHeader))
}

type authorizer func(ctx context.Context, id, token string) error

// requireAdmin lets the request through only with a live session for the
// aggregate named by the :id path parameter.
func requireAdmin(authorize authorizer, l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := adminToken(c)
		if token == "" {
			abortWithError(c, l, models.ErrUnauthorized)
			return
		}
		if err := authorize(c.Request.Context(), c.Param("id"), token); err != nil {
			abortWithError(c, l, err)
			return
		}
		c.Set(adminTokenKey, token)
		c.Next()
	}
}
