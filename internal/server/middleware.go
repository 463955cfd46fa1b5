package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/surveylens/internal/telemetry"
)

// SessionHeader identifies the client session whose comparisons supersede each other
const SessionHeader = "X-Session-ID"

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		if id := c.GetHeader(SessionHeader); id != "" {
			ctx := telemetry.WithAttrs(c.Request.Context(), slog.String("session_id", id))
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
