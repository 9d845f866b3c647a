package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLoggingMiddleware logs all incoming requests.
// It reuses X-Request-ID when the load balancer sent one and echoes it back.
func RequestLoggingMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		c.Header("X-Request-ID", requestID)

		ctx := WithRequestID(c.Request.Context(), requestID)
		ctx = WithOperation(ctx, "http_request")
		c.Request = c.Request.WithContext(ctx)

		log := logger.WithContext(ctx).WithComponent("http")
		log.Debug("request started",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("remote_addr", c.ClientIP()),
		)

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		log.Log(c.Request.Context(), level, "request completed",
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.Int("response_size", c.Writer.Size()),
		)
	}
}
