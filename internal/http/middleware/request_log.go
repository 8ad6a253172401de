package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/plotwise/plotwise-backend/internal/platform/ctxutil"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
)

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		td := ctxutil.GetTraceData(c.Request.Context())
		cd := ctxutil.GetCallerData(c.Request.Context())

		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if td != nil {
			if td.TraceID != "" {
				fields = append(fields, "trace_id", td.TraceID)
			}
			if td.RequestID != "" {
				fields = append(fields, "request_id", td.RequestID)
			}
		}
		if cd != nil {
			if cd.CallerID != "" {
				fields = append(fields, "caller_id", cd.CallerID)
			}
			if cd.SessionID != "" {
				fields = append(fields, "session_id", cd.SessionID)
			}
		}

		switch {
		case status >= 500:
			log.Error("http request", fields...)
		case status >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}
