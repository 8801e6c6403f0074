package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/wasmfetch/observability"
)

// Metrics records request counts, latency and response sizes per route.
func Metrics(m *observability.ServerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		m.RecordRequestStart(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "static"
		}
		m.RecordRequestEnd(ctx, route, c.Writer.Status(), max(c.Writer.Size(), 0), time.Since(start))
	}
}
