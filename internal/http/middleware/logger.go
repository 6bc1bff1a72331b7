package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Logger emits one access-log line per request once the handler chain has
// run. The tenant is attached when the request names one, so dispatch
// traffic can be filtered per tenant.
func Logger(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		status := c.Writer.Status()
		ev := l.Info()
		if status >= 500 {
			ev = l.Error()
		}
		if rid, ok := c.Get(RequestIDHeader); ok {
			ev = ev.Str("request_id", rid.(string))
		}
		if tenant := c.Query("tenant_id"); tenant != "" {
			ev = ev.Str("tenant_id", tenant)
		}
		ev.Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
