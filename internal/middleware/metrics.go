package middleware

import (
	"strconv"
	"time"

	"github.com/GoPolymarket/itemsale/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records latency and status class per route template.
// The event stream is excluded from latency since it lives for the whole
// connection.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.HTTPResponses.WithLabelValues(endpoint, statusClass(c.Writer.Status())).Inc()
		if c.IsWebsocket() {
			return
		}
		metrics.LatencyBucket.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
