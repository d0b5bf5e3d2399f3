package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/idcard-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics records request duration per matched route. Unrouted paths share a
// single label so probes for random URLs cannot grow the series count.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
