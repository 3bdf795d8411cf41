package middleware

import (
	"strconv"
	"time"

	"report-intake-go/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics 记录请求数与耗时。route 使用注册时的路由模板，避免 ID 导致标签膨胀。
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
