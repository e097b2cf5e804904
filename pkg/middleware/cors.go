package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows browser clients from any origin. The idempotency header is
// listed so that scanners and dashboards can send it cross-origin.
func CORSMiddleware(idempotencyHeader string) gin.HandlerFunc {
	allowed := strings.Join([]string{"Content-Type", "Authorization", "Accept", RequestIDHeader, idempotencyHeader}, ", ")
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		c.Header("Access-Control-Allow-Headers", allowed)
		c.Header("Access-Control-Expose-Headers", RequestIDHeader+", "+ReplayHeader)
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
