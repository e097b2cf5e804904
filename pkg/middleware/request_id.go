package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader is the HTTP header name for request ID
	RequestIDHeader = "X-Request-ID"
	// RequestIDContextKey is the gin context key for request ID
	RequestIDContextKey = "request_id"
)

// RequestIDMiddleware extracts or generates X-Request-ID and echoes it on the response.
// Request ids are for correlation only; deduplication is keyed by the operation id header.
func RequestIDMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
			logger.Debug("Generated new request ID",
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
		}

		c.Set(RequestIDContextKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDContextKey)
}
