package handlers

import (
	"net/http"

	apperrors "directstock/pkg/errors"
	"directstock/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// bindJSON decodes the body into dest. Malformed bodies are answered here with a 400
// written directly, so an idempotent retry of the same bad request replays it.
func bindJSON(c *gin.Context, dest any, logger *zap.Logger) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		logger.Warn("Invalid request", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusBadRequest, apperrors.NewInvalidRequest("invalid request body", err))
		return false
	}
	return true
}

// performer reads the optional {"performed_by"} body of transition endpoints
func performer(c *gin.Context, logger *zap.Logger) (string, bool) {
	var req PerformerRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req, logger) {
			return "", false
		}
	}
	return middleware.PerformedBy(c, req.PerformedBy), true
}

// fail hands err to the error middleware. The idempotency middleware treats it as a
// business failure and rolls the request back.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}
