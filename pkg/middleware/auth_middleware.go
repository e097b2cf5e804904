package middleware

import (
	"errors"
	"strings"

	"directstock/internal/auth"
	apperrors "directstock/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PerformedByContextKey holds the authenticated operator
const PerformedByContextKey = "performed_by"

// AuthMiddleware validates bearer tokens and records the token subject as the operator
func AuthMiddleware(jwtManager *auth.JWTManager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Warn("Missing authorization header",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			c.AbortWithStatusJSON(401, apperrors.NewUnauthorized("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(401, apperrors.NewUnauthorized("invalid authorization header format"))
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(401, apperrors.NewUnauthorized(msg))
			return
		}

		c.Set(PerformedByContextKey, claims.Subject)
		c.Next()
	}
}

// PerformedBy returns the authenticated operator, falling back to the value the client
// supplied when authentication is disabled
func PerformedBy(c *gin.Context, supplied string) string {
	if v := c.GetString(PerformedByContextKey); v != "" {
		return v
	}
	return supplied
}
