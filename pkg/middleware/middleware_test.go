package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"directstock/internal/auth"
	"directstock/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestIDMiddleware_GenerateID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware(zap.NewNop()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestRequestIDMiddleware_UseProvidedID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware(zap.NewNop()))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "scanner-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "scanner-42", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "scanner-42", w.Body.String())
}

func TestErrorHandler_MapsDomainErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler(zap.NewNop()))
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(domain.NewNotFound("product", "p-9"))
	})
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("dial tcp 10.0.0.1:5432: connection refused"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"not_found"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryHandler(zap.NewNop()))
	router.GET("/panic", func(c *gin.Context) { panic("bad") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := auth.NewJWTManager("secret", time.Minute, zap.NewNop())
	router := gin.New()
	router.Use(AuthMiddleware(manager, zap.NewNop()))
	router.POST("/op", func(c *gin.Context) {
		c.String(http.StatusOK, PerformedBy(c, "spoofed"))
	})

	token, err := manager.GenerateToken("clerk-1")
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"valid token overrides body", "Bearer " + token, http.StatusOK, "clerk-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/op", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestPerformedBy_FallsBackToSupplied(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "clerk-2", PerformedBy(c, "clerk-2"))
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware("X-Operation-ID"))
	router.POST("/op", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/op", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Operation-ID")
}
