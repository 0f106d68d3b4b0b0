package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/certproof/internal/config"
	"github.com/stretchr/testify/assert"
)

func corsRouter(cfg *config.Config) *gin.Engine {
	router := setupTestRouter()
	router.Use(CORSMiddleware(cfg))
	router.GET("/api/verify", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"verdict": "VALID"})
	})
	router.POST("/api/university/issue", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})
	return router
}

func corsConfig(origins ...string) *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{CORSEnabled: true, CORSOrigins: origins},
	}
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("Preflight from an allowed origin", func(t *testing.T) {
		router := corsRouter(corsConfig("http://localhost:3000"))

		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodHead} {
			req, _ := http.NewRequest(http.MethodOptions, "/api/university/issue", nil)
			req.Header.Set("Origin", "http://localhost:3000")
			req.Header.Set("Access-Control-Request-Method", method)
			req.Header.Set("Access-Control-Request-Headers", "Authorization,Content-Type")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), method)
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
		}
	})

	t.Run("Explicit origins allow credentials", func(t *testing.T) {
		router := corsRouter(corsConfig("http://localhost:3000", "https://example.com"))

		for _, origin := range []string{"http://localhost:3000", "https://example.com"} {
			req, _ := http.NewRequest(http.MethodGet, "/api/verify", nil)
			req.Header.Set("Origin", origin)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		}
	})

	t.Run("Disallowed origin gets no allow header", func(t *testing.T) {
		router := corsRouter(corsConfig("http://localhost:3000"))

		req, _ := http.NewRequest(http.MethodGet, "/api/verify", nil)
		req.Header.Set("Origin", "http://evil.com")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.NotEqual(t, "http://evil.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Wildcard opens verification to any site", func(t *testing.T) {
		router := corsRouter(corsConfig("*"))

		req, _ := http.NewRequest(http.MethodGet, "/api/verify", nil)
		req.Header.Set("Origin", "https://employer.example")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("Disabled CORS sets no headers", func(t *testing.T) {
		router := corsRouter(&config.Config{})

		req, _ := http.NewRequest(http.MethodGet, "/api/verify", nil)
		req.Header.Set("Origin", "http://localhost:3000")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}
