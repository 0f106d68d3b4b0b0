package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robcowart/certproof/internal/config"
)

// CORSMiddleware configures CORS based on configuration. A "*" origin opens
// the API to every site; sessions travel as bearer tokens, so credentials
// are only allowed for explicit origins.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.Security.CORSEnabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "If-None-Match"},
		ExposeHeaders: []string{"Content-Length", "ETag"},
		MaxAge:        12 * time.Hour,
	}

	for _, origin := range cfg.Security.CORSOrigins {
		if origin == "*" {
			config.AllowAllOrigins = true
		}
	}
	if !config.AllowAllOrigins {
		config.AllowOrigins = cfg.Security.CORSOrigins
		config.AllowCredentials = true
	}

	return cors.New(config)
}
