// Package middleware provides HTTP middleware for the certproof API server:
// session authentication, access logging, CORS and rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/certproof/internal/auth"
	"github.com/robcowart/certproof/internal/config"
)

// Context keys set by AuthMiddleware
const (
	ContextEmail = "email"
	ContextName  = "name"
	ContextRole  = "role"
)

// AuthMiddleware validates session tokens and sets the account context
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := auth.ValidateToken(parts[1], cfg.JWT.Secret, cfg.JWT.Issuer)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ContextEmail, claims.Email())
		c.Set(ContextName, claims.Name)
		c.Set(ContextRole, claims.Role)

		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
		"kind":  "AUTH",
		"code":  "UNAUTHENTICATED",
	})
}

// RequireRole rejects sessions of any other role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient permissions",
				"kind":  "AUTH",
				"code":  "FORBIDDEN",
			})
			return
		}
		c.Next()
	}
}

// RequireUniversity admits university sessions only
func RequireUniversity() gin.HandlerFunc {
	return RequireRole(auth.RoleUniversity)
}

// RequireStudent admits student sessions only
func RequireStudent() gin.HandlerFunc {
	return RequireRole(auth.RoleStudent)
}
