// Package handlers implements the certproof HTTP endpoints on top of the
// service layer.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/certproof/internal/service"
	"go.uber.org/zap"
)

// statusFor maps a classified failure to its HTTP status.
func statusFor(e *service.Error) int {
	switch e.Kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuth:
		if e.Code == service.CodeUnauthenticated {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindIntegrity, service.KindRevoked:
		return http.StatusUnprocessableEntity
	case service.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {error, kind, code, field?}. Unclassified
// errors are logged and reported without detail.
func respondError(c *gin.Context, logger *zap.Logger, err error, action string) {
	svcErr, ok := service.AsError(err)
	if !ok {
		logger.Error("Failed to "+action, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
		return
	}

	status := statusFor(svcErr)
	if status >= http.StatusInternalServerError {
		logger.Error("Failed to "+action, zap.Error(err))
	}

	body := gin.H{
		"error": svcErr.Message,
		"kind":  svcErr.Kind,
		"code":  svcErr.Code,
	}
	if svcErr.Field != "" {
		body["field"] = svcErr.Field
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": err.Error(),
		"kind":  service.KindValidation,
		"code":  service.CodeInvalidField,
	})
}
