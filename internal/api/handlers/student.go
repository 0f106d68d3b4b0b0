package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/certproof/internal/api/middleware"
	"github.com/robcowart/certproof/internal/service"
	"go.uber.org/zap"
)

// StudentHandler serves the holder's view of their certificates
type StudentHandler struct {
	issuance *service.IssuanceService
	logger   *zap.Logger
}

// NewStudentHandler creates a new student handler
func NewStudentHandler(issuance *service.IssuanceService, logger *zap.Logger) *StudentHandler {
	return &StudentHandler{
		issuance: issuance,
		logger:   logger,
	}
}

// ListCertificates lists the certificates held by the signed-in student
// @Router /api/student/certificates [get]
func (h *StudentHandler) ListCertificates(c *gin.Context) {
	certs, err := h.issuance.ListHeld(c.Request.Context(), c.GetString(middleware.ContextEmail))
	if err != nil {
		respondError(c, h.logger, err, "list certificates")
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificates": certs})
}
