package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/certproof/internal/api/middleware"
	"github.com/robcowart/certproof/internal/service"
	"go.uber.org/zap"
)

// UniversityHandler handles the issuing side: issuance, revocation, signing
// keys and the issuance form's student picker
type UniversityHandler struct {
	issuance  *service.IssuanceService
	ledger    *service.RevocationLedger
	keys      *service.KeyService
	directory *service.DirectoryService
	logger    *zap.Logger
}

// NewUniversityHandler creates a new university handler
func NewUniversityHandler(issuance *service.IssuanceService, ledger *service.RevocationLedger, keys *service.KeyService, directory *service.DirectoryService, logger *zap.Logger) *UniversityHandler {
	return &UniversityHandler{
		issuance:  issuance,
		ledger:    ledger,
		keys:      keys,
		directory: directory,
		logger:    logger,
	}
}

// Issue issues and signs a certificate
// @Summary Issue certificate
// @Description Validate, sign and store a certificate for an enrolled student
// @Accept json
// @Produce json
// @Param request body service.IssueRequest true "Certificate fields"
// @Success 200 {object} map[string]interface{}
// @Router /api/university/issue [post]
func (h *UniversityHandler) Issue(c *gin.Context) {
	var req service.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cert, err := h.issuance.Issue(c.Request.Context(), &req, c.GetString(middleware.ContextEmail))
	if err != nil {
		respondError(c, h.logger, err, "issue certificate")
		return
	}

	c.JSON(http.StatusOK, gin.H{"certificate": cert})
}

// RevokeRequest represents a request to revoke a certificate
type RevokeRequest struct {
	CertificateID string `json:"certificateId" binding:"required"`
	Reason        string `json:"reason"`
}

// Revoke revokes a certificate issued by the signed-in university
// @Summary Revoke certificate
// @Accept json
// @Produce json
// @Param request body RevokeRequest true "Revocation request"
// @Success 200 {object} map[string]interface{}
// @Router /api/university/revoke [post]
func (h *UniversityHandler) Revoke(c *gin.Context) {
	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	entry, err := h.ledger.Revoke(c.Request.Context(), req.CertificateID, c.GetString(middleware.ContextEmail), req.Reason)
	if err != nil {
		respondError(c, h.logger, err, "revoke certificate")
		return
	}

	c.JSON(http.StatusOK, gin.H{"revocation": entry})
}

// ListCertificates lists the certificates issued by the signed-in university
// @Router /api/university/certificates [get]
func (h *UniversityHandler) ListCertificates(c *gin.Context) {
	certs, err := h.issuance.ListIssued(c.Request.Context(), c.GetString(middleware.ContextEmail))
	if err != nil {
		respondError(c, h.logger, err, "list certificates")
		return
	}
	c.JSON(http.StatusOK, gin.H{"certificates": certs})
}

// ListStudents lists enrolled students
// @Router /api/university/students [get]
func (h *UniversityHandler) ListStudents(c *gin.Context) {
	students, err := h.directory.ListStudents(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "list students")
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

// ListKeys lists the signing keys of the signed-in university
// @Router /api/university/keys [get]
func (h *UniversityHandler) ListKeys(c *gin.Context) {
	keys, err := h.keys.ListKeys(c.Request.Context(), c.GetString(middleware.ContextEmail))
	if err != nil {
		respondError(c, h.logger, err, "list signing keys")
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RotateKey retires the active signing key and provisions a new one.
// Certificates signed under retired keys still verify
// @Router /api/university/keys/rotate [post]
func (h *UniversityHandler) RotateKey(c *gin.Context) {
	key, err := h.keys.RotateKey(c.Request.Context(), c.GetString(middleware.ContextEmail))
	if err != nil {
		respondError(c, h.logger, err, "rotate signing key")
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}
