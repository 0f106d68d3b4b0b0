package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/certproof/internal/api/middleware"
	"github.com/robcowart/certproof/internal/credential"
	"github.com/robcowart/certproof/internal/service"
	"go.uber.org/zap"
)

// VerifyHandler handles public verification and proof regeneration
type VerifyHandler struct {
	verifier *service.VerificationService
	proofs   *service.ProofService
	logger   *zap.Logger
}

// NewVerifyHandler creates a new verify handler
func NewVerifyHandler(verifier *service.VerificationService, proofs *service.ProofService, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{
		verifier: verifier,
		proofs:   proofs,
		logger:   logger,
	}
}

// Verify checks a stored certificate named by the certificateId query
// parameter. Every verdict, NOT_FOUND included, is a 200
// @Summary Verify certificate
// @Produce json
// @Param certificateId query string true "Certificate ID"
// @Success 200 {object} service.Verification
// @Router /api/verify [get]
func (h *VerifyHandler) Verify(c *gin.Context) {
	id := c.Query("certificateId")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "certificateId is required",
			"kind":  service.KindValidation,
			"code":  service.CodeInvalidField,
			"field": "certificateId",
		})
		return
	}
	h.verify(c, id)
}

// VerifyByID is the path form of Verify
// @Router /api/verify/{id} [get]
func (h *VerifyHandler) VerifyByID(c *gin.Context) {
	h.verify(c, c.Param("id"))
}

func (h *VerifyHandler) verify(c *gin.Context, id string) {
	v, err := h.verifier.Verify(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "verify certificate")
		return
	}
	c.JSON(http.StatusOK, v)
}

// PresentRequest carries a certificate held outside the store
type PresentRequest struct {
	Certificate *credential.Certificate `json:"certificate" binding:"required"`
}

// VerifyPresented checks a certificate supplied in full by its holder
// @Summary Verify presented certificate
// @Accept json
// @Produce json
// @Param request body PresentRequest true "Presented certificate"
// @Success 200 {object} service.Verification
// @Router /api/verify [post]
func (h *VerifyHandler) VerifyPresented(c *gin.Context) {
	var req PresentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	v, err := h.verifier.VerifyPresented(c.Request.Context(), req.Certificate)
	if err != nil {
		respondError(c, h.logger, err, "verify certificate")
		return
	}
	c.JSON(http.StatusOK, v)
}

// GenerateProofRequest names the certificate to sign again
type GenerateProofRequest struct {
	CertificateID string `json:"certificateId" binding:"required"`
}

// GenerateProof recomputes the proof of a certificate under the issuing
// university's active key. Nothing is stored
// @Summary Generate proof
// @Accept json
// @Produce json
// @Param request body GenerateProofRequest true "Certificate to sign"
// @Success 200 {object} service.ProofResult
// @Router /api/generateProof [post]
func (h *VerifyHandler) GenerateProof(c *gin.Context) {
	var req GenerateProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.proofs.GenerateProof(c.Request.Context(), req.CertificateID, c.GetString(middleware.ContextEmail))
	if err != nil {
		respondError(c, h.logger, err, "generate proof")
		return
	}
	c.JSON(http.StatusOK, result)
}
