package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/certproof/internal/service"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

// CertificateHandler serves stored records and public keys for display.
// Neither response asserts validity
type CertificateHandler struct {
	issuance *service.IssuanceService
	keys     *service.KeyService
	logger   *zap.Logger
}

// NewCertificateHandler creates a new certificate handler
func NewCertificateHandler(issuance *service.IssuanceService, keys *service.KeyService, logger *zap.Logger) *CertificateHandler {
	return &CertificateHandler{
		issuance: issuance,
		keys:     keys,
		logger:   logger,
	}
}

// GetCertificate returns a stored certificate. The ETag changes when the
// record's status does
// @Summary Get certificate
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/certificate/{id} [get]
func (h *CertificateHandler) GetCertificate(c *gin.Context) {
	cert, err := h.issuance.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err, "get certificate")
		return
	}

	body, err := json.Marshal(gin.H{"certificate": cert})
	if err != nil {
		respondError(c, h.logger, err, "get certificate")
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxh3.Hash(body))
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// HeadCertificate reports whether a certificate exists
// @Router /api/certificate/{id} [head]
func (h *CertificateHandler) HeadCertificate(c *gin.Context) {
	exists, err := h.issuance.Exists(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to check certificate", zap.String("id", c.Param("id")), zap.Error(err))
		c.Status(http.StatusServiceUnavailable)
		return
	}
	if !exists {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

// GetKey returns a signing key's public half and metadata
// @Router /api/keys/{keyId} [get]
func (h *CertificateHandler) GetKey(c *gin.Context) {
	key, err := h.keys.GetKey(c.Request.Context(), c.Param("keyId"))
	if err != nil {
		respondError(c, h.logger, err, "get signing key")
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}
