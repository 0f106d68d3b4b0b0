package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robcowart/certproof/internal/api/middleware"
	"github.com/robcowart/certproof/internal/service"
	"go.uber.org/zap"
)

// AuthHandler handles sign-in and profile lookups for both roles
type AuthHandler struct {
	directory *service.DirectoryService
	logger    *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(directory *service.DirectoryService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		directory: directory,
		logger:    logger,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UniversityLogin authenticates a university
// @Summary University login
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} map[string]interface{}
// @Router /api/university/login [post]
func (h *AuthHandler) UniversityLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, university, err := h.directory.LoginUniversity(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("Login failed", zap.String("role", "university"), zap.String("email", req.Email), zap.Error(err))
		respondError(c, h.logger, err, "log in")
		return
	}

	h.logger.Info("University logged in", zap.String("email", university.Email))

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"university": university,
	})
}

// StudentLogin authenticates a student
// @Summary Student login
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} map[string]interface{}
// @Router /api/student/login [post]
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	token, student, err := h.directory.LoginStudent(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("Login failed", zap.String("role", "student"), zap.String("email", req.Email), zap.Error(err))
		respondError(c, h.logger, err, "log in")
		return
	}

	h.logger.Info("Student logged in", zap.String("email", student.Email))

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"student": student,
	})
}

// UniversityProfile returns the signed-in university
// @Router /api/university/profile [get]
func (h *AuthHandler) UniversityProfile(c *gin.Context) {
	university, err := h.directory.GetUniversity(c.Request.Context(), c.GetString(middleware.ContextEmail))
	if err != nil {
		respondError(c, h.logger, err, "load profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"university": university})
}

// StudentProfile returns the signed-in student
// @Router /api/student/profile [get]
func (h *AuthHandler) StudentProfile(c *gin.Context) {
	student, err := h.directory.GetStudent(c.Request.Context(), c.GetString(middleware.ContextEmail))
	if err != nil {
		respondError(c, h.logger, err, "load profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": student})
}

// Logout ends a session. Sessions are stateless tokens, so the client
// discarding its token is the whole of it; expired tokens are accepted
// @Router /api/university/logout [post]
// @Router /api/student/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
