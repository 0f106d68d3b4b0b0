// Package api provides HTTP routing for the certproof service. It wires
// handlers and middleware over an already constructed service layer.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/robcowart/certproof/internal/api/handlers"
	"github.com/robcowart/certproof/internal/api/middleware"
	"github.com/robcowart/certproof/internal/config"
	"github.com/robcowart/certproof/internal/database"
	"github.com/robcowart/certproof/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Services holds everything the routes call into. RateLimit may be nil,
// which disables rate limiting.
type Services struct {
	DB         *database.Database
	Keys       *service.KeyService
	Directory  *service.DirectoryService
	Issuance   *service.IssuanceService
	Revocation *service.RevocationLedger
	Verifier   *service.VerificationService
	Proofs     *service.ProofService
	RateLimit  middleware.RateLimitStore
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, svc *Services, logger *zap.Logger) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg))

	healthHandler := handlers.NewHealthHandler(svc.DB, logger)
	authHandler := handlers.NewAuthHandler(svc.Directory, logger)
	universityHandler := handlers.NewUniversityHandler(svc.Issuance, svc.Revocation, svc.Keys, svc.Directory, logger)
	studentHandler := handlers.NewStudentHandler(svc.Issuance, logger)
	verifyHandler := handlers.NewVerifyHandler(svc.Verifier, svc.Proofs, logger)
	certHandler := handlers.NewCertificateHandler(svc.Issuance, svc.Keys, logger)

	router.GET("/api/health", healthHandler.Health)
	router.POST("/api/university/login", authHandler.UniversityLogin)
	router.POST("/api/student/login", authHandler.StudentLogin)
	router.POST("/api/university/logout", authHandler.Logout)
	router.POST("/api/student/logout", authHandler.Logout)

	// Public verification routes
	public := router.Group("/api")
	if svc.RateLimit != nil {
		public.Use(middleware.RateLimitMiddleware(svc.RateLimit, logger))
	}
	{
		public.GET("/verify", verifyHandler.Verify)
		public.GET("/verify/:id", verifyHandler.VerifyByID)
		public.POST("/verify", verifyHandler.VerifyPresented)
		public.GET("/certificate/:id", certHandler.GetCertificate)
		public.HEAD("/certificate/:id", certHandler.HeadCertificate)
		public.GET("/keys/:keyId", certHandler.GetKey)
	}

	university := router.Group("/api")
	university.Use(middleware.AuthMiddleware(cfg), middleware.RequireUniversity())
	{
		university.GET("/university/profile", authHandler.UniversityProfile)
		university.GET("/university/students", universityHandler.ListStudents)
		university.POST("/university/issue", universityHandler.Issue)
		university.POST("/university/revoke", universityHandler.Revoke)
		university.GET("/university/certificates", universityHandler.ListCertificates)
		university.GET("/university/keys", universityHandler.ListKeys)
		university.POST("/university/keys/rotate", universityHandler.RotateKey)
		university.POST("/generateProof", verifyHandler.GenerateProof)
	}

	student := router.Group("/api/student")
	student.Use(middleware.AuthMiddleware(cfg), middleware.RequireStudent())
	{
		student.GET("/profile", authHandler.StudentProfile)
		student.GET("/certificates", studentHandler.ListCertificates)
	}

	return router
}
