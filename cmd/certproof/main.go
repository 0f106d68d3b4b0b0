package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"
	"github.com/robcowart/certproof/internal/api"
	"github.com/robcowart/certproof/internal/api/middleware"
	"github.com/robcowart/certproof/internal/config"
	"github.com/robcowart/certproof/internal/database"
	"github.com/robcowart/certproof/internal/keycache"
	"github.com/robcowart/certproof/internal/proof"
	"github.com/robcowart/certproof/internal/service"
	"github.com/robcowart/certproof/internal/tracing"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	flags, configFile, showVersion := config.ParseFlags()

	if showVersion {
		fmt.Println("certproof v" + version)
		os.Exit(0)
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting certproof",
		zap.String("version", version),
		zap.String("database", cfg.Database.Type),
		zap.String("digest_algorithm", cfg.Crypto.DigestAlgorithm),
		zap.String("signature_algorithm", cfg.Crypto.SignatureAlgorithm),
	)

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, &cfg.Tracing)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	db, err := database.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	engine, err := proof.NewEngine(cfg.Crypto.DigestAlgorithm)
	if err != nil {
		logger.Fatal("Invalid digest algorithm", zap.Error(err))
	}

	keys := service.NewKeyService(db, cfg, logger)
	if err := keys.Bootstrap(ctx); err != nil {
		logger.Fatal("Failed to load key material", zap.Error(err))
	}

	directory := service.NewDirectoryService(db, cfg, logger)
	if cfg.Directory.SeedFile != "" {
		seed, err := service.LoadSeedFile(cfg.Directory.SeedFile)
		if err != nil {
			logger.Fatal("Failed to read directory seed", zap.Error(err))
		}
		if err := directory.ApplySeed(ctx, seed); err != nil {
			logger.Fatal("Failed to apply directory seed", zap.Error(err))
		}
	}

	var shared keycache.Memcache
	if cfg.Cache.MemcachedAddr != "" {
		shared = memcache.New(cfg.Cache.MemcachedAddr)
		logger.Info("Using shared key cache", zap.String("memcached", cfg.Cache.MemcachedAddr))
	}
	resolver := keycache.New(keys, shared, cfg.Cache.KeyTTL, logger)

	var rateLimit middleware.RateLimitStore
	if cfg.Security.RateLimitEnabled {
		if cfg.Cache.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Cache.RedisAddr,
				Password: cfg.Cache.RedisPassword,
				DB:       cfg.Cache.RedisDB,
			})
			defer client.Close()
			rateLimit = middleware.NewRedisRateLimitStore(client, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow)
			logger.Info("Using shared rate limit store", zap.String("redis", cfg.Cache.RedisAddr))
		} else {
			rateLimit = middleware.NewLocalRateLimitStore(cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow)
		}
	}

	ledger := service.NewRevocationLedger(db, logger)
	verifier := service.NewVerificationService(db, engine, resolver, ledger, logger)

	router := api.NewRouter(cfg, &api.Services{
		DB:         db,
		Keys:       keys,
		Directory:  directory,
		Issuance:   service.NewIssuanceService(db, cfg, engine, keys, directory, logger),
		Revocation: ledger,
		Verifier:   verifier,
		Proofs:     service.NewProofService(engine, keys, verifier, logger),
		RateLimit:  rateLimit,
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server",
			zap.String("address", srv.Addr),
			zap.Bool("tls", cfg.Server.TLSEnabled),
		)

		var err error
		if cfg.Server.TLSEnabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	if cfg.Logging.Output != "" && cfg.Logging.Output != "stdout" {
		zapConfig.OutputPaths = []string{cfg.Logging.Output}
	}

	return zapConfig.Build()
}
