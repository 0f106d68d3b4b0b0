package service

import (
	"context"
	"testing"
	"time"

	"github.com/robcowart/certproof/internal/config"
	"github.com/robcowart/certproof/internal/crypto"
	"github.com/robcowart/certproof/internal/database"
	"github.com/robcowart/certproof/internal/database/models"
	"github.com/robcowart/certproof/internal/keycache"
	"github.com/robcowart/certproof/internal/proof"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	universityA = "u@x.edu"
	universityB = "v@y.edu"
	studentS    = "s@x.edu"
)

// setupTestDB creates a test database with migrations
func setupTestDB(t *testing.T) (*database.Database, *config.Config) {
	dbPath := t.TempDir() + "/test.db"

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Type: "sqlite",
			SQLite: config.SQLiteConfig{
				Path: dbPath,
			},
		},
		JWT: config.JWTConfig{
			Secret:     "test-secret-12345",
			Expiration: time.Hour,
			Issuer:     "certproof-test",
		},
		Crypto: config.CryptoConfig{
			DigestAlgorithm:    proof.DigestSHA256,
			SignatureAlgorithm: crypto.AlgorithmEd25519,
		},
		Cache:    config.CacheConfig{KeyTTL: time.Minute},
		Issuance: config.IssuanceConfig{FutureTolerance: 24 * time.Hour},
	}

	db, err := database.New(cfg)
	require.NoError(t, err, "Failed to create test database")

	err = db.Migrate()
	require.NoError(t, err, "Failed to run migrations")

	t.Cleanup(func() { db.Close() })
	return db, cfg
}

type testEnv struct {
	db        *database.Database
	cfg       *config.Config
	engine    *proof.Engine
	keys      *KeyService
	directory *DirectoryService
	issuance  *IssuanceService
	ledger    *RevocationLedger
	verifier  *VerificationService
	proofs    *ProofService
	logs      *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, cfg := setupTestDB(t)

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	engine, err := proof.NewEngine(cfg.Crypto.DigestAlgorithm)
	require.NoError(t, err)

	keys := NewKeyService(db, cfg, logger)
	require.NoError(t, keys.Bootstrap(ctx))

	// Password hashes are never checked outside the directory tests.
	now := time.Now().UTC()
	for email, name := range map[string]string{universityA: "X U", universityB: "Y U"} {
		require.NoError(t, db.UpsertUniversity(ctx, &models.University{Email: email, Name: name, PasswordHash: "-", CreatedAt: now}))
	}
	require.NoError(t, db.UpsertStudent(ctx, &models.Student{Email: studentS, Name: "Alice", CreatedAt: now}))

	directory := NewDirectoryService(db, cfg, logger)
	ledger := NewRevocationLedger(db, logger)
	verifier := NewVerificationService(db, engine, keycache.New(keys, nil, cfg.Cache.KeyTTL, logger), ledger, logger)

	return &testEnv{
		db:        db,
		cfg:       cfg,
		engine:    engine,
		keys:      keys,
		directory: directory,
		issuance:  NewIssuanceService(db, cfg, engine, keys, directory, logger),
		ledger:    ledger,
		verifier:  verifier,
		proofs:    NewProofService(engine, keys, verifier, logger),
		logs:      logs,
	}
}

func scenarioRequest() *IssueRequest {
	return &IssueRequest{
		CertificateID:   "CERT-1",
		StudentEmail:    studentS,
		StudentName:     "Alice",
		UniversityEmail: universityA,
		UniversityName:  "X U",
		Major:           "CS",
		DepartmentName:  "Computing",
		CGPA:            "3.8/4.0",
		DateOfIssue:     "2024-05-01",
	}
}

func requireKind(t *testing.T, err error, kind Kind, code Code) *Error {
	t.Helper()
	require.Error(t, err)
	svcErr, ok := AsError(err)
	require.True(t, ok, "expected a classified error, got %v", err)
	assert.Equal(t, kind, svcErr.Kind)
	assert.Equal(t, code, svcErr.Code)
	return svcErr
}
