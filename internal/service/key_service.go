package service

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robcowart/certproof/internal/config"
	"github.com/robcowart/certproof/internal/crypto"
	"github.com/robcowart/certproof/internal/database"
	"github.com/robcowart/certproof/internal/database/models"
	"github.com/robcowart/certproof/internal/proof"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	systemKeyMasterKey = "master_key"
	systemKeyJWTSecret = "jwt_secret"
)

// KeyInfo is the public view of a registered signing key
type KeyInfo struct {
	KeyID           string     `json:"keyId"`
	UniversityEmail string     `json:"universityEmail"`
	Algorithm       string     `json:"algorithm"`
	PublicKeyPEM    string     `json:"publicKeyPem"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"createdAt"`
	RetiredAt       *time.Time `json:"retiredAt,omitempty"`
}

func keyInfoFromModel(k *models.SigningKey) *KeyInfo {
	info := &KeyInfo{
		KeyID:           k.KeyID,
		UniversityEmail: k.UniversityEmail,
		Algorithm:       k.Algorithm,
		PublicKeyPEM:    k.PublicKeyPEM,
		Active:          k.Active,
		CreatedAt:       k.CreatedAt,
	}
	if k.RetiredAt.Valid {
		retired := k.RetiredAt.Time
		info.RetiredAt = &retired
	}
	return info
}

// KeyService owns the signing key registry. Private keys are sealed with the
// master key at rest and only ever unsealed to sign for their own university
type KeyService struct {
	db        *database.Database
	cfg       *config.Config
	logger    *zap.Logger
	masterKey []byte
}

// NewKeyService creates a new key service
func NewKeyService(db *database.Database, cfg *config.Config, logger *zap.Logger) *KeyService {
	return &KeyService{
		db:     db,
		cfg:    cfg,
		logger: logger.With(zap.String("service", "keys")),
	}
}

// Bootstrap loads the master key and the JWT secret. Values missing from the
// configuration are generated once and persisted in system_config, so every
// instance sharing the database agrees on them
func (s *KeyService) Bootstrap(ctx context.Context) error {
	masterHex := s.cfg.Crypto.MasterKey
	if masterHex == "" {
		stored, err := s.initSecret(ctx, systemKeyMasterKey)
		if err != nil {
			return fmt.Errorf("failed to initialize master key: %w", err)
		}
		masterHex = stored
	}

	masterKey, err := hex.DecodeString(masterHex)
	if err != nil {
		return fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(masterKey) != crypto.MasterKeySize {
		return fmt.Errorf("master key must be %d bytes, got %d", crypto.MasterKeySize, len(masterKey))
	}
	s.masterKey = masterKey

	if s.cfg.JWT.Secret == "" {
		secret, err := s.initSecret(ctx, systemKeyJWTSecret)
		if err != nil {
			return fmt.Errorf("failed to initialize JWT secret: %w", err)
		}
		s.cfg.JWT.Secret = secret
	}

	return nil
}

func (s *KeyService) initSecret(ctx context.Context, name string) (string, error) {
	fresh, err := crypto.GenerateMasterKey()
	if err != nil {
		return "", err
	}
	return s.db.InitSystemConfig(ctx, name, hex.EncodeToString(fresh))
}

// ActiveSigningKey returns the university's current signing key, creating
// one on first use
func (s *KeyService) ActiveSigningKey(ctx context.Context, universityEmail string) (*proof.SigningKey, error) {
	ctx, span := tracer.Start(ctx, "KeyService.ActiveSigningKey")
	defer span.End()

	row, err := s.db.GetActiveSigningKey(ctx, universityEmail)
	if errors.Is(err, sql.ErrNoRows) {
		row, err = s.provision(ctx, universityEmail)
	}
	if err != nil {
		span.RecordError(err)
		return nil, transient("failed to load signing key", err)
	}
	span.SetAttributes(attribute.String("key_id", row.KeyID))

	return s.unseal(row)
}

func (s *KeyService) provision(ctx context.Context, universityEmail string) (*models.SigningKey, error) {
	row, err := s.newKey(universityEmail)
	if err != nil {
		return nil, err
	}
	row.Active = true

	err = s.db.CreateSigningKey(ctx, row)
	if errors.Is(err, database.ErrDuplicate) {
		// Another request provisioned first; use its key.
		return s.db.GetActiveSigningKey(ctx, universityEmail)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Signing key provisioned",
		zap.String("university", universityEmail),
		zap.String("key_id", row.KeyID),
		zap.String("algorithm", row.Algorithm),
	)
	return row, nil
}

func (s *KeyService) newKey(universityEmail string) (*models.SigningKey, error) {
	if s.masterKey == nil {
		return nil, fmt.Errorf("key service is not bootstrapped")
	}

	pair, err := crypto.GenerateKeyPair(s.cfg.Crypto.SignatureAlgorithm)
	if err != nil {
		return nil, err
	}

	keyID := uuid.New().String()
	sealed, err := crypto.SealPrivateKey(pair.PrivateKeyDER, s.masterKey, keyID)
	if err != nil {
		return nil, err
	}

	return &models.SigningKey{
		KeyID:           keyID,
		UniversityEmail: universityEmail,
		Algorithm:       pair.Algorithm,
		PublicKeyPEM:    pair.PublicKeyPEM,
		PrivateKeyEnc:   sealed,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func (s *KeyService) unseal(row *models.SigningKey) (*proof.SigningKey, error) {
	if s.masterKey == nil {
		return nil, fmt.Errorf("key service is not bootstrapped")
	}

	der, err := crypto.OpenPrivateKey(row.PrivateKeyEnc, s.masterKey, row.KeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal key %s: %w", row.KeyID, err)
	}

	signer, err := crypto.ParsePrivateKey(der, row.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to load key %s: %w", row.KeyID, err)
	}

	return &proof.SigningKey{KeyID: row.KeyID, Algorithm: row.Algorithm, Signer: signer}, nil
}

// RotateKey retires the university's active key and registers a new one.
// Retired keys stay resolvable so earlier proofs keep verifying
func (s *KeyService) RotateKey(ctx context.Context, universityEmail string) (*KeyInfo, error) {
	ctx, span := tracer.Start(ctx, "KeyService.RotateKey")
	defer span.End()

	row, err := s.newKey(universityEmail)
	if err != nil {
		return nil, err
	}

	if err := s.db.RotateSigningKey(ctx, row); err != nil {
		span.RecordError(err)
		return nil, transient("failed to rotate signing key", err)
	}

	s.logger.Info("Signing key rotated",
		zap.String("university", universityEmail),
		zap.String("key_id", row.KeyID),
		zap.String("algorithm", row.Algorithm),
	)
	return keyInfoFromModel(row), nil
}

// ListKeys returns every key registered to a university, newest first
func (s *KeyService) ListKeys(ctx context.Context, universityEmail string) ([]*KeyInfo, error) {
	rows, err := s.db.ListSigningKeys(ctx, universityEmail)
	if err != nil {
		return nil, transient("failed to list signing keys", err)
	}

	keys := make([]*KeyInfo, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, keyInfoFromModel(row))
	}
	return keys, nil
}

// GetKey returns the public view of one key
func (s *KeyService) GetKey(ctx context.Context, keyID string) (*KeyInfo, error) {
	row, err := s.db.GetSigningKey(ctx, keyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("signing key not found")
	}
	if err != nil {
		return nil, transient("failed to load signing key", err)
	}
	return keyInfoFromModel(row), nil
}

// ResolvePublicKey implements proof.PublicKeyResolver against the registry
func (s *KeyService) ResolvePublicKey(ctx context.Context, keyID string) (*proof.PublicKey, error) {
	ctx, span := tracer.Start(ctx, "KeyService.ResolvePublicKey")
	defer span.End()

	row, err := s.db.GetSigningKey(ctx, keyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, proof.ErrUnknownKey
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load key %s: %w", keyID, err)
	}

	pub, err := crypto.ParsePublicKeyPEM(row.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key %s: %w", keyID, err)
	}

	return &proof.PublicKey{
		KeyID:     row.KeyID,
		Algorithm: row.Algorithm,
		Owner:     row.UniversityEmail,
		Key:       pub,
	}, nil
}
