package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/robcowart/certproof/internal/canonical"
	"github.com/robcowart/certproof/internal/credential"
	"github.com/robcowart/certproof/internal/database"
	"github.com/robcowart/certproof/internal/proof"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Verification is the outcome of checking one certificate.
type Verification struct {
	Verdict       proof.Verdict               `json:"verdict"`
	CertificateID string                      `json:"certificateId"`
	Detail        string                      `json:"detail,omitempty"`
	Certificate   *credential.Certificate     `json:"certificate,omitempty"`
	Revocation    *credential.RevocationEntry `json:"revocation,omitempty"`
	CheckedAt     time.Time                   `json:"checkedAt"`
}

// VerificationService produces verdicts for stored and presented certificates.
// It only needs public keys.
type VerificationService struct {
	db       *database.Database
	engine   *proof.Engine
	resolver proof.PublicKeyResolver
	ledger   *RevocationLedger
	logger   *zap.Logger
	now      func() time.Time
}

// NewVerificationService creates a new verification service.
func NewVerificationService(db *database.Database, engine *proof.Engine, resolver proof.PublicKeyResolver, ledger *RevocationLedger, logger *zap.Logger) *VerificationService {
	return &VerificationService{
		db:       db,
		engine:   engine,
		resolver: resolver,
		ledger:   ledger,
		logger:   logger.With(zap.String("service", "verification")),
		now:      time.Now,
	}
}

// Verify checks the stored certificate with the given id. The error is
// non-nil only when storage or key resolution fails; every other outcome is
// a verdict.
func (s *VerificationService) Verify(ctx context.Context, certificateID string) (*Verification, error) {
	ctx, span := tracer.Start(ctx, "VerificationService.Verify")
	defer span.End()

	certificateID = strings.TrimSpace(certificateID)
	span.SetAttributes(attribute.String("certificate_id", certificateID))

	v := &Verification{CertificateID: certificateID, CheckedAt: s.now().UTC()}

	if certificateID == "" {
		v.Verdict = proof.NotFound
		return v, nil
	}

	row, err := s.db.GetCertificate(ctx, certificateID)
	if errors.Is(err, sql.ErrNoRows) {
		v.Verdict = proof.NotFound
		return v, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, transient("failed to load certificate", err)
	}

	v.Certificate = credential.FromModel(row)
	if err := s.check(ctx, v, v.Certificate); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("verdict", string(v.Verdict)))
	return v, nil
}

// VerifyPresented checks a full certificate payload supplied by its holder.
// The record need not be in this store; only the issuer's public key and the
// revocation ledger are consulted.
func (s *VerificationService) VerifyPresented(ctx context.Context, cert *credential.Certificate) (*Verification, error) {
	ctx, span := tracer.Start(ctx, "VerificationService.VerifyPresented")
	defer span.End()

	v := &Verification{CheckedAt: s.now().UTC()}
	if cert == nil {
		v.Verdict = proof.Tampered
		v.Detail = "certificate is missing"
		return v, nil
	}

	presented := *cert
	if presented.SchemaVersion == "" {
		presented.SchemaVersion = canonical.CurrentVersion
	}
	v.CertificateID = strings.TrimSpace(presented.CertificateID)
	span.SetAttributes(attribute.String("certificate_id", v.CertificateID))

	if err := s.check(ctx, v, &presented); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("verdict", string(v.Verdict)))
	return v, nil
}

// check fills in v's verdict. Integrity is settled before revocation is
// consulted, so a tampered certificate never reads as merely revoked.
func (s *VerificationService) check(ctx context.Context, v *Verification, cert *credential.Certificate) error {
	canonicalBytes, err := cert.Canonical()
	if err != nil {
		s.integrityFailure(v, proof.Tampered, err.Error())
		return nil
	}

	res, err := s.engine.Verify(ctx, canonicalBytes, cert.Proof, s.resolver)
	if err != nil {
		return transient("failed to resolve signing key", err)
	}
	if !res.Valid {
		s.integrityFailure(v, res.Reason, res.Detail)
		return nil
	}

	issuer, err := canonical.NormalizeEmail(cert.UniversityEmail)
	if err != nil || res.Key.Owner != issuer {
		s.integrityFailure(v, proof.Forged, "signing key belongs to another university")
		return nil
	}

	entry, err := s.ledger.Get(ctx, v.CertificateID)
	if err != nil {
		return err
	}
	if entry != nil {
		v.Verdict = proof.Revoked
		v.Revocation = entry
		if v.Certificate != nil {
			v.Certificate.Status = credential.StatusRevoked
		}
		return nil
	}

	v.Verdict = proof.Valid
	return nil
}

func (s *VerificationService) integrityFailure(v *Verification, verdict proof.Verdict, detail string) {
	v.Verdict = verdict
	v.Detail = detail
	s.logger.Warn("Certificate failed verification",
		zap.String("certificate_id", v.CertificateID),
		zap.String("verdict", string(verdict)),
		zap.String("detail", detail),
	)
}
