package service

import (
	"context"
	"fmt"

	"github.com/robcowart/certproof/internal/canonical"
	"github.com/robcowart/certproof/internal/proof"
	"go.uber.org/zap"
)

// ProofResult pairs a certificate's stored proof with a fresh one computed
// under the issuer's current key
type ProofResult struct {
	CertificateID string        `json:"certificateId"`
	StoredVerdict proof.Verdict `json:"storedVerdict"`
	StoredProof   *proof.Proof  `json:"storedProof"`
	Proof         *proof.Proof  `json:"proof"`
}

// ProofService recomputes proofs for already issued certificates
type ProofService struct {
	engine   *proof.Engine
	keys     *KeyService
	verifier *VerificationService
	logger   *zap.Logger
}

// NewProofService creates a new proof service
func NewProofService(engine *proof.Engine, keys *KeyService, verifier *VerificationService, logger *zap.Logger) *ProofService {
	return &ProofService{
		engine:   engine,
		keys:     keys,
		verifier: verifier,
		logger:   logger.With(zap.String("service", "proof")),
	}
}

// GenerateProof signs the stored fields of a certificate again with the
// issuing university's active key. It refuses when the stored proof no
// longer verifies, and never modifies the stored record
func (s *ProofService) GenerateProof(ctx context.Context, certificateID, actingUniversity string) (*ProofResult, error) {
	ctx, span := tracer.Start(ctx, "ProofService.GenerateProof")
	defer span.End()

	acting, err := canonical.NormalizeEmail(actingUniversity)
	if err != nil {
		return nil, unauthenticated("proof generation requires an authenticated university")
	}

	v, err := s.verifier.Verify(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if v.Verdict == proof.NotFound {
		return nil, notFound("certificate not found")
	}

	cert := v.Certificate
	if cert.UniversityEmail != acting {
		return nil, forbidden(CodeIssuerMismatch, "a university may only generate proofs for its own certificates")
	}

	if v.Verdict.IsIntegrityFailure() {
		return nil, &Error{
			Kind:    KindIntegrity,
			Code:    CodeProofInvalid,
			Message: fmt.Sprintf("stored proof does not verify: %s", v.Verdict),
		}
	}

	key, err := s.keys.ActiveSigningKey(ctx, acting)
	if err != nil {
		return nil, err
	}

	canonicalBytes, err := cert.Canonical()
	if err != nil {
		return nil, err
	}

	p, err := s.engine.Generate(canonicalBytes, key)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("Proof generated",
		zap.String("certificate_id", cert.CertificateID),
		zap.String("university", acting),
		zap.String("key_id", p.SigningUniversityKeyID),
	)

	return &ProofResult{
		CertificateID: cert.CertificateID,
		StoredVerdict: v.Verdict,
		StoredProof:   cert.Proof,
		Proof:         p,
	}, nil
}
