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
	"github.com/robcowart/certproof/internal/database/models"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MaxRevocationReason bounds the stored reason text, in bytes
const MaxRevocationReason = 1024

// RevocationLedger is the append-only record of withdrawn certificates
type RevocationLedger struct {
	db     *database.Database
	logger *zap.Logger
	now    func() time.Time
}

// NewRevocationLedger creates a new revocation ledger
func NewRevocationLedger(db *database.Database, logger *zap.Logger) *RevocationLedger {
	return &RevocationLedger{
		db:     db,
		logger: logger.With(zap.String("service", "revocation")),
		now:    time.Now,
	}
}

// Revoke withdraws a certificate. Only its issuing university may do so.
// Revoking twice succeeds and returns the first entry unchanged
func (l *RevocationLedger) Revoke(ctx context.Context, certificateID, actingUniversity, reason string) (*credential.RevocationEntry, error) {
	ctx, span := tracer.Start(ctx, "RevocationLedger.Revoke")
	defer span.End()

	acting, err := canonical.NormalizeEmail(actingUniversity)
	if err != nil {
		return nil, unauthenticated("revocation requires an authenticated university")
	}

	certificateID = strings.TrimSpace(certificateID)
	if certificateID == "" {
		return nil, invalidField(canonical.KeyCertificateID, "value is empty")
	}
	span.SetAttributes(attribute.String("certificate_id", certificateID))

	if strings.TrimSpace(reason) != "" {
		if reason, err = canonical.NormalizeText(reason); err != nil {
			return nil, invalidField("reason", err.Error())
		}
	}
	if len(reason) > MaxRevocationReason {
		return nil, invalidField("reason", "reason is too long")
	}

	cert, err := l.db.GetCertificate(ctx, certificateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("certificate not found")
	}
	if err != nil {
		span.RecordError(err)
		return nil, transient("failed to load certificate", err)
	}

	if cert.UniversityEmail != acting {
		l.logger.Warn("Revocation by another university rejected",
			zap.String("certificate_id", certificateID),
			zap.String("acting_university", acting),
		)
		return nil, forbidden(CodeForbidden, "only the issuing university may revoke a certificate")
	}

	added, err := l.db.InsertRevocation(ctx, &models.Revocation{
		CertificateID: certificateID,
		RevokedBy:     acting,
		Reason:        reason,
		RevokedAt:     l.now().UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		span.RecordError(err)
		return nil, transient("failed to record revocation", err)
	}

	entry, err := l.Get(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, transient("revocation vanished after insert", nil)
	}

	if added {
		l.logger.Info("Certificate revoked",
			zap.String("certificate_id", certificateID),
			zap.String("university", acting),
			zap.String("reason", reason),
		)
	} else {
		l.logger.Debug("Certificate already revoked", zap.String("certificate_id", certificateID))
	}

	return entry, nil
}

// IsRevoked reports whether a certificate has been revoked. Unknown ids are
// not revoked
func (l *RevocationLedger) IsRevoked(ctx context.Context, certificateID string) (bool, error) {
	entry, err := l.Get(ctx, certificateID)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// Get returns the revocation entry of a certificate, or nil when there is none
func (l *RevocationLedger) Get(ctx context.Context, certificateID string) (*credential.RevocationEntry, error) {
	row, err := l.db.GetRevocation(ctx, strings.TrimSpace(certificateID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, transient("failed to load revocation", err)
	}
	return credential.RevocationFromModel(row), nil
}
