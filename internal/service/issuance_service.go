package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robcowart/certproof/internal/canonical"
	"github.com/robcowart/certproof/internal/config"
	"github.com/robcowart/certproof/internal/credential"
	"github.com/robcowart/certproof/internal/database"
	"github.com/robcowart/certproof/internal/proof"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CertificateIDPrefix starts every certificate id.
const CertificateIDPrefix = "CERT-"

var certificateIDPattern = regexp.MustCompile(`^CERT-[A-Za-z0-9._-]{1,128}$`)

// IssueRequest carries the fields of a certificate to issue. An empty
// CertificateID asks the service to assign one.
type IssueRequest struct {
	CertificateID   string `json:"certificateId"`
	StudentEmail    string `json:"studentEmail"`
	StudentName     string `json:"studentName"`
	UniversityEmail string `json:"universityEmail"`
	UniversityName  string `json:"universityName"`
	Major           string `json:"major"`
	DepartmentName  string `json:"departmentName"`
	CGPA            string `json:"cgpa"`
	DateOfIssue     string `json:"dateOfIssue"`
}

func (r *IssueRequest) fields() canonical.Fields {
	return canonical.Fields{
		CertificateID:   strings.TrimSpace(r.CertificateID),
		StudentEmail:    r.StudentEmail,
		StudentName:     r.StudentName,
		UniversityEmail: r.UniversityEmail,
		UniversityName:  r.UniversityName,
		Major:           r.Major,
		DepartmentName:  r.DepartmentName,
		CGPA:            r.CGPA,
		DateOfIssue:     r.DateOfIssue,
	}
}

// IssuanceService validates, signs and stores new certificates.
type IssuanceService struct {
	db        *database.Database
	cfg       *config.Config
	engine    *proof.Engine
	keys      *KeyService
	directory *DirectoryService
	logger    *zap.Logger
	now       func() time.Time
}

// NewIssuanceService creates a new issuance service.
func NewIssuanceService(db *database.Database, cfg *config.Config, engine *proof.Engine, keys *KeyService, directory *DirectoryService, logger *zap.Logger) *IssuanceService {
	return &IssuanceService{
		db:        db,
		cfg:       cfg,
		engine:    engine,
		keys:      keys,
		directory: directory,
		logger:    logger.With(zap.String("service", "issuance")),
		now:       time.Now,
	}
}

// Issue creates a certificate on behalf of actingUniversity. Every check
// runs before anything is signed or stored; the record and its proof are
// then written in one create-only insert.
func (s *IssuanceService) Issue(ctx context.Context, req *IssueRequest, actingUniversity string) (*credential.Certificate, error) {
	ctx, span := tracer.Start(ctx, "IssuanceService.Issue")
	defer span.End()

	acting, err := canonical.NormalizeEmail(actingUniversity)
	if err != nil {
		return nil, unauthenticated("issuance requires an authenticated university")
	}

	claimed, err := canonical.NormalizeEmail(req.UniversityEmail)
	if err != nil {
		return nil, invalidField(canonical.KeyUniversityEmail, err.Error())
	}
	if claimed != acting {
		s.logger.Warn("Issuance on behalf of another university rejected",
			zap.String("acting_university", acting),
			zap.String("university", claimed),
		)
		return nil, forbidden(CodeIssuerMismatch, "a university may only issue its own certificates")
	}

	fields := req.fields()
	if fields.CertificateID == "" {
		fields.CertificateID = CertificateIDPrefix + uuid.New().String()
	} else if !certificateIDPattern.MatchString(fields.CertificateID) {
		return nil, invalidField(canonical.KeyCertificateID, "must be CERT- followed by 1 to 128 letters, digits, '.', '_' or '-'")
	}

	normalized, err := canonical.Normalize(canonical.CurrentVersion, fields)
	if err != nil {
		var fe *canonical.FieldError
		if errors.As(err, &fe) {
			return nil, invalidField(fe.Field, fe.Reason)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("certificate_id", normalized.CertificateID))

	if err := s.checkDateOfIssue(normalized.DateOfIssue); err != nil {
		return nil, err
	}

	if err := s.checkIdentities(ctx, &normalized); err != nil {
		return nil, err
	}

	key, err := s.keys.ActiveSigningKey(ctx, acting)
	if err != nil {
		return nil, err
	}

	canonicalBytes, err := canonical.Canonicalize(canonical.CurrentVersion, normalized)
	if err != nil {
		return nil, err
	}

	p, err := s.engine.Generate(canonicalBytes, key)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	cert := credential.New(canonical.CurrentVersion, normalized, p, s.now().UTC().Truncate(time.Microsecond))

	err = s.db.CreateCertificate(ctx, cert.ToModel())
	if errors.Is(err, database.ErrDuplicate) {
		return nil, &Error{
			Kind:    KindConflict,
			Code:    CodeDuplicateID,
			Field:   canonical.KeyCertificateID,
			Message: "certificate id already exists",
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, transient("failed to store certificate", err)
	}

	s.logger.Info("Certificate issued",
		zap.String("certificate_id", cert.CertificateID),
		zap.String("university", acting),
		zap.String("student", cert.StudentEmail),
		zap.String("key_id", p.SigningUniversityKeyID),
		zap.String("digest_algorithm", p.DigestAlgorithm),
	)

	return cert, nil
}

// checkIdentities matches the named university and student against the
// directory and replaces both names with the registered ones.
func (s *IssuanceService) checkIdentities(ctx context.Context, f *canonical.Fields) error {
	university, err := s.directory.GetUniversity(ctx, f.UniversityEmail)
	if IsKind(err, KindNotFound) {
		return unauthenticated("issuing university is not registered")
	}
	if err != nil {
		return err
	}
	registered, err := canonical.NormalizeText(university.Name)
	if err != nil || !strings.EqualFold(registered, f.UniversityName) {
		s.logger.Warn("Issuance under another university name rejected",
			zap.String("acting_university", f.UniversityEmail),
			zap.String("university_name", f.UniversityName),
		)
		return &Error{
			Kind:    KindAuth,
			Code:    CodeIssuerMismatch,
			Field:   canonical.KeyUniversityName,
			Message: "university name does not match the issuing university",
		}
	}
	f.UniversityName = registered

	student, err := s.directory.GetStudent(ctx, f.StudentEmail)
	if IsKind(err, KindNotFound) {
		return &Error{
			Kind:    KindValidation,
			Code:    CodeUnknownStudent,
			Field:   canonical.KeyStudentEmail,
			Message: "student is not registered",
		}
	}
	if err != nil {
		return err
	}
	enrolled, err := canonical.NormalizeText(student.Name)
	if err != nil || !strings.EqualFold(enrolled, f.StudentName) {
		return invalidField(canonical.KeyStudentName, "does not match the registered student name")
	}
	f.StudentName = enrolled

	return nil
}

func (s *IssuanceService) checkDateOfIssue(date string) error {
	issued, err := time.Parse(canonical.DateLayout, date)
	if err != nil {
		return invalidField(canonical.KeyDateOfIssue, "not a YYYY-MM-DD date")
	}

	latest := s.now().UTC().Add(s.cfg.Issuance.FutureTolerance)
	if issued.After(latest) {
		return invalidField(canonical.KeyDateOfIssue, "date of issue is in the future")
	}
	return nil
}

// Exists reports whether a certificate id has been issued. Callers whose
// issuance timed out use it before retrying.
func (s *IssuanceService) Exists(ctx context.Context, certificateID string) (bool, error) {
	exists, err := s.db.CertificateExists(ctx, strings.TrimSpace(certificateID))
	if err != nil {
		return false, transient("failed to look up certificate", err)
	}
	return exists, nil
}

// Get returns a stored certificate with its revocation status. It does not
// verify the proof.
func (s *IssuanceService) Get(ctx context.Context, certificateID string) (*credential.Certificate, error) {
	ctx, span := tracer.Start(ctx, "IssuanceService.Get")
	defer span.End()

	row, err := s.db.GetCertificate(ctx, strings.TrimSpace(certificateID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("certificate not found")
	}
	if err != nil {
		span.RecordError(err)
		return nil, transient("failed to load certificate", err)
	}

	cert := credential.FromModel(row)

	_, err = s.db.GetRevocation(ctx, row.CertificateID)
	switch {
	case err == nil:
		cert.Status = credential.StatusRevoked
	case !errors.Is(err, sql.ErrNoRows):
		return nil, transient("failed to load revocation", err)
	}

	return cert, nil
}

// ListIssued returns the certificates issued by a university, newest first.
func (s *IssuanceService) ListIssued(ctx context.Context, universityEmail string) ([]*credential.Certificate, error) {
	listings, err := s.db.ListCertificatesByUniversity(ctx, universityEmail)
	if err != nil {
		return nil, transient("failed to list certificates", err)
	}
	return fromListings(listings), nil
}

// ListHeld returns the certificates held by a student, newest first.
func (s *IssuanceService) ListHeld(ctx context.Context, studentEmail string) ([]*credential.Certificate, error) {
	listings, err := s.db.ListCertificatesByStudent(ctx, studentEmail)
	if err != nil {
		return nil, transient("failed to list certificates", err)
	}
	return fromListings(listings), nil
}

func fromListings(listings []*database.CertificateListing) []*credential.Certificate {
	certs := make([]*credential.Certificate, 0, len(listings))
	for _, l := range listings {
		cert := credential.FromModel(l.Certificate)
		if l.RevokedAt.Valid {
			cert.Status = credential.StatusRevoked
		}
		certs = append(certs, cert)
	}
	return certs
}
