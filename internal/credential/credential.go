// Package credential holds the certificate record as services and clients
// see it: the logical fields, the proof that binds them and the status
// derived from the revocation ledger.
package credential

import (
	"time"

	"github.com/robcowart/certproof/internal/canonical"
	"github.com/robcowart/certproof/internal/database/models"
	"github.com/robcowart/certproof/internal/proof"
)

// Status is the revocation-derived state of a certificate
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
)

// Certificate is an issued credential
type Certificate struct {
	SchemaVersion   string       `json:"schemaVersion"`
	CertificateID   string       `json:"certificateId"`
	StudentEmail    string       `json:"studentEmail"`
	StudentName     string       `json:"studentName"`
	UniversityEmail string       `json:"universityEmail"`
	UniversityName  string       `json:"universityName"`
	Major           string       `json:"major"`
	DepartmentName  string       `json:"departmentName"`
	CGPA            string       `json:"cgpa"`
	DateOfIssue     string       `json:"dateOfIssue"`
	Proof           *proof.Proof `json:"proof"`
	Status          Status       `json:"status,omitempty"`
	IssuedAt        time.Time    `json:"issuedAt"`
}

// Fields returns the logical fields covered by the proof
func (c *Certificate) Fields() canonical.Fields {
	return canonical.Fields{
		CertificateID:   c.CertificateID,
		StudentEmail:    c.StudentEmail,
		StudentName:     c.StudentName,
		UniversityEmail: c.UniversityEmail,
		UniversityName:  c.UniversityName,
		Major:           c.Major,
		DepartmentName:  c.DepartmentName,
		CGPA:            c.CGPA,
		DateOfIssue:     c.DateOfIssue,
	}
}

// Canonical encodes the certificate under its own schema version
func (c *Certificate) Canonical() ([]byte, error) {
	return canonical.Canonicalize(c.SchemaVersion, c.Fields())
}

// RevocationEntry is a ledger record
type RevocationEntry struct {
	CertificateID string    `json:"certificateId"`
	RevokedBy     string    `json:"revokedBy"`
	Reason        string    `json:"reason"`
	RevokedAt     time.Time `json:"revokedAt"`
}

// New assembles a certificate from normalized fields and their proof
func New(version string, f canonical.Fields, p *proof.Proof, issuedAt time.Time) *Certificate {
	return &Certificate{
		SchemaVersion:   version,
		CertificateID:   f.CertificateID,
		StudentEmail:    f.StudentEmail,
		StudentName:     f.StudentName,
		UniversityEmail: f.UniversityEmail,
		UniversityName:  f.UniversityName,
		Major:           f.Major,
		DepartmentName:  f.DepartmentName,
		CGPA:            f.CGPA,
		DateOfIssue:     f.DateOfIssue,
		Proof:           p,
		Status:          StatusActive,
		IssuedAt:        issuedAt,
	}
}

// FromModel converts a stored row
func FromModel(m *models.Certificate) *Certificate {
	return &Certificate{
		SchemaVersion:   m.SchemaVersion,
		CertificateID:   m.CertificateID,
		StudentEmail:    m.StudentEmail,
		StudentName:     m.StudentName,
		UniversityEmail: m.UniversityEmail,
		UniversityName:  m.UniversityName,
		Major:           m.Major,
		DepartmentName:  m.DepartmentName,
		CGPA:            m.CGPA,
		DateOfIssue:     m.DateOfIssue,
		Proof: &proof.Proof{
			DigestAlgorithm:        m.DigestAlgorithm,
			DigestHex:              m.DigestHex,
			SignatureAlgorithm:     m.SignatureAlgorithm,
			SignatureHex:           m.SignatureHex,
			SigningUniversityKeyID: m.SigningUniversityKeyID,
		},
		Status:   StatusActive,
		IssuedAt: m.IssuedAt,
	}
}

// ToModel converts to a storable row
func (c *Certificate) ToModel() *models.Certificate {
	m := &models.Certificate{
		CertificateID:   c.CertificateID,
		SchemaVersion:   c.SchemaVersion,
		StudentEmail:    c.StudentEmail,
		StudentName:     c.StudentName,
		UniversityEmail: c.UniversityEmail,
		UniversityName:  c.UniversityName,
		Major:           c.Major,
		DepartmentName:  c.DepartmentName,
		CGPA:            c.CGPA,
		DateOfIssue:     c.DateOfIssue,
		IssuedAt:        c.IssuedAt,
	}
	if c.Proof != nil {
		m.DigestAlgorithm = c.Proof.DigestAlgorithm
		m.DigestHex = c.Proof.DigestHex
		m.SignatureAlgorithm = c.Proof.SignatureAlgorithm
		m.SignatureHex = c.Proof.SignatureHex
		m.SigningUniversityKeyID = c.Proof.SigningUniversityKeyID
	}
	return m
}

// RevocationFromModel converts a stored revocation
func RevocationFromModel(m *models.Revocation) *RevocationEntry {
	return &RevocationEntry{
		CertificateID: m.CertificateID,
		RevokedBy:     m.RevokedBy,
		Reason:        m.Reason,
		RevokedAt:     m.RevokedAt,
	}
}
