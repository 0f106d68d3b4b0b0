// Package models defines the rows persisted by the credential store:
// universities, students, signing keys, certificates with their proofs,
// revocations and system configuration.
package models

import (
	"database/sql"
	"time"
)

// University is an issuing institution
type University struct {
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Student is a certificate holder known to the student directory
type Student struct {
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SigningKey is one entry of the append-only key registry. Rows are never
// deleted; rotation only clears Active
type SigningKey struct {
	KeyID           string       `db:"key_id" json:"key_id"`
	UniversityEmail string       `db:"university_email" json:"university_email"`
	Algorithm       string       `db:"algorithm" json:"algorithm"`
	PublicKeyPEM    string       `db:"public_key_pem" json:"public_key_pem"`
	PrivateKeyEnc   []byte       `db:"private_key_enc" json:"-"`
	Active          bool         `db:"active" json:"active"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	RetiredAt       sql.NullTime `db:"retired_at" json:"retired_at"`
}

// Certificate is an issued record with its proof. Rows are immutable once
// inserted; revocation lives in its own table
type Certificate struct {
	CertificateID          string    `db:"certificate_id"`
	SchemaVersion          string    `db:"schema_version"`
	StudentEmail           string    `db:"student_email"`
	StudentName            string    `db:"student_name"`
	UniversityEmail        string    `db:"university_email"`
	UniversityName         string    `db:"university_name"`
	Major                  string    `db:"major"`
	DepartmentName         string    `db:"department_name"`
	CGPA                   string    `db:"cgpa"`
	DateOfIssue            string    `db:"date_of_issue"`
	DigestAlgorithm        string    `db:"digest_algorithm"`
	DigestHex              string    `db:"digest_hex"`
	SignatureAlgorithm     string    `db:"signature_algorithm"`
	SignatureHex           string    `db:"signature_hex"`
	SigningUniversityKeyID string    `db:"signing_key_id"`
	IssuedAt               time.Time `db:"issued_at"`
}

// Revocation records that a certificate was withdrawn
type Revocation struct {
	CertificateID string    `db:"certificate_id"`
	RevokedBy     string    `db:"revoked_by"`
	Reason        string    `db:"reason"`
	RevokedAt     time.Time `db:"revoked_at"`
}

// SystemConfig represents system-wide configuration stored in the database
type SystemConfig struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}
