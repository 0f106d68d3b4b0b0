// Package database is the credential store. It owns the SQL schema for
// universities, students, the signing key registry, issued certificates and
// revocations, and runs against SQLite or PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/robcowart/certproof/internal/config"
	"github.com/robcowart/certproof/internal/database/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDuplicate is returned by create-only inserts whose key already exists
var ErrDuplicate = errors.New("record already exists")

// Database represents the database connection and operations
type Database struct {
	db     *sql.DB
	dbType string
}

// New creates a new database connection
func New(cfg *config.Config) (*Database, error) {
	var db *sql.DB
	var err error

	switch cfg.Database.Type {
	case "sqlite":
		db, err = sql.Open("sqlite3", cfg.Database.SQLite.Path+"?_foreign_keys=on&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		// SQLite only allows one writer at a time
		db.SetMaxOpenConns(1)
	case "postgres":
		db, err = sql.Open("postgres", cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{
		db:     db,
		dbType: cfg.Database.Type,
	}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying database connection for direct queries
func (d *Database) DB() *sql.DB {
	return d.db
}

// Ping reports whether the store is reachable
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	migrationFiles := []string{"migrations/000001_init_schema.up.sql"}
	if d.dbType == "postgres" {
		migrationFiles = []string{"migrations/000001_init_schema.postgres.up.sql"}
	}

	for _, migrationFile := range migrationFiles {
		content, err := migrationsFS.ReadFile(migrationFile)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migrationFile, err)
		}

		for _, stmt := range splitStatements(string(content)) {
			if _, err := d.db.Exec(stmt); err != nil {
				if !strings.Contains(err.Error(), "already exists") {
					return fmt.Errorf("migration %s failed: %w\nStatement: %s", migrationFile, err, stmt)
				}
			}
		}
	}

	return nil
}

// splitStatements drops comment lines and splits on lines ending in ";"
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "--") || line == "" {
			continue
		}

		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(line, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	return statements
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries in this
// package never contain a literal question mark
func (d *Database) rebind(query string) string {
	if d.dbType != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation recognizes primary key and unique constraint failures
// from either driver
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}

// University operations

// UpsertUniversity creates a university or refreshes its name and password
func (d *Database) UpsertUniversity(ctx context.Context, u *models.University) error {
	query := d.rebind(`INSERT INTO universities (email, name, password_hash, created_at)
	          VALUES (?, ?, ?, ?)
	          ON CONFLICT (email) DO UPDATE SET name = excluded.name, password_hash = excluded.password_hash`)

	_, err := d.db.ExecContext(ctx, query, u.Email, u.Name, u.PasswordHash, u.CreatedAt)
	return err
}

// GetUniversity retrieves a university by email
func (d *Database) GetUniversity(ctx context.Context, email string) (*models.University, error) {
	query := d.rebind(`SELECT email, name, password_hash, created_at FROM universities WHERE email = ?`)

	var u models.University
	err := d.db.QueryRowContext(ctx, query, email).Scan(&u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUniversities retrieves all universities
func (d *Database) ListUniversities(ctx context.Context) ([]*models.University, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT email, name, password_hash, created_at FROM universities ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var universities []*models.University
	for rows.Next() {
		var u models.University
		if err := rows.Scan(&u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		universities = append(universities, &u)
	}
	return universities, rows.Err()
}

// Student operations

// UpsertStudent creates a student or refreshes its name and password
func (d *Database) UpsertStudent(ctx context.Context, s *models.Student) error {
	query := d.rebind(`INSERT INTO students (email, name, password_hash, created_at) VALUES (?, ?, ?, ?)
	          ON CONFLICT (email) DO UPDATE SET name = excluded.name, password_hash = excluded.password_hash`)

	_, err := d.db.ExecContext(ctx, query, s.Email, s.Name, s.PasswordHash, s.CreatedAt)
	return err
}

// GetStudent retrieves a student by email
func (d *Database) GetStudent(ctx context.Context, email string) (*models.Student, error) {
	query := d.rebind(`SELECT email, name, password_hash, created_at FROM students WHERE email = ?`)

	var s models.Student
	if err := d.db.QueryRowContext(ctx, query, email).Scan(&s.Email, &s.Name, &s.PasswordHash, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListStudents retrieves the student directory
func (d *Database) ListStudents(ctx context.Context) ([]*models.Student, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT email, name, password_hash, created_at FROM students ORDER BY name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []*models.Student
	for rows.Next() {
		var s models.Student
		if err := rows.Scan(&s.Email, &s.Name, &s.PasswordHash, &s.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, &s)
	}
	return students, rows.Err()
}

// StudentExists reports whether the student directory knows email
func (d *Database) StudentExists(ctx context.Context, email string) (bool, error) {
	query := d.rebind(`SELECT COUNT(*) FROM students WHERE email = ?`)

	var count int
	if err := d.db.QueryRowContext(ctx, query, email).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Signing key operations

const signingKeyColumns = `key_id, university_email, algorithm, public_key_pem, private_key_enc, active, created_at, retired_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSigningKey(row rowScanner) (*models.SigningKey, error) {
	var k models.SigningKey
	err := row.Scan(&k.KeyID, &k.UniversityEmail, &k.Algorithm, &k.PublicKeyPEM,
		&k.PrivateKeyEnc, &k.Active, &k.CreatedAt, &k.RetiredAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// CreateSigningKey registers a key. When the key is active and the university
// already has an active key, ErrDuplicate is returned
func (d *Database) CreateSigningKey(ctx context.Context, k *models.SigningKey) error {
	return insertSigningKey(ctx, d.db, d.rebind, k)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSigningKey(ctx context.Context, ex execer, rebind func(string) string, k *models.SigningKey) error {
	query := rebind(`INSERT INTO signing_keys (` + signingKeyColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ex.ExecContext(ctx, query,
		k.KeyID, k.UniversityEmail, k.Algorithm, k.PublicKeyPEM,
		k.PrivateKeyEnc, k.Active, k.CreatedAt, k.RetiredAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetSigningKey retrieves a key by id, active or retired
func (d *Database) GetSigningKey(ctx context.Context, keyID string) (*models.SigningKey, error) {
	query := d.rebind(`SELECT ` + signingKeyColumns + ` FROM signing_keys WHERE key_id = ?`)
	return scanSigningKey(d.db.QueryRowContext(ctx, query, keyID))
}

// GetActiveSigningKey retrieves the university's current signing key
func (d *Database) GetActiveSigningKey(ctx context.Context, universityEmail string) (*models.SigningKey, error) {
	query := d.rebind(`SELECT ` + signingKeyColumns + ` FROM signing_keys
	          WHERE university_email = ? AND active = ?`)
	return scanSigningKey(d.db.QueryRowContext(ctx, query, universityEmail, true))
}

// ListSigningKeys retrieves every key registered to a university, newest first
func (d *Database) ListSigningKeys(ctx context.Context, universityEmail string) ([]*models.SigningKey, error) {
	query := d.rebind(`SELECT ` + signingKeyColumns + ` FROM signing_keys
	          WHERE university_email = ? ORDER BY created_at DESC`)

	rows, err := d.db.QueryContext(ctx, query, universityEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.SigningKey
	for rows.Next() {
		k, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RotateSigningKey retires the university's active key, if any, and makes
// next the active key in one transaction
func (d *Database) RotateSigningKey(ctx context.Context, next *models.SigningKey) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	retire := d.rebind(`UPDATE signing_keys SET active = ?, retired_at = ?
	          WHERE university_email = ? AND active = ?`)
	if _, err := tx.ExecContext(ctx, retire, false, next.CreatedAt, next.UniversityEmail, true); err != nil {
		return fmt.Errorf("failed to retire active key: %w", err)
	}

	next.Active = true
	if err := insertSigningKey(ctx, tx, d.rebind, next); err != nil {
		return err
	}

	return tx.Commit()
}

// Certificate operations

const certificateColumns = `certificate_id, schema_version, student_email, student_name,
	university_email, university_name, major, department_name, cgpa, date_of_issue,
	digest_algorithm, digest_hex, signature_algorithm, signature_hex, signing_key_id, issued_at`

func scanCertificate(row rowScanner, extra ...any) (*models.Certificate, error) {
	var c models.Certificate
	dest := []any{
		&c.CertificateID, &c.SchemaVersion, &c.StudentEmail, &c.StudentName,
		&c.UniversityEmail, &c.UniversityName, &c.Major, &c.DepartmentName, &c.CGPA, &c.DateOfIssue,
		&c.DigestAlgorithm, &c.DigestHex, &c.SignatureAlgorithm, &c.SignatureHex, &c.SigningUniversityKeyID, &c.IssuedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCertificate inserts an issued certificate and its proof as a single
// row. An existing certificate id yields ErrDuplicate and leaves the stored
// record untouched
func (d *Database) CreateCertificate(ctx context.Context, c *models.Certificate) error {
	query := d.rebind(`INSERT INTO certificates (` + certificateColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := d.db.ExecContext(ctx, query,
		c.CertificateID, c.SchemaVersion, c.StudentEmail, c.StudentName,
		c.UniversityEmail, c.UniversityName, c.Major, c.DepartmentName, c.CGPA, c.DateOfIssue,
		c.DigestAlgorithm, c.DigestHex, c.SignatureAlgorithm, c.SignatureHex, c.SigningUniversityKeyID, c.IssuedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetCertificate retrieves a certificate by id
func (d *Database) GetCertificate(ctx context.Context, id string) (*models.Certificate, error) {
	query := d.rebind(`SELECT ` + certificateColumns + ` FROM certificates WHERE certificate_id = ?`)
	return scanCertificate(d.db.QueryRowContext(ctx, query, id))
}

// CertificateExists reports whether a certificate id has been issued
func (d *Database) CertificateExists(ctx context.Context, id string) (bool, error) {
	query := d.rebind(`SELECT COUNT(*) FROM certificates WHERE certificate_id = ?`)

	var count int
	if err := d.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// CertificateListing is a certificate joined with its revocation, if any
type CertificateListing struct {
	*models.Certificate
	RevokedAt sql.NullTime
}

// ListCertificatesByUniversity retrieves certificates issued by a university
func (d *Database) ListCertificatesByUniversity(ctx context.Context, universityEmail string) ([]*CertificateListing, error) {
	return d.listCertificates(ctx, "c.university_email", universityEmail)
}

// ListCertificatesByStudent retrieves certificates held by a student
func (d *Database) ListCertificatesByStudent(ctx context.Context, studentEmail string) ([]*CertificateListing, error) {
	return d.listCertificates(ctx, "c.student_email", studentEmail)
}

func (d *Database) listCertificates(ctx context.Context, column, value string) ([]*CertificateListing, error) {
	columns := "c." + strings.ReplaceAll(strings.Join(strings.Fields(certificateColumns), " "), ", ", ", c.")
	query := d.rebind(`SELECT ` + columns + `, r.revoked_at
	          FROM certificates c LEFT JOIN revocations r ON r.certificate_id = c.certificate_id
	          WHERE ` + column + ` = ? ORDER BY c.issued_at DESC, c.certificate_id`)

	rows, err := d.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*CertificateListing
	for rows.Next() {
		var revokedAt sql.NullTime
		c, err := scanCertificate(rows, &revokedAt)
		if err != nil {
			return nil, err
		}
		listings = append(listings, &CertificateListing{Certificate: c, RevokedAt: revokedAt})
	}
	return listings, rows.Err()
}

// Revocation operations

// InsertRevocation appends a revocation if the certificate has none yet.
// It reports whether this call added the row
func (d *Database) InsertRevocation(ctx context.Context, r *models.Revocation) (bool, error) {
	query := d.rebind(`INSERT INTO revocations (certificate_id, revoked_by, reason, revoked_at)
	          VALUES (?, ?, ?, ?)
	          ON CONFLICT (certificate_id) DO NOTHING`)

	res, err := d.db.ExecContext(ctx, query, r.CertificateID, r.RevokedBy, r.Reason, r.RevokedAt)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetRevocation retrieves the revocation of a certificate
func (d *Database) GetRevocation(ctx context.Context, certificateID string) (*models.Revocation, error) {
	query := d.rebind(`SELECT certificate_id, revoked_by, reason, revoked_at FROM revocations WHERE certificate_id = ?`)

	var r models.Revocation
	err := d.db.QueryRowContext(ctx, query, certificateID).Scan(&r.CertificateID, &r.RevokedBy, &r.Reason, &r.RevokedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// System config operations

// SetSystemConfig sets a system configuration value
func (d *Database) SetSystemConfig(ctx context.Context, key, value string) error {
	query := d.rebind(`INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, ?)
	          ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)

	_, err := d.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}

// InitSystemConfig stores value under key unless a value is already present,
// and returns whichever value is stored afterwards
func (d *Database) InitSystemConfig(ctx context.Context, key, value string) (string, error) {
	query := d.rebind(`INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, ?)
	          ON CONFLICT (key) DO NOTHING`)

	if _, err := d.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return "", err
	}
	return d.GetSystemConfig(ctx, key)
}

// GetSystemConfig retrieves a system configuration value
func (d *Database) GetSystemConfig(ctx context.Context, key string) (string, error) {
	query := d.rebind(`SELECT value FROM system_config WHERE key = ?`)

	var value string
	if err := d.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		return "", err
	}
	return value, nil
}
