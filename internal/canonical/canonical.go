// Package canonical produces the deterministic byte encoding of a
// certificate's logical fields. The encoding is the exact input to digesting
// and signing, so it is versioned: every schema version keeps its own key
// order and normalization rules forever, and the version string is always
// the first record of the output.
package canonical

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CurrentVersion is the schema used for newly issued certificates.
const CurrentVersion = "v1"

// DateLayout is the fixed-width calendar form used for dateOfIssue.
const DateLayout = "2006-01-02"

// Field keys, shared by every schema version and by the HTTP contract.
const (
	KeySchemaVersion   = "schemaVersion"
	KeyCertificateID   = "certificateId"
	KeyStudentEmail    = "studentEmail"
	KeyStudentName     = "studentName"
	KeyUniversityEmail = "universityEmail"
	KeyUniversityName  = "universityName"
	KeyMajor           = "major"
	KeyDepartmentName  = "departmentName"
	KeyCGPA            = "cgpa"
	KeyDateOfIssue     = "dateOfIssue"
)

// Fields holds the logical fields covered by a certificate proof.
type Fields struct {
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

// FromMap builds Fields from a key/value map, ignoring unknown keys.
func FromMap(m map[string]string) Fields {
	return Fields{
		CertificateID:   m[KeyCertificateID],
		StudentEmail:    m[KeyStudentEmail],
		StudentName:     m[KeyStudentName],
		UniversityEmail: m[KeyUniversityEmail],
		UniversityName:  m[KeyUniversityName],
		Major:           m[KeyMajor],
		DepartmentName:  m[KeyDepartmentName],
		CGPA:            m[KeyCGPA],
		DateOfIssue:     m[KeyDateOfIssue],
	}
}

func (f Fields) get(key string) (string, bool) {
	switch key {
	case KeyCertificateID:
		return f.CertificateID, true
	case KeyStudentEmail:
		return f.StudentEmail, true
	case KeyStudentName:
		return f.StudentName, true
	case KeyUniversityEmail:
		return f.UniversityEmail, true
	case KeyUniversityName:
		return f.UniversityName, true
	case KeyMajor:
		return f.Major, true
	case KeyDepartmentName:
		return f.DepartmentName, true
	case KeyCGPA:
		return f.CGPA, true
	case KeyDateOfIssue:
		return f.DateOfIssue, true
	default:
		return "", false
	}
}

// FieldError reports a field that cannot be represented in canonical form.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("canonicalization failed: %s", e.Reason)
	}
	return fmt.Sprintf("canonicalization failed: field %s: %s", e.Field, e.Reason)
}

// NormalizeFunc converts one raw field value into its canonical text.
type NormalizeFunc func(value string) (string, error)

// Schema describes one canonical encoding version.
type Schema struct {
	Version string
	// Keys lists the field keys in encoding order, excluding schemaVersion.
	Keys []string
	// Normalizers maps a key to its normalizer; keys without one use NormalizeText.
	Normalizers map[string]NormalizeFunc
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Schema{}
)

func init() {
	Register(Schema{
		Version: "v1",
		Keys: []string{
			KeyCertificateID,
			KeyStudentEmail,
			KeyStudentName,
			KeyUniversityEmail,
			KeyUniversityName,
			KeyMajor,
			KeyDepartmentName,
			KeyCGPA,
			KeyDateOfIssue,
		},
		Normalizers: map[string]NormalizeFunc{
			KeyCertificateID:   NormalizeIdentifier,
			KeyStudentEmail:    NormalizeEmail,
			KeyUniversityEmail: NormalizeEmail,
			KeyCGPA:            NormalizeCGPA,
			KeyDateOfIssue:     NormalizeDate,
		},
	})
}

// Register adds a schema version. Registering an existing version panics,
// since that would silently change the canonical form of issued certificates.
func Register(s Schema) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if s.Version == "" {
		panic("canonical: schema version is required")
	}
	if _, exists := registry[s.Version]; exists {
		panic("canonical: schema " + s.Version + " already registered")
	}
	registry[s.Version] = s
}

// Lookup returns the schema for a version.
func Lookup(version string) (Schema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[version]
	return s, ok
}

// Canonicalize encodes f using the rules of the given schema version.
func Canonicalize(version string, f Fields) ([]byte, error) {
	schema, ok := Lookup(version)
	if !ok {
		return nil, &FieldError{Field: KeySchemaVersion, Reason: fmt.Sprintf("unknown schema version %q", version)}
	}

	var buf bytes.Buffer
	writeRecord(&buf, KeySchemaVersion, schema.Version)

	for _, key := range schema.Keys {
		raw, known := f.get(key)
		if !known {
			return nil, &FieldError{Field: key, Reason: "field not supported by this build"}
		}

		normalize := schema.Normalizers[key]
		if normalize == nil {
			normalize = NormalizeText
		}

		value, err := normalize(raw)
		if err != nil {
			return nil, &FieldError{Field: key, Reason: err.Error()}
		}
		writeRecord(&buf, key, value)
	}

	return buf.Bytes(), nil
}

// Normalize returns f with every field replaced by its canonical text under
// the given schema version, so stored records carry exactly what was signed.
func Normalize(version string, f Fields) (Fields, error) {
	schema, ok := Lookup(version)
	if !ok {
		return Fields{}, &FieldError{Field: KeySchemaVersion, Reason: fmt.Sprintf("unknown schema version %q", version)}
	}

	values := make(map[string]string, len(schema.Keys))
	for _, key := range schema.Keys {
		raw, _ := f.get(key)
		normalize := schema.Normalizers[key]
		if normalize == nil {
			normalize = NormalizeText
		}
		value, err := normalize(raw)
		if err != nil {
			return Fields{}, &FieldError{Field: key, Reason: err.Error()}
		}
		values[key] = value
	}

	return FromMap(values), nil
}

// writeRecord writes key:len:value\n; the byte length makes the encoding
// unambiguous even when values contain separators.
func writeRecord(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteByte(':')
	buf.WriteString(strconv.Itoa(len(value)))
	buf.WriteByte(':')
	buf.WriteString(value)
	buf.WriteByte('\n')
}

// NormalizeText trims, NFC-normalizes and collapses inner whitespace runs.
func NormalizeText(value string) (string, error) {
	value = norm.NFC.String(value)
	value = strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")
	if value == "" {
		return "", fmt.Errorf("value is empty")
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("value contains control characters")
		}
	}
	return value, nil
}

// NormalizeEmail applies NormalizeText and lower-cases the address.
func NormalizeEmail(value string) (string, error) {
	value, err := NormalizeText(value)
	if err != nil {
		return "", err
	}
	if strings.ContainsRune(value, ' ') || !strings.Contains(value, "@") {
		return "", fmt.Errorf("not an email address")
	}
	return strings.ToLower(value), nil
}

// NormalizeIdentifier trims surrounding whitespace only; identifiers are
// otherwise opaque.
func NormalizeIdentifier(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("value is empty")
	}
	for _, r := range value {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", fmt.Errorf("identifier contains whitespace or control characters")
		}
	}
	return value, nil
}

// NormalizeDate parses a calendar date and renders it as YYYY-MM-DD.
func NormalizeDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return "", fmt.Errorf("not a YYYY-MM-DD date")
	}
	if t.Year() < 1000 {
		return "", fmt.Errorf("year out of range")
	}
	return t.Format(DateLayout), nil
}

// NormalizeCGPA validates the value against the CGPA policy and returns its
// canonical text.
func NormalizeCGPA(value string) (string, error) {
	g, err := ParseCGPA(value)
	if err != nil {
		return "", err
	}
	return g.String(), nil
}
