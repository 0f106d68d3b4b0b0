package credential

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/robcowart/certproof/internal/canonical"
	"github.com/robcowart/certproof/internal/proof"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Certificate {
	return New(canonical.CurrentVersion, canonical.Fields{
		CertificateID:   "CERT-1",
		StudentEmail:    "s@x.edu",
		StudentName:     "Alice",
		UniversityEmail: "u@x.edu",
		UniversityName:  "X U",
		Major:           "CS",
		DepartmentName:  "Computing",
		CGPA:            "3.8/4.0",
		DateOfIssue:     "2024-05-01",
	}, &proof.Proof{
		DigestAlgorithm:        "SHA-256",
		DigestHex:              "ab",
		SignatureAlgorithm:     "Ed25519",
		SignatureHex:           "cd",
		SigningUniversityKeyID: "key-1",
	}, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
}

func TestModelConversion(t *testing.T) {
	c := sample()
	back := FromModel(c.ToModel())

	assert.Equal(t, c.Fields(), back.Fields())
	assert.Equal(t, *c.Proof, *back.Proof)
	assert.Equal(t, c.SchemaVersion, back.SchemaVersion)
	assert.Equal(t, StatusActive, back.Status)
}

func TestCanonical(t *testing.T) {
	c := sample()
	got, err := c.Canonical()
	require.NoError(t, err)

	want, err := canonical.Canonicalize(canonical.CurrentVersion, c.Fields())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	c.SchemaVersion = "v999"
	_, err = c.Canonical()
	assert.Error(t, err)
}

func TestJSONShape(t *testing.T) {
	data, err := json.Marshal(sample())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"certificateId", "studentEmail", "universityEmail", "cgpa", "dateOfIssue", "proof", "status"} {
		assert.Contains(t, m, key)
	}

	p := m["proof"].(map[string]any)
	assert.Equal(t, "key-1", p["signingUniversityKeyId"])
}
