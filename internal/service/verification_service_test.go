package service

import (
	"context"
	"testing"

	"github.com/robcowart/certproof/internal/canonical"
	"github.com/robcowart/certproof/internal/credential"
	"github.com/robcowart/certproof/internal/proof"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueScenario(t *testing.T, env *testEnv) *credential.Certificate {
	t.Helper()
	cert, err := env.issuance.Issue(context.Background(), scenarioRequest(), universityA)
	require.NoError(t, err)
	return cert
}

func TestVerificationService_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("Freshly issued certificate is valid", func(t *testing.T) {
		env := newTestEnv(t)
		issueScenario(t, env)

		v, err := env.verifier.Verify(ctx, "CERT-1")
		require.NoError(t, err)
		assert.Equal(t, proof.Valid, v.Verdict)
		require.NotNil(t, v.Certificate)
		assert.Equal(t, credential.StatusActive, v.Certificate.Status)
		assert.Nil(t, v.Revocation)
	})

	t.Run("Unknown id is not found", func(t *testing.T) {
		env := newTestEnv(t)

		for _, id := range []string{"CERT-404", "", "   "} {
			v, err := env.verifier.Verify(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, proof.NotFound, v.Verdict)
			assert.Nil(t, v.Certificate)
		}
	})

	t.Run("Any stored field change is tampering", func(t *testing.T) {
		columns := map[string]string{
			"student_email":    "mallory@x.edu",
			"student_name":     "Mallory",
			"university_email": universityB,
			"university_name":  "Y U",
			"major":            "Physics",
			"department_name":  "Science",
			"cgpa":             "3.9/4.0",
			"date_of_issue":    "2024-05-02",
			"schema_version":   "v9",
		}

		for column, value := range columns {
			env := newTestEnv(t)
			issueScenario(t, env)

			_, err := env.db.DB().Exec("UPDATE certificates SET "+column+" = ? WHERE certificate_id = ?", value, "CERT-1")
			require.NoError(t, err)

			v, err := env.verifier.Verify(ctx, "CERT-1")
			require.NoError(t, err)
			assert.Equal(t, proof.Tampered, v.Verdict, column)
		}
	})

	t.Run("Revoked certificate", func(t *testing.T) {
		env := newTestEnv(t)
		issueScenario(t, env)

		_, err := env.ledger.Revoke(ctx, "CERT-1", universityA, "degree rescinded")
		require.NoError(t, err)

		v, err := env.verifier.Verify(ctx, "CERT-1")
		require.NoError(t, err)
		assert.Equal(t, proof.Revoked, v.Verdict)
		require.NotNil(t, v.Revocation)
		assert.Equal(t, "degree rescinded", v.Revocation.Reason)
		assert.Equal(t, credential.StatusRevoked, v.Certificate.Status)
	})

	t.Run("Tampered and revoked reads as tampered", func(t *testing.T) {
		env := newTestEnv(t)
		issueScenario(t, env)

		_, err := env.ledger.Revoke(ctx, "CERT-1", universityA, "")
		require.NoError(t, err)
		_, err = env.db.DB().Exec("UPDATE certificates SET cgpa = ? WHERE certificate_id = ?", "4.0/4.0", "CERT-1")
		require.NoError(t, err)

		v, err := env.verifier.Verify(ctx, "CERT-1")
		require.NoError(t, err)
		assert.Equal(t, proof.Tampered, v.Verdict)
		assert.Nil(t, v.Revocation)
	})

	t.Run("Stored key id that was never registered", func(t *testing.T) {
		env := newTestEnv(t)
		issueScenario(t, env)

		_, err := env.db.DB().Exec("UPDATE certificates SET signing_key_id = ? WHERE certificate_id = ?", "ghost", "CERT-1")
		require.NoError(t, err)

		v, err := env.verifier.Verify(ctx, "CERT-1")
		require.NoError(t, err)
		assert.Equal(t, proof.UnknownKey, v.Verdict)
	})

	t.Run("Old certificates survive key rotation", func(t *testing.T) {
		env := newTestEnv(t)
		issueScenario(t, env)

		_, err := env.keys.RotateKey(ctx, universityA)
		require.NoError(t, err)

		v, err := env.verifier.Verify(ctx, "CERT-1")
		require.NoError(t, err)
		assert.Equal(t, proof.Valid, v.Verdict)
	})

	t.Run("Storage failure is transient", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.db.Close())

		_, err := env.verifier.Verify(ctx, "CERT-1")
		requireKind(t, err, KindTransient, CodeStorageFailure)
	})
}

func TestVerificationService_VerifyPresented(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	cert := issueScenario(t, env)

	t.Run("Presented copy of an issued certificate", func(t *testing.T) {
		v, err := env.verifier.VerifyPresented(ctx, cert)
		require.NoError(t, err)
		assert.Equal(t, proof.Valid, v.Verdict)
		assert.Equal(t, "CERT-1", v.CertificateID)
	})

	t.Run("Edited presentation is tampered", func(t *testing.T) {
		edited := *cert
		edited.CGPA = "4.0/4.0"

		v, err := env.verifier.VerifyPresented(ctx, &edited)
		require.NoError(t, err)
		assert.Equal(t, proof.Tampered, v.Verdict)
	})

	t.Run("Signed by A and checked with B's key is forged", func(t *testing.T) {
		keyB, err := env.keys.ActiveSigningKey(ctx, universityB)
		require.NoError(t, err)

		swapped := *cert
		p := *cert.Proof
		p.SigningUniversityKeyID = keyB.KeyID
		swapped.Proof = &p

		v, err := env.verifier.VerifyPresented(ctx, &swapped)
		require.NoError(t, err)
		assert.Equal(t, proof.Forged, v.Verdict)
	})

	t.Run("A's key claiming to be B is forged", func(t *testing.T) {
		keyA, err := env.keys.ActiveSigningKey(ctx, universityA)
		require.NoError(t, err)

		fields := cert.Fields()
		fields.CertificateID = "CERT-B"
		fields.UniversityEmail = universityB
		fields.UniversityName = "Y U"
		canonicalBytes, err := canonical.Canonicalize(canonical.CurrentVersion, fields)
		require.NoError(t, err)
		p, err := env.engine.Generate(canonicalBytes, keyA)
		require.NoError(t, err)

		v, err := env.verifier.VerifyPresented(ctx, credential.New(canonical.CurrentVersion, fields, p, cert.IssuedAt))
		require.NoError(t, err)
		assert.Equal(t, proof.Forged, v.Verdict)
	})

	t.Run("Unknown key", func(t *testing.T) {
		unknown := *cert
		p := *cert.Proof
		p.SigningUniversityKeyID = "ghost"
		unknown.Proof = &p

		v, err := env.verifier.VerifyPresented(ctx, &unknown)
		require.NoError(t, err)
		assert.Equal(t, proof.UnknownKey, v.Verdict)
	})

	t.Run("Missing payload or proof", func(t *testing.T) {
		v, err := env.verifier.VerifyPresented(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, proof.Tampered, v.Verdict)

		bare := *cert
		bare.Proof = nil
		v, err = env.verifier.VerifyPresented(ctx, &bare)
		require.NoError(t, err)
		assert.Equal(t, proof.Tampered, v.Verdict)
	})

	t.Run("Revoked presentation", func(t *testing.T) {
		_, err := env.ledger.Revoke(ctx, "CERT-1", universityA, "")
		require.NoError(t, err)

		v, err := env.verifier.VerifyPresented(ctx, cert)
		require.NoError(t, err)
		assert.Equal(t, proof.Revoked, v.Verdict)
		assert.NotNil(t, v.Revocation)
	})
}
