package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/robcowart/certproof/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const seedYAML = `
universities:
  - email: " Registrar@X.edu "
    name: "X   University"
    password: "registrar123"
students:
  - email: s@x.edu
    name: Alice
    password: "alice12345"
  - email: t@x.edu
    name: Bob
`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSeedFile(t *testing.T) {
	seed, err := LoadSeedFile(writeSeed(t, seedYAML))
	require.NoError(t, err)
	assert.Len(t, seed.Universities, 1)
	assert.Len(t, seed.Students, 2)
	assert.Equal(t, "registrar123", seed.Universities[0].Password)

	_, err = LoadSeedFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadSeedFile(writeSeed(t, "universities: [unclosed"))
	assert.Error(t, err)
}

func TestDirectoryService(t *testing.T) {
	db, cfg := setupTestDB(t)
	ctx := context.Background()
	s := NewDirectoryService(db, cfg, zap.NewNop())

	seed, err := LoadSeedFile(writeSeed(t, seedYAML))
	require.NoError(t, err)
	require.NoError(t, s.ApplySeed(ctx, seed))

	t.Run("Seeded entries are normalized", func(t *testing.T) {
		u, err := s.GetUniversity(ctx, "registrar@x.edu")
		require.NoError(t, err)
		assert.Equal(t, "X University", u.Name)

		students, err := s.ListStudents(ctx)
		require.NoError(t, err)
		assert.Len(t, students, 2)

		exists, err := s.StudentExists(ctx, "t@x.edu")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Re-applying keeps password hashes", func(t *testing.T) {
		before, err := db.GetUniversity(ctx, "registrar@x.edu")
		require.NoError(t, err)

		require.NoError(t, s.ApplySeed(ctx, seed))

		after, err := db.GetUniversity(ctx, "registrar@x.edu")
		require.NoError(t, err)
		assert.Equal(t, before.PasswordHash, after.PasswordHash)
	})

	t.Run("University login", func(t *testing.T) {
		token, u, err := s.LoginUniversity(ctx, "REGISTRAR@x.edu", "registrar123")
		require.NoError(t, err)
		assert.Equal(t, "registrar@x.edu", u.Email)

		claims, err := auth.ValidateToken(token, cfg.JWT.Secret, cfg.JWT.Issuer)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleUniversity, claims.Role)
		assert.Equal(t, "registrar@x.edu", claims.Email())
	})

	t.Run("University login failures", func(t *testing.T) {
		_, _, err := s.LoginUniversity(ctx, "registrar@x.edu", "wrong-password1")
		requireKind(t, err, KindAuth, CodeUnauthenticated)

		_, _, err = s.LoginUniversity(ctx, "nobody@x.edu", "registrar123")
		requireKind(t, err, KindAuth, CodeUnauthenticated)

		_, _, err = s.LoginUniversity(ctx, "not an email", "registrar123")
		requireKind(t, err, KindAuth, CodeUnauthenticated)
	})

	t.Run("Student login", func(t *testing.T) {
		token, st, err := s.LoginStudent(ctx, "s@x.edu", "alice12345")
		require.NoError(t, err)
		assert.Equal(t, "Alice", st.Name)

		claims, err := auth.ValidateToken(token, cfg.JWT.Secret, cfg.JWT.Issuer)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleStudent, claims.Role)
	})

	t.Run("Student without password cannot sign in", func(t *testing.T) {
		_, _, err := s.LoginStudent(ctx, "t@x.edu", "")
		requireKind(t, err, KindAuth, CodeUnauthenticated)
	})

	t.Run("Missing entries", func(t *testing.T) {
		_, err := s.GetUniversity(ctx, "nobody@x.edu")
		requireKind(t, err, KindNotFound, CodeNotFound)

		_, err = s.GetStudent(ctx, "nobody@x.edu")
		requireKind(t, err, KindNotFound, CodeNotFound)
	})

	t.Run("Weak university password is rejected", func(t *testing.T) {
		err := s.ApplySeed(ctx, &Seed{Universities: []SeedAccount{{Email: "w@x.edu", Name: "W", Password: "short"}}})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "universities[0]")
	})

	t.Run("Malformed email is rejected", func(t *testing.T) {
		err := s.ApplySeed(ctx, &Seed{Students: []SeedAccount{{Email: "nobody", Name: "N"}}})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "students[0]")
	})
}
