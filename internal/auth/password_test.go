package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	t.Run("Hash is salted and verifiable", func(t *testing.T) {
		hash1, err := HashPassword("Registrar2024")
		require.NoError(t, err)
		hash2, err := HashPassword("Registrar2024")
		require.NoError(t, err)

		assert.NotEqual(t, hash1, hash2)
		assert.NoError(t, VerifyPassword("Registrar2024", hash1))
		assert.NoError(t, VerifyPassword("Registrar2024", hash2))
	})

	t.Run("Hash uses configured cost", func(t *testing.T) {
		hash, err := HashPassword("Registrar2024")
		require.NoError(t, err)

		cost, err := bcrypt.Cost([]byte(hash))
		require.NoError(t, err)
		assert.Equal(t, BcryptCost, cost)
	})

	t.Run("Input beyond bcrypt limit is refused", func(t *testing.T) {
		_, err := HashPassword(strings.Repeat("a", MaxPasswordBytes+1))
		assert.Error(t, err)
	})
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Registrar2024")
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  bool
	}{
		{"Correct password", "Registrar2024", hash, false},
		{"Wrong password", "Registrar2025", hash, true},
		{"Case matters", "registrar2024", hash, true},
		{"Invalid hash", "Registrar2024", "invalid-hash", true},
		{"Empty hash", "Registrar2024", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword(tt.password, tt.hash)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRejectUnknown(t *testing.T) {
	err := RejectUnknown("certproof-unknown-account")
	assert.ErrorIs(t, err, bcrypt.ErrMismatchedHashAndPassword)
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		errText  string
	}{
		{"Valid", "Registrar2024", ""},
		{"Exactly eight", "abcdefg1", ""},
		{"With spaces and symbols", "My Registrar #1", ""},
		{"Too short", "Reg1", "at least 8 characters"},
		{"Empty", "", "at least 8 characters"},
		{"Missing number", "Registrar", "at least one number"},
		{"Missing letter", "12345678", "at least one letter"},
		{"Too long", "Registrar1" + strings.Repeat("a", MaxPasswordBytes), "at most"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if tt.errText == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}
