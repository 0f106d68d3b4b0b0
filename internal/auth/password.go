package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12

	// MaxPasswordBytes is the longest input bcrypt accepts
	MaxPasswordBytes = 72
)

// dummyHash is compared against when a login names an unknown university so
// both outcomes take the same time
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("certproof-unknown-account"), BcryptCost)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against a hash
func VerifyPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// RejectUnknown burns one bcrypt comparison and always fails
func RejectUnknown(password string) error {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return bcrypt.ErrMismatchedHashAndPassword
}

// ValidatePasswordStrength checks a university password before it is hashed
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)
	}

	hasNumber := false
	hasLetter := false
	for _, char := range password {
		switch {
		case char >= '0' && char <= '9':
			hasNumber = true
		case (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z'):
			hasLetter = true
		}
	}

	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	if !hasLetter {
		return fmt.Errorf("password must contain at least one letter")
	}

	return nil
}
