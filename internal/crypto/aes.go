// Package crypto manages university signing key material. Private keys are
// generated here, serialized as PKCS#8 and sealed at rest with AES-256-GCM
// under the service master key; public keys are exchanged as PKIX PEM so any
// verifier can check a proof without access to secret material.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// MasterKeySize is the AES-256 key length in bytes.
const MasterKeySize = 32

// SealPrivateKey encrypts serialized private key bytes with AES-256-GCM. The
// key id is bound as associated data so a sealed key cannot be swapped onto
// another registry row.
func SealPrivateKey(plaintext []byte, masterKey []byte, keyID string) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// nonce || ciphertext
	sealed := gcm.Seal(nil, nonce, plaintext, []byte(keyID))
	return append(nonce, sealed...), nil
}

// OpenPrivateKey reverses SealPrivateKey.
func OpenPrivateKey(sealed []byte, masterKey []byte, keyID string) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(keyID))
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

func newGCM(masterKey []byte) (cipher.AEAD, error) {
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, len(masterKey))
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// GenerateMasterKey generates a new 256-bit master key.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, MasterKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	return key, nil
}
