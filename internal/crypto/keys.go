package crypto

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Signature key algorithms understood by the key registry.
const (
	AlgorithmEd25519   = "Ed25519"
	AlgorithmECDSAP256 = "ECDSA-P256"
)

// SupportedAlgorithms lists the key algorithms accepted in configuration.
var SupportedAlgorithms = []string{AlgorithmEd25519, AlgorithmECDSAP256}

// KeyPair is a freshly generated signing key.
type KeyPair struct {
	Algorithm     string
	Signer        stdcrypto.Signer
	PrivateKeyDER []byte // PKCS#8
	PublicKeyPEM  string // PKIX
}

// GenerateKeyPair creates a signing key for the given algorithm.
func GenerateKeyPair(algorithm string) (*KeyPair, error) {
	signer, err := generatePrivateKey(algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(signer)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	pubPEM, err := MarshalPublicKeyPEM(signer.Public())
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		Algorithm:     algorithm,
		Signer:        signer,
		PrivateKeyDER: der,
		PublicKeyPEM:  pubPEM,
	}, nil
}

func generatePrivateKey(algorithm string) (stdcrypto.Signer, error) {
	switch algorithm {
	case AlgorithmEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return priv, nil
	case AlgorithmECDSAP256:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", algorithm)
	}
}

// ParsePrivateKey parses PKCS#8 bytes and checks the key matches algorithm.
func ParsePrivateKey(der []byte, algorithm string) (stdcrypto.Signer, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	signer, ok := key.(stdcrypto.Signer)
	if !ok {
		return nil, fmt.Errorf("private key is not a signer")
	}

	if got := AlgorithmOf(signer.Public()); got != algorithm {
		return nil, fmt.Errorf("private key algorithm %q does not match %q", got, algorithm)
	}
	return signer, nil
}

// AlgorithmOf names the registry algorithm of a public key, or "" if the key
// type is not supported.
func AlgorithmOf(pub stdcrypto.PublicKey) string {
	switch key := pub.(type) {
	case ed25519.PublicKey:
		return AlgorithmEd25519
	case *ecdsa.PublicKey:
		if key.Curve == elliptic.P256() {
			return AlgorithmECDSAP256
		}
	}
	return ""
}

// MarshalPublicKeyPEM encodes a public key as a PKIX "PUBLIC KEY" block.
func MarshalPublicKeyPEM(pub stdcrypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	})), nil
}

// ParsePublicKeyPEM decodes a PKIX "PUBLIC KEY" block.
func ParsePublicKeyPEM(data string) (stdcrypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("failed to decode public key PEM")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	if AlgorithmOf(pub) == "" {
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
	return pub, nil
}
