// Package proof binds a certificate's canonical bytes to its issuer. A proof
// carries a content digest and an asymmetric signature over that digest,
// together with the algorithm identifiers and key id needed to check them
// later. Verification only ever checks; it never needs secret key material.
package proof

import (
	"context"
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	keycrypto "github.com/robcowart/certproof/internal/crypto"
	"golang.org/x/crypto/sha3"
)

// Digest algorithm identifiers.
const (
	DigestSHA256   = "SHA-256"
	DigestSHA3_256 = "SHA3-256"
)

// Signature algorithm identifiers. They match the key registry algorithms.
const (
	SignatureEd25519   = keycrypto.AlgorithmEd25519
	SignatureECDSAP256 = keycrypto.AlgorithmECDSAP256
)

var digests = map[string]func() hash.Hash{
	DigestSHA256:   sha256.New,
	DigestSHA3_256: sha3.New256,
}

// Proof is the integrity and origin evidence stored with a certificate.
type Proof struct {
	DigestAlgorithm        string `json:"digestAlgorithm"`
	DigestHex              string `json:"digestHex"`
	SignatureAlgorithm     string `json:"signatureAlgorithm"`
	SignatureHex           string `json:"signatureHex"`
	SigningUniversityKeyID string `json:"signingUniversityKeyId"`
}

// SigningKey is a university's private signing key as handed to Generate.
type SigningKey struct {
	KeyID     string
	Algorithm string
	Signer    stdcrypto.Signer
}

// PublicKey is a resolved verification key.
type PublicKey struct {
	KeyID     string
	Algorithm string
	// Owner is the email of the university the key was registered to.
	Owner string
	Key   stdcrypto.PublicKey
}

// ErrUnknownKey is returned by resolvers for key ids they do not know.
var ErrUnknownKey = errors.New("unknown signing key")

// PublicKeyResolver looks up verification keys by key id.
type PublicKeyResolver interface {
	ResolvePublicKey(ctx context.Context, keyID string) (*PublicKey, error)
}

// Engine generates and verifies proofs. The zero value is not usable; call
// NewEngine.
type Engine struct {
	digestAlgorithm string
}

// NewEngine returns an engine that digests new proofs with digestAlgorithm.
// Verification accepts every registered digest algorithm regardless.
func NewEngine(digestAlgorithm string) (*Engine, error) {
	if _, ok := digests[digestAlgorithm]; !ok {
		return nil, fmt.Errorf("unsupported digest algorithm: %s", digestAlgorithm)
	}
	return &Engine{digestAlgorithm: digestAlgorithm}, nil
}

// DigestAlgorithm returns the algorithm used for new proofs.
func (e *Engine) DigestAlgorithm() string {
	return e.digestAlgorithm
}

// SupportedDigests lists the registered digest algorithms.
func SupportedDigests() []string {
	return []string{DigestSHA256, DigestSHA3_256}
}

// Digest hashes canonical bytes with the named algorithm.
func Digest(algorithm string, canonical []byte) ([]byte, error) {
	newHash, ok := digests[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported digest algorithm: %s", algorithm)
	}
	h := newHash()
	h.Write(canonical)
	return h.Sum(nil), nil
}

// Generate digests canonical and signs the digest with key.
func (e *Engine) Generate(canonical []byte, key *SigningKey) (*Proof, error) {
	if key == nil || key.Signer == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if key.KeyID == "" {
		return nil, fmt.Errorf("signing key id is required")
	}

	digest, err := Digest(e.digestAlgorithm, canonical)
	if err != nil {
		return nil, err
	}

	sig, err := sign(key, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}

	return &Proof{
		DigestAlgorithm:        e.digestAlgorithm,
		DigestHex:              hex.EncodeToString(digest),
		SignatureAlgorithm:     key.Algorithm,
		SignatureHex:           hex.EncodeToString(sig),
		SigningUniversityKeyID: key.KeyID,
	}, nil
}

func sign(key *SigningKey, digest []byte) ([]byte, error) {
	if got := keycrypto.AlgorithmOf(key.Signer.Public()); got != key.Algorithm {
		return nil, fmt.Errorf("key %s is %q, not %q", key.KeyID, got, key.Algorithm)
	}

	switch key.Algorithm {
	case SignatureEd25519:
		// Pure Ed25519 over the digest bytes.
		return key.Signer.Sign(rand.Reader, digest, stdcrypto.Hash(0))
	case SignatureECDSAP256:
		// ASN.1 DER signature; the digest is already 32 bytes.
		return key.Signer.Sign(rand.Reader, digest, stdcrypto.SHA256)
	default:
		return nil, fmt.Errorf("unsupported signature algorithm: %s", key.Algorithm)
	}
}

// Verify re-derives the digest of canonical and checks p against it and
// against the key resolved for p's key id. The returned error is non-nil
// only when the resolver fails for a reason other than ErrUnknownKey; every
// cryptographic outcome is reported through Result.
func (e *Engine) Verify(ctx context.Context, canonical []byte, p *Proof, resolver PublicKeyResolver) (Result, error) {
	if p == nil {
		return Result{Reason: Tampered, Detail: "proof is missing"}, nil
	}

	digest, err := Digest(p.DigestAlgorithm, canonical)
	if err != nil {
		return Result{Reason: Tampered, Detail: err.Error()}, nil
	}

	claimed, err := hex.DecodeString(p.DigestHex)
	if err != nil || len(claimed) != len(digest) {
		return Result{Reason: Tampered, Detail: "malformed digest"}, nil
	}
	if subtle.ConstantTimeCompare(digest, claimed) != 1 {
		return Result{Reason: Tampered, Detail: "digest mismatch"}, nil
	}

	if p.SigningUniversityKeyID == "" {
		return Result{Reason: UnknownKey, Detail: "proof names no signing key"}, nil
	}

	pub, err := resolver.ResolvePublicKey(ctx, p.SigningUniversityKeyID)
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			return Result{Reason: UnknownKey, Detail: fmt.Sprintf("key %s is not registered", p.SigningUniversityKeyID)}, nil
		}
		return Result{}, fmt.Errorf("failed to resolve key %s: %w", p.SigningUniversityKeyID, err)
	}

	sig, err := hex.DecodeString(p.SignatureHex)
	if err != nil || len(sig) == 0 {
		return Result{Reason: Forged, Detail: "malformed signature"}, nil
	}

	if !checkSignature(p.SignatureAlgorithm, pub, digest, sig) {
		return Result{Reason: Forged, Detail: "signature does not verify"}, nil
	}

	return Result{Valid: true, Reason: Valid, Key: pub}, nil
}

func checkSignature(algorithm string, pub *PublicKey, digest, sig []byte) bool {
	if pub == nil || pub.Key == nil {
		return false
	}
	// The algorithm in the proof must agree with the registered key.
	if algorithm != pub.Algorithm || keycrypto.AlgorithmOf(pub.Key) != algorithm {
		return false
	}

	switch algorithm {
	case SignatureEd25519:
		key, ok := pub.Key.(ed25519.PublicKey)
		return ok && ed25519.Verify(key, digest, sig)
	case SignatureECDSAP256:
		key, ok := pub.Key.(*ecdsa.PublicKey)
		return ok && ecdsa.VerifyASN1(key, digest, sig)
	default:
		return false
	}
}
