package proof

// Verdict is the outcome of verifying a certificate. Exactly one verdict is
// produced per verification.
type Verdict string

const (
	Valid      Verdict = "VALID"
	Tampered   Verdict = "TAMPERED"
	Forged     Verdict = "FORGED"
	UnknownKey Verdict = "UNKNOWN_KEY"
	Revoked    Verdict = "REVOKED"
	NotFound   Verdict = "NOT_FOUND"
)

// Verdicts lists every verdict.
var Verdicts = []Verdict{Valid, Tampered, Forged, UnknownKey, Revoked, NotFound}

// IsIntegrityFailure reports whether v came from the cryptographic checks.
func (v Verdict) IsIntegrityFailure() bool {
	return v == Tampered || v == Forged || v == UnknownKey
}

// Result is what Engine.Verify reports. Reason is Valid exactly when Valid
// is true; otherwise it is one of Tampered, Forged or UnknownKey.
type Result struct {
	Valid  bool
	Reason Verdict
	Detail string
	// Key is the resolved verification key when Valid is true.
	Key *PublicKey
}
