// Package service implements issuance, verification, revocation and signing
// key management over the credential store. Failures that callers act on are
// returned as *Error values classified by Kind.
package service

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("service")

// Kind classifies a failure by what the caller can do about it
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindAuth       Kind = "AUTH"
	KindConflict   Kind = "CONFLICT"
	KindNotFound   Kind = "NOT_FOUND"
	KindIntegrity  Kind = "INTEGRITY"
	KindRevoked    Kind = "REVOKED"
	KindTransient  Kind = "TRANSIENT"
)

// Code names the specific failure within a Kind
type Code string

const (
	CodeInvalidField    Code = "INVALID_FIELD"
	CodeUnknownStudent  Code = "UNKNOWN_STUDENT"
	CodeDuplicateID     Code = "DUPLICATE_ID"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeIssuerMismatch  Code = "ISSUER_MISMATCH"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeStorageFailure  Code = "STORAGE_FAILURE"
	CodeProofInvalid    Code = "PROOF_INVALID"
)

// Error is a classified service failure. Field is set for validation
// failures that concern a single input field
type Error struct {
	Kind    Kind
	Code    Code
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a classified error from err's chain
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is a classified error of the given kind
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func invalidField(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidField, Field: field, Message: message}
}

func notFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: message}
}

func unauthenticated(message string) *Error {
	return &Error{Kind: KindAuth, Code: CodeUnauthenticated, Message: message}
}

func forbidden(code Code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

func transient(message string, err error) *Error {
	return &Error{Kind: KindTransient, Code: CodeStorageFailure, Message: message, Err: err}
}
