package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"

	// Credential lifecycle codes.
	CodeConfiguration      Code = "configuration_error"    // fatal, never retried
	CodeIntegrity          Code = "integrity_failure"      // digest or signature mismatch
	CodeExpired            Code = "expired"                // credential past expires_at
	CodeRevoked            Code = "revoked"                // credential present in the registry
	CodeTransient          Code = "dependency_unavailable" // caller may retry with backoff
	CodeReplayDetected     Code = "replay_detected"        // challenge already consumed
	CodeChallengeExpired   Code = "challenge_expired"      // challenge past issued_at + ttl
	CodeAuthFailed         Code = "authentication_failed"  // generic denial
	CodePolicyDenied       Code = "policy_denied"
	CodeEntropyUnavailable Code = "entropy_unavailable"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error in the chain,
// or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsDenial reports whether err is a policy-level authentication denial.
// Denials are distinguished in audit logs but collapsed for clients.
func IsDenial(err error) bool {
	switch CodeOf(err) {
	case CodeIntegrity, CodeExpired, CodeRevoked, CodeAuthFailed, CodePolicyDenied:
		return true
	default:
		return false
	}
}
