package chest

import "errors"

// Code is the error taxonomy the HTTP layer maps to a status code. Every
// error the engine returns that should reach a caller as something other
// than a generic 500 is wrapped in an *Error carrying one of these.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"
)

// Error is a taxonomy-coded engine error. internal/httpapi's single
// error-writing chokepoint switches on Code to pick a status; everything
// else about the message is safe to return to the caller verbatim.
type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Message + ": " + e.err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.err }

func newErr(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapErr(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// AsError extracts the taxonomy Code from err, defaulting to CodeInternal
// for anything the engine didn't tag itself.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, Message: "internal error", err: err}
}

// NewError builds a taxonomy-coded error for callers outside this package —
// internal/httpapi uses it for the auth and admission failures that never
// reach the engine (a missing bearer token, a bad TOTP code).
func NewError(code Code, message string) error {
	return newErr(code, message)
}

var (
	ErrSessionNotFound  = newErr(CodeNotFound, "session not found")
	ErrAlreadySealed    = newErr(CodeNotFound, "session already sealed or does not exist")
	ErrCodeNotFound     = newErr(CodeNotFound, "retrieval code not found or expired")
	ErrFileNotFound     = newErr(CodeNotFound, "file not found")
	ErrCodeCollision    = newErr(CodeConflict, "could not allocate a unique retrieval code")
	ErrTokenMismatch    = newErr(CodeForbidden, "token does not authorize this resource")
	ErrFileNotInSession = newErr(CodeBadRequest, "one or more fileIds do not belong to this session")

	ErrMissingBearerToken = newErr(CodeUnauthorized, "missing or malformed bearer token")
	ErrInvalidBearerToken = newErr(CodeUnauthorized, "invalid or expired token")
	ErrAdmissionDenied    = newErr(CodeUnauthorized, "invalid admission code")
)
