package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthenticated   = "unauthenticated"
	ErrCodeInvalidCredential = "invalid_credential"
	ErrCodePrincipalNotFound = "principal_not_found"
	ErrCodeStoreUnavailable  = "store_unavailable"
	ErrCodeNotFound          = "not_found"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeUnauthorized      = "unauthorized"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
