package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeNotActive    = "not_active"
)

var (
	// ErrUnauthenticated rejects a handshake: missing, invalid or expired credential, or unknown user.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUserNotFound is returned by UserLookup implementations for deleted users.
	ErrUserNotFound = errors.New("user not found")
	// ErrTargetUnreachable means a room had no live connections. Callers drop it silently.
	ErrTargetUnreachable = errors.New("target unreachable")
	// ErrTransportWrite wraps a failed push to one connection.
	ErrTransportWrite = errors.New("transport write failed")
	// ErrMalformedInbound marks an inbound event that was discarded.
	ErrMalformedInbound = errors.New("malformed inbound event")
	// ErrConnNotActive is returned for operations on connections outside the Active state.
	ErrConnNotActive = errors.New("connection not active")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, err error) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: err}
}

// Malformed builds the error returned for discarded inbound events.
func Malformed(msg string) *CoreError {
	return coreError(ErrCodeBadRequest, msg, ErrMalformedInbound)
}
