// Package common defines shared constants and sentinel errors used across
// client and server layers of authkeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// ErrRefreshTokenStale is returned by a compare-and-set on the stored
	// refresh token when the stored value no longer matches the expected one.
	ErrRefreshTokenStale = errors.New("refresh token stale")

	// Auth errors. Every token failure wraps ErrInvalidToken.
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = tokenError("token expired")
	ErrTokenMalformed     = tokenError("token malformed")
	ErrTokenBadSignature  = tokenError("token signature invalid")
	ErrUnknownTokenKind   = errors.New("unknown token kind")
	ErrMissingTokenSecret = errors.New("token secret is not configured")
)

func tokenError(msg string) error {
	return &wrapped{msg: msg, kind: ErrInvalidToken}
}

type wrapped struct {
	msg  string
	kind error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.kind }

// Error is a service error with a short, user-facing message.
// errors.Is matches it against its Kind sentinel.
type Error struct {
	Kind    error
	Message string
}

// NewError builds an *Error of the given kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// Message returns the user-facing message carried by err, or fallback when
// err is not an *Error.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
