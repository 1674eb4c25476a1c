// Package apperror defines the error kinds shared by the service, storage and
// HTTP layers.
//
// Every domain failure is an *AppError wrapping exactly one sentinel kind.
// Callers test the kind with errors.Is; only the handler package turns a kind
// into an HTTP status.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrUnauthorized covers missing, malformed, expired or wrong-kind tokens.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRejected marks an OAuth callback stopped before a session was issued.
	// The AppError.Code carries the reason (bad_state, no_token, no_email).
	ErrRejected = errors.New("rejected")

	// ErrUpstream is a GitHub API or OAuth provider failure.
	ErrUpstream = errors.New("upstream error")

	// ErrCorruptedCredential means a stored provider token could not be
	// decrypted. The user has to sign in with GitHub again.
	ErrCorruptedCredential = errors.New("corrupted credential")
)

// Rejection reasons for the OAuth callback.
const (
	ReasonBadState = "bad_state"
	ReasonNoToken  = "no_token"
	ReasonNoEmail  = "no_email"
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Code    string // Optional: machine-readable reason, e.g. "no_email"
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized returns an AppError for a missing or invalid credential (401).
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Rejected stops the OAuth callback with the given reason.
func Rejected(reason, message string) *AppError {
	return &AppError{
		Err:     ErrRejected,
		Message: message,
		Code:    reason,
	}
}

// Upstream wraps a GitHub failure. The cause is kept for logging but the
// message shown to clients is generic.
func Upstream(message string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrUpstream, cause),
		Message: message,
	}
}

func CorruptedCredential(cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrCorruptedCredential, cause),
		Message: "stored GitHub credential is unreadable, sign in with GitHub again",
	}
}
