package stowage

import (
	"errors"
	"strings"
)

var (
	// ErrUsernameTaken is returned by CreateUser when the credential record
	// already exists.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrUserNotFound is returned by Authenticate for an unknown username.
	// It is never conflated with ErrIncorrectPassword.
	ErrUserNotFound = errors.New("username not found")
	// ErrIncorrectPassword is returned by Authenticate when the derived keys
	// do not match.
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrInvalidToken marks an unauthenticated request: the bearer token is
	// malformed, unknown, or revoked.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrForbidden marks an authenticated request whose token lacks the
	// required permission.
	ErrForbidden = errors.New("insufficient permission")
	// ErrIsDirectory is returned when a write or delete targets a path with
	// a trailing separator, or a document write collides with an existing
	// directory of the same name.
	ErrIsDirectory = errors.New("path is a directory")
	// ErrNotDirectory is returned when a write would traverse an existing
	// document as if it were a directory. A path denotes a document or a
	// directory, never both.
	ErrNotDirectory = errors.New("path traverses a document")
	// ErrLockTimeout is returned when lease-lock acquisition exhausts its
	// retry window.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// ValidationError collects the signup validation failures for a Params
// value. It is returned as a single error so callers can surface every
// failure at once.
type ValidationError struct {
	Failures []string
}

func (e *ValidationError) Error() string {
	return "invalid signup: " + strings.Join(e.Failures, "; ")
}
