/*
errors.go - Centralized error taxonomy for the wagering engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Domain packages (match, request, wallet, gate) build their errors
  from these kinds; the API layer maps kinds to HTTP statuses.

ERROR KINDS:
  Unauthenticated    No or invalid caller identity
  PermissionDenied   Authenticated but insufficient role
  InvalidArgument    Malformed/out-of-range input
  NotFound           Missing document, or present in the wrong status
  AlreadyExists      Duplicate create (e.g. joining a match twice)
  FailedPrecondition State-machine guard failed (balance, status, actor)
  Aborted            Optimistic-conflict retries exhausted
  Internal           Unexpected store failure (detail logged, not leaked)

USAGE:
  Build:   engine.Errorf(engine.FailedPrecondition, "match %s is full", id)
  Check:   engine.KindOf(err) == engine.NotFound
  Unwrap:  errors.Is / errors.As work through *engine.Error

SEE ALSO:
  - coordinator.go: Converts store conflicts to Aborted
  - api/handlers.go: Kind-to-status mapping
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// KINDS
// =============================================================================

// Kind classifies an error for callers. Stable across the API boundary.
type Kind string

const (
	Unauthenticated    Kind = "unauthenticated"
	PermissionDenied   Kind = "permission_denied"
	InvalidArgument    Kind = "invalid_argument"
	NotFound           Kind = "not_found"
	AlreadyExists      Kind = "already_exists"
	FailedPrecondition Kind = "failed_precondition"
	Aborted            Kind = "aborted"
	Internal           Kind = "internal"
)

// =============================================================================
// ERROR TYPE
// =============================================================================

// Error carries a kind, a caller-safe message, and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // underlying cause, never shown to callers
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, or Internal if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// =============================================================================
// STORE SENTINELS - Use with errors.Is()
// =============================================================================

var (
	// ErrConflict is returned by Store.Commit when a read document was
	// concurrently modified. The coordinator retries the whole unit on it.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrDocMissing is returned by reads of absent documents.
	ErrDocMissing = errors.New("document does not exist")

	// ErrDocExists is returned by a Create write targeting an existing document.
	ErrDocExists = errors.New("document already exists")
)

// IsRetryable reports whether the error might succeed on a fresh attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
