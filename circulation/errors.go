/*
errors.go - Centralized error types for the circulation engine

PURPOSE:
  All domain error kinds in one place. Every validation failure is a
  synchronous typed error: local, non-retryable, and never partially
  applied. Callers match kinds with errors.Is and pull context out of the
  structured types with errors.As.

ERROR KINDS:
  ErrNotFound        referenced entity does not exist
  ErrDuplicateKey    identity already exists
  ErrConflict        valid entities, violated invariant (unavailable item,
                     disallowed loan transition, delete-while-on-loan)
  ErrLimitExceeded   loan cap or extension cap reached
  ErrUnauthorized    account not authorized or suspended
  ErrInvalidArgument empty required field, non-positive duration

USAGE:
  if errors.Is(err, circulation.ErrConflict) { ... }

  var susp *circulation.SuspendedError
  if errors.As(err, &susp) { fmt.Println(susp.Until) }
*/
package circulation

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrConflict        = errors.New("conflict")
	ErrLimitExceeded   = errors.New("limit exceeded")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which entity was missing.
type NotFoundError struct {
	Kind string // "entry", "account", "loan"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError describes a violated invariant on otherwise valid entities.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }
func (e *ConflictError) Unwrap() error { return ErrConflict }

// TransitionError is a disallowed loan state machine transition.
// Disallowed transitions fail loudly rather than silently no-op.
type TransitionError struct {
	LoanID LoanID
	From   LoanStatus
	To     LoanStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("loan %s: illegal transition %s -> %s", e.LoanID, e.From, e.To)
}
func (e *TransitionError) Unwrap() error { return ErrConflict }

// LoanLimitError reports a loan cap violation.
type LoanLimitError struct {
	AccountID AccountID
	Open      int
	Max       int
}

func (e *LoanLimitError) Error() string {
	return fmt.Sprintf("account %s: loan limit reached (%d of %d)", e.AccountID, e.Open, e.Max)
}
func (e *LoanLimitError) Unwrap() error { return ErrLimitExceeded }

// SuspendedError reports an attempt to borrow while suspended.
type SuspendedError struct {
	AccountID AccountID
	Until     time.Time
}

func (e *SuspendedError) Error() string {
	return fmt.Sprintf("account %s is suspended until %s", e.AccountID, e.Until.Format("2006-01-02"))
}
func (e *SuspendedError) Unwrap() error { return ErrUnauthorized }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError reports whether the error is due to invalid caller input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrLimitExceeded) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidArgument)
}
