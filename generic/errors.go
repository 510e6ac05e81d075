/*
errors.go - Centralized error types for the reduction engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Input errors - Rejected locally, state unchanged (InvalidInput, IndexOutOfRange)
  2. Port errors - The rule evaluation port could not produce a value
  3. Store errors - Persistence failures and missing simulations

RECOVERABILITY:
  No error here is fatal. Every failure is cured by correcting the
  offending input and calling the mutator again.

USAGE:
    if errors.Is(err, generic.ErrInvalidInput) {
        // 400, state untouched
    }

    var evalErr *generic.EvaluationError
    if errors.As(err, &evalErr) {
        log.Printf("month %s failed on rule %s", evalErr.Month, evalErr.Rule)
    }

SEE ALSO:
  - reduction/evaluator.go: Produces EvaluationError
  - reduction/reconcile.go: Produces DependencyError
  - api/handlers.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for negative or non-finite amounts, unknown
	// option keys and malformed option values. State is left unchanged.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIndexOutOfRange is returned for a month index outside 0..11.
	ErrIndexOutOfRange = errors.New("month index out of range")

	// ErrUnknownOption is returned for an option key no definition exists for.
	// It also matches ErrInvalidInput.
	ErrUnknownOption = errors.New("unknown option")

	// ErrPortUnavailable is returned when the rule evaluation port cannot be
	// reached at all.
	ErrPortUnavailable = errors.New("rule evaluation port unavailable")

	// ErrPortEvaluationFailed is returned when the port could not produce a
	// value for a required target.
	ErrPortEvaluationFailed = errors.New("rule evaluation failed")

	// ErrDependsOnFailedMonth marks a month whose result needs a month that failed.
	ErrDependsOnFailedMonth = errors.New("depends on a failed month")

	// ErrSimulationNotFound is returned when a stored simulation doesn't exist.
	ErrSimulationNotFound = errors.New("simulation not found")

	// ErrInvalidSnapshot is returned when a persisted year is not structurally valid.
	ErrInvalidSnapshot = errors.New("invalid year snapshot")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError describes which field was rejected and why.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// UnknownOptionError names the rejected option key.
type UnknownOptionError struct {
	Key string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("unknown option %q", e.Key)
}

func (e *UnknownOptionError) Unwrap() []error { return []error{ErrUnknownOption, ErrInvalidInput} }

// IndexOutOfRangeError carries the offending month index.
type IndexOutOfRangeError struct {
	Index int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("month index %d out of range [0, %d]", e.Index, MonthsPerYear-1)
}

func (e *IndexOutOfRangeError) Unwrap() error { return ErrIndexOutOfRange }

// EvaluationError records which month and rule the port failed on.
// Err is the port's own error; when it wraps neither port sentinel the
// error still matches ErrPortEvaluationFailed.
type EvaluationError struct {
	Month Month
	Rule  RuleID
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s for %s: %v", e.Rule, e.Month, e.Err)
}

func (e *EvaluationError) Unwrap() []error {
	if errors.Is(e.Err, ErrPortUnavailable) || errors.Is(e.Err, ErrPortEvaluationFailed) {
		return []error{e.Err}
	}
	return []error{ErrPortEvaluationFailed, e.Err}
}

// DependencyError marks a month left without a result because an earlier
// month it depends on failed.
type DependencyError struct {
	Month       Month
	FailedMonth Month
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s not reconciled: depends on failed month %s", e.Month, e.FailedMonth)
}

func (e *DependencyError) Unwrap() error { return ErrDependsOnFailedMonth }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrInvalidSnapshot)
}

// IsNotFound returns true if the error indicates a missing simulation.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSimulationNotFound)
}

// IsPortFailure returns true if the rule evaluation port is at fault.
func IsPortFailure(err error) bool {
	return errors.Is(err, ErrPortUnavailable) ||
		errors.Is(err, ErrPortEvaluationFailed) ||
		errors.Is(err, ErrDependsOnFailedMonth)
}
