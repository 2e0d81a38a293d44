/*
errors.go - Centralized error types for the habit engine

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR CATEGORIES:
  1. Validation errors - malformed day keys, bundle selector violations,
     attempts to write derived-only fields. Surfaced synchronously, never
     retried. 4xx-equivalent.
  2. Not-found errors - missing habit or entry. Surfaced directly.
  3. Recompute inconsistency - a habit vanished mid-recompute. Fatal for the
     request: it indicates a referential-integrity violation upstream and is
     never silently swallowed.

  Freeze-service failures are a non-category on purpose: they are caught and
  logged inside the freeze service, never propagated (best-effort semantics).

USAGE:
    if habit.IsClientError(err) { ... 400 ... }
    var verr *habit.ValidationError
    if errors.As(err, &verr) { ... verr.Field ... }
*/
package habit

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrHabitNotFound is returned when a referenced habit doesn't exist.
	ErrHabitNotFound = errors.New("habit not found")

	// ErrEntryNotFound is returned when a referenced entry doesn't exist.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrValidation is the root of all input-validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrRecomputeInconsistency is returned when a recompute assumed a habit
	// existed and it didn't. Referential integrity was violated upstream.
	ErrRecomputeInconsistency = errors.New("recompute inconsistency")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports invalid client input: a malformed day key or time
// zone, a bundle selector violation, a metric-presence mismatch, or an
// attempt to write a derived-only field.
type ValidationError struct {
	Field   string // offending field or bundle option
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies which record was missing.
type NotFoundError struct {
	Kind string // "habit" or "entry"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	if e.Kind == "habit" {
		return ErrHabitNotFound
	}
	return ErrEntryNotFound
}

// RecomputeInconsistencyError is fatal for the surrounding request.
type RecomputeInconsistencyError struct {
	HabitID string
	DayKey  DayKey
}

func (e *RecomputeInconsistencyError) Error() string {
	return fmt.Sprintf("recompute for habit %s on %s: habit definition missing", e.HabitID, e.DayKey)
}

func (e *RecomputeInconsistencyError) Unwrap() error { return ErrRecomputeInconsistency }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrHabitNotFound) || errors.Is(err, ErrEntryNotFound)
}
