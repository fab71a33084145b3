/*
errors.go - Centralized error types for the generation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores translate driver errors into these sentinels so the generators
  never inspect SQLite or PostgreSQL error codes.

ERROR CATEGORIES:
  1. Idempotency errors - A record for the period (or its number) exists
  2. Validation errors  - Bad contract or employee data (per-entity failure)
  3. Lookup errors      - Missing entities

USAGE:
  if errors.Is(err, generic.ErrDuplicateRecord) {
      // another run generated this period first: count as skipped
  }

SEE ALSO:
  - batch.go: Collects EntityError values into GenerationResult
  - store/sqlite/sqlite.go: Maps unique-constraint violations
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
	// ErrDuplicateRecord is returned when a record for the same
	// (entity, period_from, period_to) already exists. Generators treat it as
	// "already generated".
	ErrDuplicateRecord = errors.New("record already exists for period")

	// ErrDuplicateRecordNumber is returned when the record number is taken.
	ErrDuplicateRecordNumber = errors.New("record number already exists")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrUnknownCycle is returned for billing cycles outside the known set.
	ErrUnknownCycle = errors.New("unknown billing cycle")

	// ErrInvalidContract covers contract data that cannot be billed.
	ErrInvalidContract = errors.New("invalid contract")

	// ErrInvalidEmployee covers employee data that cannot be paid.
	ErrInvalidEmployee = errors.New("invalid employee")

	// ErrNotFound is returned when a referenced entity doesn't exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// EntityError is one entity's failure inside a batch run.
type EntityError struct {
	EntityID EntityID
	Err      error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("entity %s: %v", e.EntityID, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking entity generator.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsAlreadyGenerated reports whether err means the period was generated by
// an earlier or concurrent run.
func IsAlreadyGenerated(err error) bool {
	return errors.Is(err, ErrDuplicateRecord)
}

// IsDataError returns true if the error is caused by the entity's own data
// rather than by the store.
func IsDataError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrUnknownCycle) ||
		errors.Is(err, ErrInvalidContract) ||
		errors.Is(err, ErrInvalidEmployee)
}
