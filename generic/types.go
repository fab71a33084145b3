/*
Package generic provides the domain-agnostic core of the obligation engine.

PURPOSE:
  Billing and payroll generation share the same mechanics: slice a date range
  into periods, decide which periods are due, price each one in fixed-point
  money and create exactly one record per (entity, period). This package holds
  those mechanics; the billing and payroll packages plug in their own entities
  and stores.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal rounded to the configured currency precision
  - EntityID: identifier of a contract or an employee
  - Clock / ExecutionContext: who runs a generation, and what "today" is

DESIGN PRINCIPLES:
  1. Precision: money never touches float64
  2. Purity: period and amount calculations take values, not stores
  3. Explicit context: actor, clock and timezone are passed in, never looked up

SEE ALSO:
  - period.go: Period, Cycle and Schedule (the period calculator)
  - batch.go: BatchRunner and GenerationResult
  - errors.go: Sentinel errors
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is a fixed-point currency amount.
type Money = decimal.Decimal

// DefaultCurrencyPrecision is the number of decimal places kept on amounts.
const DefaultCurrencyPrecision int32 = 2

// RoundMoney rounds half away from zero to precision places.
func RoundMoney(m Money, precision int32) Money {
	return m.Round(precision)
}

// SmallestUnit is 10^-precision (0.01 for two places).
func SmallestUnit(precision int32) Money {
	return decimal.New(1, -precision)
}

func MustParseMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EntityID identifies a contract or an employee.
type EntityID string

// =============================================================================
// CLOCK / EXECUTION CONTEXT
// =============================================================================

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns At. Used by tests and manual back-dated runs.
type FixedClock struct{ At time.Time }

func (c FixedClock) Now() time.Time { return c.At }

// ExecutionContext travels with every generation call.
type ExecutionContext struct {
	// Actor is recorded as CreatedBy on every generated record.
	Actor string
	Clock Clock
	// Location decides which calendar date "now" is (e.g. Asia/Kolkata).
	Location *time.Location
	// CurrencyPrecision is the number of decimal places kept on amounts.
	// Nil means DefaultCurrencyPrecision; 0 is whole currency units.
	CurrencyPrecision *int32
}

// Now returns the current instant from the clock, in Location.
func (ec ExecutionContext) Now() time.Time {
	var now time.Time
	if ec.Clock != nil {
		now = ec.Clock.Now()
	} else {
		now = time.Now()
	}
	if ec.Location != nil {
		now = now.In(ec.Location)
	}
	return now
}

// Today is the calendar date of Now in Location.
func (ec ExecutionContext) Today() TimePoint {
	return DateOf(ec.Now(), ec.Location)
}

func (ec ExecutionContext) Precision() int32 {
	if ec.CurrencyPrecision == nil {
		return DefaultCurrencyPrecision
	}
	return *ec.CurrencyPrecision
}
