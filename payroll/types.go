// Package payroll generates monthly payroll records from attendance.
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/obligation-engine/generic"
)

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID            generic.EntityID
	Code          string // employee_code, e.g. "EMP-014"
	Name          string
	MonthlySalary generic.Money
	JoiningDate   generic.TimePoint

	// DecodeErr is set by a store when a stored column could not be decoded.
	DecodeErr error
}

func (e Employee) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", generic.ErrInvalidEmployee)
	}
	if e.DecodeErr != nil {
		return fmt.Errorf("%w: %w", generic.ErrInvalidEmployee, e.DecodeErr)
	}
	if e.MonthlySalary.IsNegative() {
		return fmt.Errorf("%w: negative salary %s", generic.ErrInvalidEmployee, e.MonthlySalary)
	}
	return nil
}

func (e Employee) Label() string {
	switch {
	case e.Code != "" && e.Name != "":
		return e.Code + " (" + e.Name + ")"
	case e.Code != "":
		return e.Code
	default:
		return string(e.ID)
	}
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "Present"
	AttendanceAbsent  AttendanceStatus = "Absent"
	AttendanceHalfDay AttendanceStatus = "Half-Day"
	AttendanceLeave   AttendanceStatus = "Leave"
)

// CountsAsPresent is true for Present and Half-Day. A half day counts as a
// full present day.
func (s AttendanceStatus) CountsAsPresent() bool {
	return s == AttendancePresent || s == AttendanceHalfDay
}

// AttendanceEntry is one employee-day.
type AttendanceEntry struct {
	EmployeeID generic.EntityID
	Date       generic.TimePoint
	Status     AttendanceStatus
}

// AttendanceAggregator counts present days (Present or Half-Day entries) for
// an employee within [p.Start, p.End].
type AttendanceAggregator interface {
	CountPresent(ctx context.Context, employeeID generic.EntityID, p generic.Period) (int, error)
}

// =============================================================================
// PAYROLL RECORD
// =============================================================================

type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
)

// Record is one employee's payroll for one calendar month.
type Record struct {
	ID          string
	EmployeeID  generic.EntityID
	Period      generic.Period
	WorkingDays int
	DaysPresent int
	NetAmount   generic.Money
	Status      Status
	Notes       string
	CreatedBy   string
	CreatedAt   time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Store is the employee-side persistence the generator needs.
//
// InsertPayrollRecord must return generic.ErrDuplicateRecord when the
// employee already has a record starting on Period.Start, backed by a unique
// constraint.
type Store interface {
	AllEmployees(ctx context.Context) ([]Employee, error)
	PayrollRecordExists(ctx context.Context, employeeID generic.EntityID, month generic.Period) (bool, error)
	InsertPayrollRecord(ctx context.Context, rec Record) error
}

type TxStore interface {
	Store
	WithPayrollTx(ctx context.Context, fn func(Store) error) error
}

type RecordReader interface {
	PayrollRecords(ctx context.Context, employeeID generic.EntityID) ([]Record, error)
}
