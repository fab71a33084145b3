// Package memory provides an in-memory store for tests and local development.
//
// Transactions are simulated with a snapshot taken under the write lock and
// restored when fn fails. Contract data, employee data and attendance each
// have their own lock, so a payroll transaction can read attendance.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/payroll"
)

type periodKey struct {
	EntityID generic.EntityID
	From     string
	To       string
}

func keyOf(id generic.EntityID, p generic.Period) periodKey {
	return periodKey{EntityID: id, From: p.Start.String(), To: p.End.String()}
}

// Store implements billing.TxStore, payroll.TxStore, payroll.AttendanceAggregator,
// the record readers, generic.RunLog and generic.Inbox.
type Store struct {
	billingMu sync.RWMutex
	contracts map[generic.EntityID]billing.Contract
	bills     map[periodKey]billing.BillingRecord
	numbers   map[string]bool

	payrollMu sync.RWMutex
	employees map[generic.EntityID]payroll.Employee
	payrolls  map[periodKey]payroll.Record

	attendanceMu sync.RWMutex
	attendance   map[attendanceKey]payroll.AttendanceStatus

	miscMu        sync.Mutex
	runs          []generic.RunRecord
	notifications []generic.Notification
}

type attendanceKey struct {
	EmployeeID generic.EntityID
	Date       string
}

func New() *Store {
	return &Store{
		contracts:  make(map[generic.EntityID]billing.Contract),
		bills:      make(map[periodKey]billing.BillingRecord),
		numbers:    make(map[string]bool),
		employees:  make(map[generic.EntityID]payroll.Employee),
		payrolls:   make(map[periodKey]payroll.Record),
		attendance: make(map[attendanceKey]payroll.AttendanceStatus),
	}
}

// =============================================================================
// CONTRACTS AND BILLING RECORDS
// =============================================================================

// SaveContract inserts or replaces a contract.
func (s *Store) SaveContract(_ context.Context, c billing.Contract) error {
	s.billingMu.Lock()
	defer s.billingMu.Unlock()
	s.contracts[c.ID] = c
	return nil
}

// ListContracts returns every contract ordered by id.
func (s *Store) ListContracts(_ context.Context) ([]billing.Contract, error) {
	s.billingMu.RLock()
	defer s.billingMu.RUnlock()
	out := slices.Collect(maps.Values(s.contracts))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ActiveContracts(_ context.Context) ([]billing.Contract, error) {
	s.billingMu.RLock()
	defer s.billingMu.RUnlock()
	return s.activeContractsLocked(), nil
}

func (s *Store) activeContractsLocked() []billing.Contract {
	var out []billing.Contract
	for _, c := range s.contracts {
		if c.IsActive() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) RecordExists(_ context.Context, contractID generic.EntityID, p generic.Period) (bool, error) {
	s.billingMu.RLock()
	defer s.billingMu.RUnlock()
	_, ok := s.bills[keyOf(contractID, p)]
	return ok, nil
}

func (s *Store) RecordNumberExists(_ context.Context, number string) (bool, error) {
	s.billingMu.RLock()
	defer s.billingMu.RUnlock()
	return s.numbers[number], nil
}

func (s *Store) InsertBillingRecord(_ context.Context, rec billing.BillingRecord) error {
	s.billingMu.Lock()
	defer s.billingMu.Unlock()
	return s.insertBillLocked(rec)
}

func (s *Store) insertBillLocked(rec billing.BillingRecord) error {
	k := keyOf(rec.ContractID, rec.Period)
	if _, ok := s.bills[k]; ok {
		return fmt.Errorf("%w: contract %s period %s", generic.ErrDuplicateRecord, rec.ContractID, rec.Period)
	}
	if s.numbers[rec.Number] {
		return fmt.Errorf("%w: %s", generic.ErrDuplicateRecordNumber, rec.Number)
	}
	s.bills[k] = rec
	s.numbers[rec.Number] = true
	return nil
}

// WithBillingTx runs fn with exclusive access to contract data.
func (s *Store) WithBillingTx(_ context.Context, fn func(billing.Store) error) error {
	s.billingMu.Lock()
	defer s.billingMu.Unlock()

	bills := maps.Clone(s.bills)
	numbers := maps.Clone(s.numbers)

	if err := fn(&billingView{parent: s}); err != nil {
		s.bills = bills
		s.numbers = numbers
		return err
	}
	return nil
}

// BillingRecords lists a contract's records ordered by period start.
func (s *Store) BillingRecords(_ context.Context, contractID generic.EntityID) ([]billing.BillingRecord, error) {
	s.billingMu.RLock()
	defer s.billingMu.RUnlock()
	var out []billing.BillingRecord
	for _, r := range s.bills {
		if r.ContractID == contractID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Start.Before(out[j].Period.Start) })
	return out, nil
}

// billingView is the transactional view; the parent lock is already held.
type billingView struct {
	parent *Store
}

func (v *billingView) ActiveContracts(_ context.Context) ([]billing.Contract, error) {
	return v.parent.activeContractsLocked(), nil
}

func (v *billingView) RecordExists(_ context.Context, contractID generic.EntityID, p generic.Period) (bool, error) {
	_, ok := v.parent.bills[keyOf(contractID, p)]
	return ok, nil
}

func (v *billingView) RecordNumberExists(_ context.Context, number string) (bool, error) {
	return v.parent.numbers[number], nil
}

func (v *billingView) InsertBillingRecord(_ context.Context, rec billing.BillingRecord) error {
	return v.parent.insertBillLocked(rec)
}

// =============================================================================
// EMPLOYEES AND PAYROLL RECORDS
// =============================================================================

func (s *Store) SaveEmployee(_ context.Context, e payroll.Employee) error {
	s.payrollMu.Lock()
	defer s.payrollMu.Unlock()
	s.employees[e.ID] = e
	return nil
}

func (s *Store) AllEmployees(_ context.Context) ([]payroll.Employee, error) {
	s.payrollMu.RLock()
	defer s.payrollMu.RUnlock()
	return s.employeesLocked(), nil
}

func (s *Store) employeesLocked() []payroll.Employee {
	out := slices.Collect(maps.Values(s.employees))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) PayrollRecordExists(_ context.Context, employeeID generic.EntityID, month generic.Period) (bool, error) {
	s.payrollMu.RLock()
	defer s.payrollMu.RUnlock()
	_, ok := s.payrolls[monthKey(employeeID, month)]
	return ok, nil
}

func (s *Store) InsertPayrollRecord(_ context.Context, rec payroll.Record) error {
	s.payrollMu.Lock()
	defer s.payrollMu.Unlock()
	return s.insertPayrollLocked(rec)
}

// monthKey keys payroll on (employee, period_from) only.
func monthKey(id generic.EntityID, p generic.Period) periodKey {
	return periodKey{EntityID: id, From: p.Start.String()}
}

func (s *Store) insertPayrollLocked(rec payroll.Record) error {
	k := monthKey(rec.EmployeeID, rec.Period)
	if _, ok := s.payrolls[k]; ok {
		return fmt.Errorf("%w: employee %s month %s", generic.ErrDuplicateRecord, rec.EmployeeID, rec.Period.Start)
	}
	s.payrolls[k] = rec
	return nil
}

func (s *Store) WithPayrollTx(_ context.Context, fn func(payroll.Store) error) error {
	s.payrollMu.Lock()
	defer s.payrollMu.Unlock()

	snapshot := maps.Clone(s.payrolls)
	if err := fn(&payrollView{parent: s}); err != nil {
		s.payrolls = snapshot
		return err
	}
	return nil
}

func (s *Store) PayrollRecords(_ context.Context, employeeID generic.EntityID) ([]payroll.Record, error) {
	s.payrollMu.RLock()
	defer s.payrollMu.RUnlock()
	var out []payroll.Record
	for _, r := range s.payrolls {
		if r.EmployeeID == employeeID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Start.Before(out[j].Period.Start) })
	return out, nil
}

type payrollView struct {
	parent *Store
}

func (v *payrollView) AllEmployees(_ context.Context) ([]payroll.Employee, error) {
	return v.parent.employeesLocked(), nil
}

func (v *payrollView) PayrollRecordExists(_ context.Context, employeeID generic.EntityID, month generic.Period) (bool, error) {
	_, ok := v.parent.payrolls[monthKey(employeeID, month)]
	return ok, nil
}

func (v *payrollView) InsertPayrollRecord(_ context.Context, rec payroll.Record) error {
	return v.parent.insertPayrollLocked(rec)
}

func (v *payrollView) CountPresent(ctx context.Context, employeeID generic.EntityID, p generic.Period) (int, error) {
	return v.parent.CountPresent(ctx, employeeID, p)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// SaveAttendance records one employee-day, replacing any earlier status.
func (s *Store) SaveAttendance(_ context.Context, a payroll.AttendanceEntry) error {
	s.attendanceMu.Lock()
	defer s.attendanceMu.Unlock()
	s.attendance[attendanceKey{EmployeeID: a.EmployeeID, Date: a.Date.String()}] = a.Status
	return nil
}

func (s *Store) CountPresent(_ context.Context, employeeID generic.EntityID, p generic.Period) (int, error) {
	s.attendanceMu.RLock()
	defer s.attendanceMu.RUnlock()
	n := 0
	for _, d := range p.Days() {
		if s.attendance[attendanceKey{EmployeeID: employeeID, Date: d.String()}].CountsAsPresent() {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// RUN LOG AND INBOX
// =============================================================================

func (s *Store) SaveRun(_ context.Context, run generic.RunRecord) error {
	s.miscMu.Lock()
	defer s.miscMu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// ListRuns returns the newest runs first. An empty kind lists every kind.
func (s *Store) ListRuns(_ context.Context, kind generic.Kind, limit int) ([]generic.RunRecord, error) {
	s.miscMu.Lock()
	defer s.miscMu.Unlock()
	var out []generic.RunRecord
	for i := len(s.runs) - 1; i >= 0; i-- {
		if kind != "" && s.runs[i].Kind != kind {
			continue
		}
		out = append(out, s.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SaveNotification(_ context.Context, n generic.Notification) error {
	s.miscMu.Lock()
	defer s.miscMu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

// Notifications returns every saved notification in insertion order.
func (s *Store) Notifications() []generic.Notification {
	s.miscMu.Lock()
	defer s.miscMu.Unlock()
	return slices.Clone(s.notifications)
}
