/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

FORMATS:
  Dates are YYYY-MM-DD strings. Money is a decimal string ("125.00") so
  clients never see float rounding.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/payroll"
)

// =============================================================================
// CONTRACTS
// =============================================================================

type ContractDTO struct {
	ID           string `json:"id"`
	Number       string `json:"contract_number"`
	ClientName   string `json:"client_name"`
	Amount       string `json:"amount"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	BillingCycle string `json:"billing_cycle"`
	Status       string `json:"status"`
}

type SaveContractRequest struct {
	ID           string `json:"id"`
	Number       string `json:"contract_number"`
	ClientName   string `json:"client_name"`
	Amount       string `json:"amount"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	BillingCycle string `json:"billing_cycle"`
	Status       string `json:"status"`
}

// ToContract validates the request and builds the domain value.
func (r SaveContractRequest) ToContract() (billing.Contract, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return billing.Contract{}, fmt.Errorf("amount: %w", err)
	}
	start, err := generic.ParseDate(r.StartDate)
	if err != nil {
		return billing.Contract{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := generic.ParseDate(r.EndDate)
	if err != nil {
		return billing.Contract{}, fmt.Errorf("end_date: %w", err)
	}
	cycle, err := generic.ParseCycle(r.BillingCycle)
	if err != nil {
		return billing.Contract{}, err
	}
	status := billing.ContractStatus(r.Status)
	if status == "" {
		status = billing.ContractActive
	}

	c := billing.Contract{
		ID:         generic.EntityID(r.ID),
		Number:     r.Number,
		ClientName: r.ClientName,
		Amount:     amount,
		Start:      start,
		End:        end,
		Cycle:      cycle,
		Status:     status,
	}
	return c, c.Validate()
}

func toContractDTO(c billing.Contract) ContractDTO {
	return ContractDTO{
		ID:           string(c.ID),
		Number:       c.Number,
		ClientName:   c.ClientName,
		Amount:       c.Amount.StringFixed(2),
		StartDate:    c.Start.String(),
		EndDate:      c.End.String(),
		BillingCycle: string(c.Cycle),
		Status:       string(c.Status),
	}
}

type BillingRecordDTO struct {
	ID           string `json:"id"`
	ContractID   string `json:"contract_id"`
	RecordNumber string `json:"record_number"`
	BillDate     string `json:"bill_date"`
	PeriodFrom   string `json:"period_from"`
	PeriodTo     string `json:"period_to"`
	Amount       string `json:"amount"`
	Paid         bool   `json:"paid"`
	CreatedBy    string `json:"created_by"`
	CreatedAt    string `json:"created_at"`
}

func toBillingRecordDTO(r billing.BillingRecord) BillingRecordDTO {
	return BillingRecordDTO{
		ID:           r.ID,
		ContractID:   string(r.ContractID),
		RecordNumber: r.Number,
		BillDate:     r.BillDate.String(),
		PeriodFrom:   r.Period.Start.String(),
		PeriodTo:     r.Period.End.String(),
		Amount:       r.Amount.StringFixed(2),
		Paid:         r.Paid,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID            string `json:"id"`
	Code          string `json:"employee_code"`
	Name          string `json:"name"`
	MonthlySalary string `json:"monthly_salary"`
	JoiningDate   string `json:"joining_date,omitempty"`
}

type SaveEmployeeRequest struct {
	ID            string `json:"id"`
	Code          string `json:"employee_code"`
	Name          string `json:"name"`
	MonthlySalary string `json:"monthly_salary"`
	JoiningDate   string `json:"joining_date,omitempty"`
}

func (r SaveEmployeeRequest) ToEmployee() (payroll.Employee, error) {
	salary, err := decimal.NewFromString(r.MonthlySalary)
	if err != nil {
		return payroll.Employee{}, fmt.Errorf("monthly_salary: %w", err)
	}
	e := payroll.Employee{
		ID:            generic.EntityID(r.ID),
		Code:          r.Code,
		Name:          r.Name,
		MonthlySalary: salary,
	}
	if r.JoiningDate != "" {
		if e.JoiningDate, err = generic.ParseDate(r.JoiningDate); err != nil {
			return payroll.Employee{}, fmt.Errorf("joining_date: %w", err)
		}
	}
	return e, e.Validate()
}

func toEmployeeDTO(e payroll.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:            string(e.ID),
		Code:          e.Code,
		Name:          e.Name,
		MonthlySalary: e.MonthlySalary.StringFixed(2),
	}
	if !e.JoiningDate.IsZero() {
		dto.JoiningDate = e.JoiningDate.String()
	}
	return dto
}

// AttendanceRequest marks one day for an employee.
type AttendanceRequest struct {
	Date   string `json:"date"`
	Status string `json:"status"` // Present, Absent, Half-Day, Leave
}

func (r AttendanceRequest) ToEntry(employeeID generic.EntityID) (payroll.AttendanceEntry, error) {
	date, err := generic.ParseDate(r.Date)
	if err != nil {
		return payroll.AttendanceEntry{}, err
	}
	status := payroll.AttendanceStatus(r.Status)
	switch status {
	case payroll.AttendancePresent, payroll.AttendanceAbsent, payroll.AttendanceHalfDay, payroll.AttendanceLeave:
	default:
		return payroll.AttendanceEntry{}, fmt.Errorf("unknown attendance status %q", r.Status)
	}
	return payroll.AttendanceEntry{EmployeeID: employeeID, Date: date, Status: status}, nil
}

type PayrollRecordDTO struct {
	ID          string `json:"id"`
	EmployeeID  string `json:"employee_id"`
	PeriodFrom  string `json:"period_from"`
	PeriodTo    string `json:"period_to"`
	WorkingDays int    `json:"working_days"`
	DaysPresent int    `json:"days_present"`
	NetAmount   string `json:"net_amount"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

func toPayrollRecordDTO(r payroll.Record) PayrollRecordDTO {
	return PayrollRecordDTO{
		ID:          r.ID,
		EmployeeID:  string(r.EmployeeID),
		PeriodFrom:  r.Period.Start.String(),
		PeriodTo:    r.Period.End.String(),
		WorkingDays: r.WorkingDays,
		DaysPresent: r.DaysPresent,
		NetAmount:   r.NetAmount.StringFixed(2),
		Status:      string(r.Status),
		Notes:       r.Notes,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerationResultDTO is the response of a manual trigger.
type GenerationResultDTO struct {
	*generic.GenerationResult
	Errors []string `json:"errors,omitempty"`
}

type RunDTO struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Status        string   `json:"status"`
	Reason        string   `json:"reason,omitempty"`
	ReferenceDate string   `json:"reference_date"`
	Actor         string   `json:"actor,omitempty"`
	Entities      int      `json:"entities"`
	Created       int      `json:"created"`
	Skipped       int      `json:"skipped"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors,omitempty"`
	StartedAt     string   `json:"started_at"`
	CompletedAt   string   `json:"completed_at"`
}

func toRunDTO(r generic.RunRecord) RunDTO {
	return RunDTO{
		ID:            r.ID,
		Kind:          string(r.Kind),
		Status:        string(r.Status),
		Reason:        r.Reason,
		ReferenceDate: r.ReferenceDate.String(),
		Actor:         r.Actor,
		Entities:      r.Entities,
		Created:       r.Created,
		Skipped:       r.Skipped,
		Failed:        r.Failed,
		Errors:        r.Errors,
		StartedAt:     r.StartedAt.Format(time.RFC3339),
		CompletedAt:   r.CompletedAt.Format(time.RFC3339),
	}
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
