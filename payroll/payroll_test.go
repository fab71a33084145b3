package payroll_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/payroll"
	"github.com/warp/obligation-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func testExec() generic.ExecutionContext {
	return generic.ExecutionContext{
		Actor: "system",
		Clock: generic.FixedClock{At: time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC)},
	}
}

func employee(id string, salary string) payroll.Employee {
	return payroll.Employee{
		ID:            generic.EntityID(id),
		Code:          "EMP-" + id,
		Name:          "Asha",
		MonthlySalary: generic.MustParseMoney(salary),
		JoiningDate:   date(2024, time.June, 1),
	}
}

// markMarch records statuses on the first weekdays of March 2025.
func markMarch(t *testing.T, store *memory.Store, id generic.EntityID, statuses ...payroll.AttendanceStatus) {
	t.Helper()
	day := date(2025, time.March, 1)
	for _, st := range statuses {
		for day.IsWeekend() {
			day = day.AddDays(1)
		}
		require.NoError(t, store.SaveAttendance(context.Background(), payroll.AttendanceEntry{EmployeeID: id, Date: day, Status: st}))
		day = day.AddDays(1)
	}
}

func repeat(st payroll.AttendanceStatus, n int) []payroll.AttendanceStatus {
	out := make([]payroll.AttendanceStatus, n)
	for i := range out {
		out[i] = st
	}
	return out
}

// =============================================================================
// CALCULATIONS
// =============================================================================

func TestNetAmount(t *testing.T) {
	// GIVEN: A 30000 salary, 26 working days, 20 present
	// WHEN: Computing net pay
	// THEN: 30000 / 26 * 20 rounded to 2 places

	got := payroll.NetAmount(generic.MustParseMoney("30000"), 26, 20, 2)
	assert.Equal(t, "23076.92", got.StringFixed(2))
}

func TestNetAmount_ZeroWorkingDays(t *testing.T) {
	got := payroll.NetAmount(generic.MustParseMoney("30000"), 0, 5, 2)
	assert.True(t, got.IsZero())
}

func TestNetAmount_FullAttendance(t *testing.T) {
	got := payroll.NetAmount(generic.MustParseMoney("21000"), 21, 21, 2)
	assert.Equal(t, "21000.00", got.StringFixed(2))
}

func TestWorkingDays_March2025(t *testing.T) {
	march := payroll.MonthPeriod(date(2025, time.March, 31))
	assert.Equal(t, "[2025-03-01, 2025-03-31]", march.String())
	assert.Equal(t, 21, payroll.WorkingDays(march))
}

func TestMonthPeriod_February(t *testing.T) {
	assert.Equal(t, "[2025-02-01, 2025-02-28]", payroll.MonthPeriod(date(2025, time.February, 15)).String())
	assert.Equal(t, "[2024-02-01, 2024-02-29]", payroll.MonthPeriod(date(2024, time.February, 29)).String())
}

func TestIsPayrollDay(t *testing.T) {
	assert.True(t, payroll.IsPayrollDay(date(2025, time.March, 31)))
	assert.True(t, payroll.IsPayrollDay(date(2025, time.April, 30)))
	assert.False(t, payroll.IsPayrollDay(date(2025, time.March, 15)))
	assert.False(t, payroll.IsPayrollDay(date(2025, time.March, 30)))
}

func TestAttendanceStatus_CountsAsPresent(t *testing.T) {
	assert.True(t, payroll.AttendancePresent.CountsAsPresent())
	assert.True(t, payroll.AttendanceHalfDay.CountsAsPresent())
	assert.False(t, payroll.AttendanceAbsent.CountsAsPresent())
	assert.False(t, payroll.AttendanceLeave.CountsAsPresent())
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGenerate_MonthRecord(t *testing.T) {
	// GIVEN: An employee with 15 present days, 2 half days, 1 absence, 1 leave
	// WHEN: Payroll runs on March 31
	// THEN: 17 days count as present and net pay is prorated on 21 working days

	store := memory.New()
	ctx := context.Background()
	e := employee("e1", "21000")
	require.NoError(t, store.SaveEmployee(ctx, e))

	statuses := repeat(payroll.AttendancePresent, 15)
	statuses = append(statuses, payroll.AttendanceHalfDay, payroll.AttendanceHalfDay, payroll.AttendanceAbsent, payroll.AttendanceLeave)
	markMarch(t, store, e.ID, statuses...)
	// April attendance must not leak into March
	require.NoError(t, store.SaveAttendance(ctx, payroll.AttendanceEntry{EmployeeID: e.ID, Date: date(2025, time.April, 1), Status: payroll.AttendancePresent}))

	gen := payroll.NewGenerator(store, store, zerolog.Nop())
	out, err := gen.Generate(ctx, testExec(), e, date(2025, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, "EMP-e1 (Asha)", out.Label)

	records, err := store.PayrollRecords(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, 21, rec.WorkingDays)
	assert.Equal(t, 17, rec.DaysPresent)
	assert.Equal(t, "17000.00", rec.NetAmount.StringFixed(2))
	assert.Equal(t, payroll.StatusPending, rec.Status)
	assert.Equal(t, "Auto-generated payroll for 2025-03", rec.Notes)
	assert.Equal(t, "system", rec.CreatedBy)
	assert.Equal(t, "[2025-03-01, 2025-03-31]", rec.Period.String())
}

func TestGenerate_NoAttendance(t *testing.T) {
	store := memory.New()
	e := employee("e1", "21000")

	out, err := payroll.NewGenerator(store, store, zerolog.Nop()).Generate(context.Background(), testExec(), e, date(2025, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Created)

	records, _ := store.PayrollRecords(context.Background(), e.ID)
	require.Len(t, records, 1)
	assert.True(t, records[0].NetAmount.IsZero())
}

func TestGenerate_Idempotent(t *testing.T) {
	// GIVEN: March payroll already generated
	// WHEN: Generating again
	// THEN: No second record, the employee counts as skipped

	store := memory.New()
	ctx := context.Background()
	e := employee("e1", "21000")
	markMarch(t, store, e.ID, repeat(payroll.AttendancePresent, 10)...)
	gen := payroll.NewGenerator(store, store, zerolog.Nop())

	_, err := gen.Generate(ctx, testExec(), e, date(2025, time.March, 31))
	require.NoError(t, err)

	// Attendance edits after generation do not change the stored record
	markMarch(t, store, e.ID, repeat(payroll.AttendancePresent, 20)...)

	out, err := gen.Generate(ctx, testExec(), e, date(2025, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Created)
	assert.Equal(t, 1, out.Skipped)

	records, _ := store.PayrollRecords(ctx, e.ID)
	require.Len(t, records, 1)
	assert.Equal(t, 10, records[0].DaysPresent)
}

func TestGenerate_InvalidEmployee(t *testing.T) {
	store := memory.New()
	e := employee("e1", "-5")

	_, err := payroll.NewGenerator(store, store, zerolog.Nop()).Generate(context.Background(), testExec(), e, date(2025, time.March, 31))
	assert.ErrorIs(t, err, generic.ErrInvalidEmployee)

	records, _ := store.PayrollRecords(context.Background(), e.ID)
	assert.Empty(t, records)
}

func TestEmployee_Label(t *testing.T) {
	assert.Equal(t, "EMP-1 (Asha)", payroll.Employee{ID: "1", Code: "EMP-1", Name: "Asha"}.Label())
	assert.Equal(t, "EMP-1", payroll.Employee{ID: "1", Code: "EMP-1"}.Label())
	assert.Equal(t, "1", payroll.Employee{ID: "1"}.Label())
}
