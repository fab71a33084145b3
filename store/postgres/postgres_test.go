package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/payroll"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("timeout")))
}

// newTestStore connects to TEST_DATABASE_URL and starts from empty tables.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	store, err := New(ctx, pool)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = pool.Exec(ctx, `TRUNCATE billing_records, payroll_records, attendance, contracts, employees, notifications, generation_runs`)
	require.NoError(t, err)
	return store
}

func TestBillingGeneration_Postgres(t *testing.T) {
	// GIVEN: A quarterly contract in PostgreSQL
	// WHEN: The generator runs twice, then a record is inserted for a billed period
	// THEN: The rerun skips, and the direct insert hits the period constraint

	store := newTestStore(t)
	ctx := context.Background()
	c := billing.Contract{
		ID:     "c1",
		Amount: generic.MustParseMoney("500"),
		Start:  generic.NewTimePoint(2025, time.January, 1),
		End:    generic.NewTimePoint(2025, time.December, 31),
		Cycle:  generic.CycleQuarterly,
		Status: billing.ContractActive,
	}
	require.NoError(t, store.SaveContract(ctx, c))
	gen := billing.NewGenerator(store, "", zerolog.Nop())
	exec := generic.ExecutionContext{Actor: "system", Clock: generic.SystemClock{}}

	out, err := gen.Generate(ctx, exec, c, generic.NewTimePoint(2025, time.June, 30))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Created)

	out, err = gen.Generate(ctx, exec, c, generic.NewTimePoint(2025, time.June, 30))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Skipped)

	q1 := generic.Period{Start: c.Start, End: generic.NewTimePoint(2025, time.March, 31)}
	err = store.InsertBillingRecord(ctx, billing.BillingRecord{
		ID: "dup", ContractID: "c1", Number: "other", BillDate: q1.End, Period: q1,
		Amount: generic.MustParseMoney("1"), CreatedBy: "system", CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateRecord)

	records, err := store.BillingRecords(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "125.00", records[0].Amount.StringFixed(2))
}

func TestPayrollGeneration_Postgres(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	e := payroll.Employee{ID: "e1", Code: "EMP-1", MonthlySalary: generic.MustParseMoney("21000")}
	require.NoError(t, store.SaveEmployee(ctx, e))
	for d := 3; d <= 5; d++ {
		require.NoError(t, store.SaveAttendance(ctx, payroll.AttendanceEntry{
			EmployeeID: e.ID, Date: generic.NewTimePoint(2025, time.March, d), Status: payroll.AttendanceHalfDay,
		}))
	}

	gen := payroll.NewGenerator(store, store, zerolog.Nop())
	exec := generic.ExecutionContext{Actor: "system", Clock: generic.SystemClock{}}
	out, err := gen.Generate(ctx, exec, e, generic.NewTimePoint(2025, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Created)

	records, err := store.PayrollRecords(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].DaysPresent)
	assert.Equal(t, "3000.00", records[0].NetAmount.StringFixed(2))
}
