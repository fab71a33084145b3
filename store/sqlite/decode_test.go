package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/engine"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/payroll"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBillingGeneration_UndecodableContractFailsAlone(t *testing.T) {
	// GIVEN: Three quarterly contracts, one with an unparsable amount and
	//        one with an unparsable start date
	// WHEN: Billing generation runs for 2025-06-30
	// THEN: The two bad contracts are reported as failed and get no bills,
	//       the good one is billed normally

	s := openMemory(t)
	ctx := context.Background()
	for _, id := range []generic.EntityID{"c1", "c2", "c3"} {
		require.NoError(t, s.SaveContract(ctx, billing.Contract{
			ID:     id,
			Amount: generic.MustParseMoney("500"),
			Start:  generic.NewTimePoint(2025, time.January, 1),
			End:    generic.NewTimePoint(2025, time.December, 31),
			Cycle:  generic.CycleQuarterly,
			Status: billing.ContractActive,
		}))
	}
	_, err := s.db.ExecContext(ctx, `UPDATE contracts SET amount = '12,000.00' WHERE id = 'c2'`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `UPDATE contracts SET start_date = '01/01/2025' WHERE id = 'c3'`)
	require.NoError(t, err)

	eng := engine.New(engine.Options{Contracts: s, Log: zerolog.Nop()})
	exec := generic.ExecutionContext{Actor: "system", Clock: generic.SystemClock{}}
	result, err := eng.RunBillingGeneration(ctx, exec, generic.NewTimePoint(2025, time.June, 30))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, generic.EntityID("c2"), result.Errors[0].EntityID)
	assert.Equal(t, generic.EntityID("c3"), result.Errors[1].EntityID)
	for _, e := range result.Errors {
		assert.ErrorIs(t, e.Err, generic.ErrInvalidContract)
		assert.True(t, generic.IsDataError(e.Err))
	}

	for _, id := range []generic.EntityID{"c2", "c3"} {
		records, err := s.BillingRecords(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, records, "contract %s", id)
	}
	records, err := s.BillingRecords(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestPayrollGeneration_UndecodableSalaryFailsAlone(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	for _, id := range []generic.EntityID{"e1", "e2"} {
		require.NoError(t, s.SaveEmployee(ctx, payroll.Employee{ID: id, MonthlySalary: generic.MustParseMoney("21000")}))
	}
	_, err := s.db.ExecContext(ctx, `UPDATE employees SET monthly_salary = 'twenty' WHERE id = 'e2'`)
	require.NoError(t, err)

	eng := engine.New(engine.Options{Employees: s, Attendance: s, Log: zerolog.Nop()})
	exec := generic.ExecutionContext{Actor: "system", Clock: generic.SystemClock{}}
	result, err := eng.RunPayrollGeneration(ctx, exec, generic.NewTimePoint(2025, time.March, 31))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0].Err, generic.ErrInvalidEmployee)

	records, err := s.PayrollRecords(ctx, "e2")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListRuns_CorruptErrorsColumn(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	at := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRun(ctx, generic.RunRecord{
		ID: "r1", Kind: generic.KindBilling, Status: generic.StatusSuccess,
		ReferenceDate: generic.NewTimePoint(2025, time.March, 31),
		Errors:        []string{"entity c3: unknown billing cycle"},
		StartedAt:     at, CompletedAt: at,
	}))
	_, err := s.db.ExecContext(ctx, `UPDATE generation_runs SET errors_json = '{not json' WHERE id = 'r1'`)
	require.NoError(t, err)

	_, err = s.ListRuns(ctx, "", 0)
	assert.ErrorContains(t, err, "generation run r1")
}

func TestBillingRecords_CorruptAmount(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	c := billing.Contract{
		ID:     "c1",
		Amount: generic.MustParseMoney("500"),
		Start:  generic.NewTimePoint(2025, time.January, 1),
		End:    generic.NewTimePoint(2025, time.December, 31),
		Cycle:  generic.CycleQuarterly,
		Status: billing.ContractActive,
	}
	require.NoError(t, s.SaveContract(ctx, c))
	q1 := generic.Period{Start: c.Start, End: generic.NewTimePoint(2025, time.March, 31)}
	require.NoError(t, s.InsertBillingRecord(ctx, billing.BillingRecord{
		ID: "b1", ContractID: "c1", Number: "c1-2025-01-1", BillDate: q1.End, Period: q1,
		Amount: generic.MustParseMoney("125"), CreatedBy: "system", CreatedAt: time.Now(),
	}))
	_, err := s.db.ExecContext(ctx, `UPDATE billing_records SET amount = 'n/a' WHERE id = 'b1'`)
	require.NoError(t, err)

	_, err = s.BillingRecords(ctx, "c1")
	assert.ErrorContains(t, err, `invalid amount "n/a"`)
}
