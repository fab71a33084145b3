package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/payroll"
	"github.com/warp/obligation-engine/store/memory"
)

var q1 = generic.Period{
	Start: generic.NewTimePoint(2025, time.January, 1),
	End:   generic.NewTimePoint(2025, time.March, 31),
}

func TestWithBillingTx_Rollback(t *testing.T) {
	// GIVEN: A transaction that inserts a bill and then fails
	// WHEN: It returns
	// THEN: The bill and its number are gone

	store := memory.New()
	ctx := context.Background()

	err := store.WithBillingTx(ctx, func(tx billing.Store) error {
		require.NoError(t, tx.InsertBillingRecord(ctx, billing.BillingRecord{ContractID: "c1", Number: "c1-2025-01-1", Period: q1}))
		return errors.New("abort")
	})
	require.Error(t, err)

	exists, _ := store.RecordExists(ctx, "c1", q1)
	assert.False(t, exists)
	taken, _ := store.RecordNumberExists(ctx, "c1-2025-01-1")
	assert.False(t, taken)
}

func TestInsertBillingRecord_Duplicates(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.InsertBillingRecord(ctx, billing.BillingRecord{ContractID: "c1", Number: "N-1", Period: q1}))

	err := store.InsertBillingRecord(ctx, billing.BillingRecord{ContractID: "c1", Number: "N-2", Period: q1})
	assert.ErrorIs(t, err, generic.ErrDuplicateRecord)

	err = store.InsertBillingRecord(ctx, billing.BillingRecord{ContractID: "c2", Number: "N-1", Period: q1})
	assert.ErrorIs(t, err, generic.ErrDuplicateRecordNumber)
}

func TestActiveContracts_SortedAndFiltered(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for _, c := range []billing.Contract{
		{ID: "c2", Status: billing.ContractActive},
		{ID: "c1", Status: billing.ContractActive},
		{ID: "c3", Status: billing.ContractExpired},
	} {
		require.NoError(t, store.SaveContract(ctx, c))
	}

	active, err := store.ActiveContracts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, generic.EntityID("c1"), active[0].ID)
	assert.Equal(t, generic.EntityID("c2"), active[1].ID)
}

func TestCountPresent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	march := generic.Period{Start: generic.NewTimePoint(2025, time.March, 1), End: generic.NewTimePoint(2025, time.March, 31)}

	for d, st := range map[int]payroll.AttendanceStatus{3: payroll.AttendancePresent, 4: payroll.AttendanceHalfDay, 5: payroll.AttendanceAbsent} {
		require.NoError(t, store.SaveAttendance(ctx, payroll.AttendanceEntry{EmployeeID: "e1", Date: generic.NewTimePoint(2025, time.March, d), Status: st}))
	}

	n, err := store.CountPresent(ctx, "e1", march)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.CountPresent(ctx, "e2", march)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListRuns(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for _, r := range []generic.RunRecord{
		{ID: "r1", Kind: generic.KindBilling},
		{ID: "r2", Kind: generic.KindPayroll},
		{ID: "r3", Kind: generic.KindBilling},
	} {
		require.NoError(t, store.SaveRun(ctx, r))
	}

	all, _ := store.ListRuns(ctx, "", 0)
	assert.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID)

	billingRuns, _ := store.ListRuns(ctx, generic.KindBilling, 1)
	require.Len(t, billingRuns, 1)
	assert.Equal(t, "r3", billingRuns[0].ID)
}
