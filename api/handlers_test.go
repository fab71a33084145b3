package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/obligation-engine/engine"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/notify"
	"github.com/warp/obligation-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	store  *memory.Store
	router http.Handler
}

// newTestServer wires the real engine on an in-memory store. "Today" is
// 2025-03-31, the last day of the month.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	eng := engine.New(engine.Options{
		Contracts:  store,
		Employees:  store,
		Attendance: store,
		Notifier:   notify.RunRecorder{Runs: store},
		Log:        zerolog.Nop(),
	})
	exec := generic.ExecutionContext{
		Actor:    "system",
		Clock:    generic.FixedClock{At: time.Date(2025, time.March, 31, 10, 0, 0, 0, time.UTC)},
		Location: time.UTC,
	}
	h := NewHandler(store, eng, exec, zerolog.Nop())
	return &testServer{store: store, router: NewRouter(h, nil)}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const quarterlyContract = `{
	"id": "c1",
	"contract_number": "AMC-2025-001",
	"client_name": "Acme",
	"amount": "500",
	"start_date": "2025-01-01",
	"end_date": "2025-12-31",
	"billing_cycle": "Quarterly"
}`

// =============================================================================
// CONTRACTS AND BILLING
// =============================================================================

func TestSaveContract(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/contracts", quarterlyContract)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	dto := decode[ContractDTO](t, rec)
	assert.Equal(t, "c1", dto.ID)
	assert.Equal(t, "500.00", dto.Amount)
	assert.Equal(t, "Quarterly", dto.BillingCycle)
	assert.Equal(t, "Active", dto.Status)

	list := decode[[]ContractDTO](t, srv.do(t, http.MethodGet, "/api/contracts", ""))
	assert.Len(t, list, 1)
}

func TestSaveContract_Invalid(t *testing.T) {
	srv := newTestServer(t)

	tests := map[string]string{
		"bad json":    `{`,
		"bad cycle":   strings.Replace(quarterlyContract, "Quarterly", "Weekly", 1),
		"bad amount":  strings.Replace(quarterlyContract, `"500"`, `"five hundred"`, 1),
		"end < start": strings.Replace(quarterlyContract, "2025-12-31", "2024-12-31", 1),
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/contracts", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestTriggerBilling(t *testing.T) {
	// GIVEN: A quarterly contract
	// WHEN: Billing is triggered for June 30 twice
	// THEN: Two bills the first time, nothing new the second time

	srv := newTestServer(t)
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/api/contracts", quarterlyContract).Code)

	rec := srv.do(t, http.MethodPost, "/api/generation/billing?date=2025-06-30", "", "X-Actor", "admin-7")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[map[string]any](t, rec)
	assert.Equal(t, "success", first["status"])
	assert.EqualValues(t, 2, first["created"])
	assert.Equal(t, "admin-7", first["actor"])

	second := decode[map[string]any](t, srv.do(t, http.MethodPost, "/api/generation/billing?date=2025-06-30", ""))
	assert.EqualValues(t, 0, second["created"])
	assert.EqualValues(t, 2, second["skipped"])

	bills := decode[[]BillingRecordDTO](t, srv.do(t, http.MethodGet, "/api/contracts/c1/billing-records", ""))
	require.Len(t, bills, 2)
	assert.Equal(t, "c1-2025-01-1", bills[0].RecordNumber)
	assert.Equal(t, "125.00", bills[0].Amount)
	assert.Equal(t, "admin-7", bills[0].CreatedBy)
	assert.Equal(t, "2025-04-01", bills[1].PeriodFrom)
}

func TestTriggerBilling_NoContracts(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/generation/billing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "skipped", body["status"])
	assert.Equal(t, engine.ReasonNoContracts, body["reason"])
	assert.Equal(t, "2025-03-31", body["reference_date"])
}

func TestTriggerBilling_BadDate(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodPost, "/api/generation/billing?date=31-03-2025", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// EMPLOYEES AND PAYROLL
// =============================================================================

func TestPayrollFlow(t *testing.T) {
	// GIVEN: An employee with two present days and one half day in March
	// WHEN: Payroll is triggered without a date (today is March 31)
	// THEN: One record with three present days is created

	srv := newTestServer(t)
	rec := srv.do(t, http.MethodPost, "/api/employees",
		`{"id":"e1","employee_code":"EMP-1","name":"Asha","monthly_salary":"21000","joining_date":"2024-06-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, body := range []string{
		`{"date":"2025-03-03","status":"Present"}`,
		`{"date":"2025-03-04","status":"Present"}`,
		`{"date":"2025-03-05","status":"Half-Day"}`,
		`{"date":"2025-03-06","status":"Absent"}`,
	} {
		require.Equal(t, http.StatusNoContent, srv.do(t, http.MethodPost, "/api/employees/e1/attendance", body).Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/generation/payroll", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["created"])

	records := decode[[]PayrollRecordDTO](t, srv.do(t, http.MethodGet, "/api/employees/e1/payroll-records", ""))
	require.Len(t, records, 1)
	assert.Equal(t, 21, records[0].WorkingDays)
	assert.Equal(t, 3, records[0].DaysPresent)
	assert.Equal(t, "3000.00", records[0].NetAmount)
	assert.Equal(t, "Pending", records[0].Status)
	assert.Equal(t, "2025-03-01", records[0].PeriodFrom)

	employees := decode[[]EmployeeDTO](t, srv.do(t, http.MethodGet, "/api/employees", ""))
	require.Len(t, employees, 1)
	assert.Equal(t, "2024-06-01", employees[0].JoiningDate)
}

func TestTriggerPayroll_NotLastDay(t *testing.T) {
	srv := newTestServer(t)
	body := decode[map[string]any](t, srv.do(t, http.MethodPost, "/api/generation/payroll?date=2025-03-15", ""))
	assert.Equal(t, "skipped", body["status"])
	assert.Equal(t, engine.ReasonNotPayrollDay, body["reason"])
}

func TestSaveAttendance_Invalid(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/employees/e1/attendance", `{"date":"2025-03-03","status":"Sick"}`).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/employees/e1/attendance", `{"date":"March 3","status":"Present"}`).Code)
}

func TestSaveEmployee_Invalid(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodPost, "/api/employees", `{"id":"e1","monthly_salary":"-10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RUN HISTORY, HEALTH, ERRORS
// =============================================================================

func TestListRuns(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/generation/billing", "")
	srv.do(t, http.MethodPost, "/api/generation/payroll?date=2025-03-15", "")

	all := decode[[]RunDTO](t, srv.do(t, http.MethodGet, "/api/generation/runs", ""))
	require.Len(t, all, 2)
	assert.Equal(t, "payroll", all[0].Kind)

	billingRuns := decode[[]RunDTO](t, srv.do(t, http.MethodGet, "/api/generation/runs?kind=billing&limit=5", ""))
	require.Len(t, billingRuns, 1)
	assert.Equal(t, "skipped", billingRuns[0].Status)
	assert.Equal(t, engine.ReasonNoContracts, billingRuns[0].Reason)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/generation/runs?kind=invoices", "").Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/generation/runs?limit=0", "").Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

type failingGenerator struct{}

func (failingGenerator) RunBillingGeneration(context.Context, generic.ExecutionContext, generic.TimePoint) (*generic.GenerationResult, error) {
	return nil, errors.New("load active contracts: connection refused")
}

func (failingGenerator) RunPayrollGeneration(context.Context, generic.ExecutionContext, generic.TimePoint) (*generic.GenerationResult, error) {
	return nil, errors.New("load employees: connection refused")
}

func TestTrigger_EngineErrorIs500(t *testing.T) {
	h := NewHandler(memory.New(), failingGenerator{}, generic.ExecutionContext{Clock: generic.SystemClock{}}, zerolog.Nop())
	router := NewRouter(h, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generation/billing", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
