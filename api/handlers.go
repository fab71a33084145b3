/*
handlers.go - HTTP API handlers for the obligation engine

ENDPOINTS:
  Contracts:
    GET    /api/contracts                        List contracts
    POST   /api/contracts                        Create or update a contract
    GET    /api/contracts/{id}/billing-records   Bills generated for a contract

  Employees:
    GET    /api/employees                        List employees
    POST   /api/employees                        Create or update an employee
    POST   /api/employees/{id}/attendance        Mark one day
    GET    /api/employees/{id}/payroll-records   Payroll generated for an employee

  Generation:
    POST   /api/generation/billing?date=YYYY-MM-DD   Run billing generation
    POST   /api/generation/payroll?date=YYYY-MM-DD   Run payroll generation
    GET    /api/generation/runs?kind=&limit=         Run history

  date defaults to today in the configured timezone. The X-Actor header
  overrides the actor recorded on generated records.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 500: Internal errors (including a failed entity load during generation)

SECURITY NOTE:
  No authentication. Deploy behind the platform's gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/payroll"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the handlers read and write.
type Store interface {
	SaveContract(ctx context.Context, c billing.Contract) error
	ListContracts(ctx context.Context) ([]billing.Contract, error)
	SaveEmployee(ctx context.Context, e payroll.Employee) error
	AllEmployees(ctx context.Context) ([]payroll.Employee, error)
	SaveAttendance(ctx context.Context, a payroll.AttendanceEntry) error
	billing.RecordReader
	payroll.RecordReader
	generic.RunLog
}

// Generator runs the two generation entrypoints (engine.Engine).
type Generator interface {
	RunBillingGeneration(ctx context.Context, exec generic.ExecutionContext, ref generic.TimePoint) (*generic.GenerationResult, error)
	RunPayrollGeneration(ctx context.Context, exec generic.ExecutionContext, ref generic.TimePoint) (*generic.GenerationResult, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  Store
	Engine Generator
	// Exec is the template for manual runs (actor, clock, timezone).
	Exec generic.ExecutionContext
	Log  zerolog.Logger
}

func NewHandler(store Store, engine Generator, exec generic.ExecutionContext, log zerolog.Logger) *Handler {
	return &Handler{Store: store, Engine: engine, Exec: exec, Log: log}
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.Store.ListContracts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contracts", err)
		return
	}
	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = toContractDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveContract(w http.ResponseWriter, r *http.Request) {
	var req SaveContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	c, err := req.ToContract()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid contract", err)
		return
	}
	if err := h.Store.SaveContract(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(c))
}

func (h *Handler) ListBillingRecords(w http.ResponseWriter, r *http.Request) {
	id := generic.EntityID(chi.URLParam(r, "id"))
	records, err := h.Store.BillingRecords(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list billing records", err)
		return
	}
	dtos := make([]BillingRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toBillingRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.AllEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveEmployee(w http.ResponseWriter, r *http.Request) {
	var req SaveEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	e, err := req.ToEmployee()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid employee", err)
		return
	}
	if err := h.Store.SaveEmployee(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(e))
}

func (h *Handler) SaveAttendance(w http.ResponseWriter, r *http.Request) {
	var req AttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	entry, err := req.ToEntry(generic.EntityID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid attendance", err)
		return
	}
	if err := h.Store.SaveAttendance(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save attendance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPayrollRecords(w http.ResponseWriter, r *http.Request) {
	id := generic.EntityID(chi.URLParam(r, "id"))
	records, err := h.Store.PayrollRecords(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payroll records", err)
		return
	}
	dtos := make([]PayrollRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = toPayrollRecordDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// GENERATION HANDLERS
// =============================================================================

type runFunc func(ctx context.Context, exec generic.ExecutionContext, ref generic.TimePoint) (*generic.GenerationResult, error)

// TriggerBilling runs billing generation for ?date (default today).
func (h *Handler) TriggerBilling(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, h.Engine.RunBillingGeneration)
}

// TriggerPayroll runs payroll generation for ?date (default today).
func (h *Handler) TriggerPayroll(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, h.Engine.RunPayrollGeneration)
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request, run runFunc) {
	exec := h.Exec
	if actor := r.Header.Get("X-Actor"); actor != "" {
		exec.Actor = actor
	}

	ref := exec.Today()
	if s := r.URL.Query().Get("date"); s != "" {
		parsed, err := generic.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
			return
		}
		ref = parsed
	}

	result, err := run(r.Context(), exec, ref)
	if err != nil {
		h.Log.Error().Err(err).Str("reference_date", ref.String()).Msg("manual generation failed")
		writeError(w, http.StatusInternalServerError, "Generation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerationResultDTO{GenerationResult: result, Errors: result.ErrorMessages()})
}

// ListRuns returns run history, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	kind := generic.Kind(r.URL.Query().Get("kind"))
	switch kind {
	case "", generic.KindBilling, generic.KindPayroll:
	default:
		writeError(w, http.StatusBadRequest, "Unknown kind", errors.New(string(kind)))
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), kind, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
