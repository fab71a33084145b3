/*
Package postgres provides a PostgreSQL implementation of the storage
interfaces, with the same semantics as store/sqlite.

IDEMPOTENCY:
  A unique violation inside a PostgreSQL transaction aborts the whole
  transaction, so record inserts never raise one. They use
  ON CONFLICT DO NOTHING without a target; when nothing was inserted the
  period key is checked on the same transaction to tell
  ErrDuplicateRecord (period already billed) from ErrDuplicateRecordNumber.

TYPES:
  Money columns are NUMERIC, read and written as decimal.Decimal through
  the pgx-shopspring-decimal codec registered in NewPool.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/payroll"
)

const schema = `
CREATE TABLE IF NOT EXISTS contracts (
	id TEXT PRIMARY KEY,
	contract_number TEXT NOT NULL DEFAULT '',
	client_name TEXT NOT NULL DEFAULT '',
	amount NUMERIC NOT NULL,
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	billing_cycle TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);

CREATE TABLE IF NOT EXISTS billing_records (
	id TEXT PRIMARY KEY,
	contract_id TEXT NOT NULL REFERENCES contracts(id),
	record_number TEXT NOT NULL,
	bill_date DATE NOT NULL,
	period_from DATE NOT NULL,
	period_to DATE NOT NULL,
	amount NUMERIC NOT NULL,
	paid BOOLEAN NOT NULL DEFAULT FALSE,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_records_period
	ON billing_records(contract_id, period_from, period_to);
CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_records_number
	ON billing_records(record_number);

CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	employee_code TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	monthly_salary NUMERIC NOT NULL,
	joining_date DATE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attendance (
	employee_id TEXT NOT NULL REFERENCES employees(id),
	date DATE NOT NULL,
	status TEXT NOT NULL,
	PRIMARY KEY (employee_id, date)
);

CREATE TABLE IF NOT EXISTS payroll_records (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL REFERENCES employees(id),
	period_from DATE NOT NULL,
	period_to DATE NOT NULL,
	working_days INTEGER NOT NULL,
	days_present INTEGER NOT NULL,
	net_amount NUMERIC NOT NULL,
	status TEXT NOT NULL,
	notes TEXT,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_payroll_records_month
	ON payroll_records(employee_id, period_from);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	recipient TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	type TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS generation_runs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	reference_date DATE NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	entities INTEGER NOT NULL,
	created INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	errors TEXT[] NOT NULL DEFAULT '{}',
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generation_runs_kind ON generation_runs(kind, started_at DESC);
`

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements the billing, payroll, run log and inbox stores.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool and migrates the schema.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// =============================================================================
// CONTRACTS
// =============================================================================

func (s *Store) SaveContract(ctx context.Context, c billing.Contract) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contracts (id, contract_number, client_name, amount, start_date, end_date, billing_cycle, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			contract_number = EXCLUDED.contract_number,
			client_name = EXCLUDED.client_name,
			amount = EXCLUDED.amount,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			billing_cycle = EXCLUDED.billing_cycle,
			status = EXCLUDED.status,
			updated_at = now()
	`, string(c.ID), c.Number, c.ClientName, c.Amount, c.Start.Time, c.End.Time, string(c.Cycle), string(c.Status))
	if err != nil {
		return fmt.Errorf("save contract: %w", err)
	}
	return nil
}

func (s *Store) GetContract(ctx context.Context, id generic.EntityID) (*billing.Contract, error) {
	contracts, err := queryContracts(ctx, s.pool, contractColumns+` WHERE id = $1`, string(id))
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("contract %s: %w", id, generic.ErrNotFound)
	}
	return &contracts[0], nil
}

func (s *Store) ListContracts(ctx context.Context) ([]billing.Contract, error) {
	return queryContracts(ctx, s.pool, contractColumns+` ORDER BY id`)
}

func (s *Store) ActiveContracts(ctx context.Context) ([]billing.Contract, error) {
	return activeContracts(ctx, s.pool)
}

func (s *Store) RecordExists(ctx context.Context, contractID generic.EntityID, p generic.Period) (bool, error) {
	return recordExists(ctx, s.pool, contractID, p)
}

func (s *Store) RecordNumberExists(ctx context.Context, number string) (bool, error) {
	return recordNumberExists(ctx, s.pool, number)
}

func (s *Store) InsertBillingRecord(ctx context.Context, rec billing.BillingRecord) error {
	return insertBillingRecord(ctx, s.pool, rec)
}

func (s *Store) WithBillingTx(ctx context.Context, fn func(billing.Store) error) error {
	return s.withTx(ctx, func(tx *txStore) error { return fn(tx) })
}

func (s *Store) BillingRecords(ctx context.Context, contractID generic.EntityID) ([]billing.BillingRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, contract_id, record_number, bill_date, period_from, period_to,
		       amount, paid, created_by, created_at
		FROM billing_records
		WHERE contract_id = $1
		ORDER BY period_from
	`, string(contractID))
	if err != nil {
		return nil, fmt.Errorf("query billing records: %w", err)
	}
	defer rows.Close()

	var records []billing.BillingRecord
	for rows.Next() {
		var (
			r                  billing.BillingRecord
			contractID         string
			billDate, from, to time.Time
			amount             decimal.Decimal
		)
		if err := rows.Scan(&r.ID, &contractID, &r.Number, &billDate, &from, &to,
			&amount, &r.Paid, &r.CreatedBy, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan billing record: %w", err)
		}
		r.ContractID = generic.EntityID(contractID)
		r.BillDate = dateOf(billDate)
		r.Period = generic.Period{Start: dateOf(from), End: dateOf(to)}
		r.Amount = amount
		records = append(records, r)
	}
	return records, rows.Err()
}

const contractColumns = `
	SELECT id, contract_number, client_name, amount, start_date, end_date, billing_cycle, status
	FROM contracts`

func activeContracts(ctx context.Context, q querier) ([]billing.Contract, error) {
	return queryContracts(ctx, q, contractColumns+` WHERE status = $1 ORDER BY id`, string(billing.ContractActive))
}

func queryContracts(ctx context.Context, q querier, query string, args ...any) ([]billing.Contract, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []billing.Contract
	for rows.Next() {
		var (
			c                 billing.Contract
			id, cycle, status string
			start, end        time.Time
		)
		if err := rows.Scan(&id, &c.Number, &c.ClientName, &c.Amount, &start, &end, &cycle, &status); err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		c.ID = generic.EntityID(id)
		c.Start = dateOf(start)
		c.End = dateOf(end)
		c.Cycle = generic.Cycle(cycle)
		c.Status = billing.ContractStatus(status)
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func recordExists(ctx context.Context, q querier, contractID generic.EntityID, p generic.Period) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM billing_records
			WHERE contract_id = $1 AND period_from = $2 AND period_to = $3
		)
	`, string(contractID), p.Start.Time, p.End.Time).Scan(&exists)
	return exists, err
}

func recordNumberExists(ctx context.Context, q querier, number string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM billing_records WHERE record_number = $1)`, number,
	).Scan(&exists)
	return exists, err
}

func insertBillingRecord(ctx context.Context, q querier, rec billing.BillingRecord) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO billing_records (id, contract_id, record_number, bill_date, period_from,
			period_to, amount, paid, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
	`,
		rec.ID, string(rec.ContractID), rec.Number, rec.BillDate.Time,
		rec.Period.Start.Time, rec.Period.End.Time, rec.Amount, rec.Paid, rec.CreatedBy, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert billing record: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := recordExists(ctx, q, rec.ContractID, rec.Period)
	if err != nil {
		return fmt.Errorf("resolve insert conflict: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: contract %s period %s", generic.ErrDuplicateRecord, rec.ContractID, rec.Period)
	}
	return fmt.Errorf("%w: %s", generic.ErrDuplicateRecordNumber, rec.Number)
}

// =============================================================================
// EMPLOYEES AND ATTENDANCE
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e payroll.Employee) error {
	var joining *time.Time
	if !e.JoiningDate.IsZero() {
		joining = &e.JoiningDate.Time
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO employees (id, employee_code, name, monthly_salary, joining_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			employee_code = EXCLUDED.employee_code,
			name = EXCLUDED.name,
			monthly_salary = EXCLUDED.monthly_salary,
			joining_date = EXCLUDED.joining_date
	`, string(e.ID), e.Code, e.Name, e.MonthlySalary, joining)
	if err != nil {
		return fmt.Errorf("save employee: %w", err)
	}
	return nil
}

func (s *Store) AllEmployees(ctx context.Context) ([]payroll.Employee, error) {
	return allEmployees(ctx, s.pool)
}

func (s *Store) SaveAttendance(ctx context.Context, a payroll.AttendanceEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance (employee_id, date, status) VALUES ($1, $2, $3)
		ON CONFLICT (employee_id, date) DO UPDATE SET status = EXCLUDED.status
	`, string(a.EmployeeID), a.Date.Time, string(a.Status))
	if err != nil {
		return fmt.Errorf("save attendance: %w", err)
	}
	return nil
}

func (s *Store) CountPresent(ctx context.Context, employeeID generic.EntityID, p generic.Period) (int, error) {
	return countPresent(ctx, s.pool, employeeID, p)
}

func (s *Store) PayrollRecordExists(ctx context.Context, employeeID generic.EntityID, month generic.Period) (bool, error) {
	return payrollRecordExists(ctx, s.pool, employeeID, month)
}

func (s *Store) InsertPayrollRecord(ctx context.Context, rec payroll.Record) error {
	return insertPayrollRecord(ctx, s.pool, rec)
}

func (s *Store) WithPayrollTx(ctx context.Context, fn func(payroll.Store) error) error {
	return s.withTx(ctx, func(tx *txStore) error { return fn(tx) })
}

func (s *Store) PayrollRecords(ctx context.Context, employeeID generic.EntityID) ([]payroll.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, employee_id, period_from, period_to, working_days, days_present,
		       net_amount, status, COALESCE(notes, ''), created_by, created_at
		FROM payroll_records
		WHERE employee_id = $1
		ORDER BY period_from
	`, string(employeeID))
	if err != nil {
		return nil, fmt.Errorf("query payroll records: %w", err)
	}
	defer rows.Close()

	var records []payroll.Record
	for rows.Next() {
		var (
			r                  payroll.Record
			employeeID, status string
			from, to           time.Time
		)
		if err := rows.Scan(&r.ID, &employeeID, &from, &to, &r.WorkingDays, &r.DaysPresent,
			&r.NetAmount, &status, &r.Notes, &r.CreatedBy, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payroll record: %w", err)
		}
		r.EmployeeID = generic.EntityID(employeeID)
		r.Period = generic.Period{Start: dateOf(from), End: dateOf(to)}
		r.Status = payroll.Status(status)
		records = append(records, r)
	}
	return records, rows.Err()
}

func allEmployees(ctx context.Context, q querier) ([]payroll.Employee, error) {
	rows, err := q.Query(ctx, `
		SELECT id, employee_code, name, monthly_salary, joining_date
		FROM employees ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	var employees []payroll.Employee
	for rows.Next() {
		var (
			e       payroll.Employee
			id      string
			joining *time.Time
		)
		if err := rows.Scan(&id, &e.Code, &e.Name, &e.MonthlySalary, &joining); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		e.ID = generic.EntityID(id)
		if joining != nil {
			e.JoiningDate = dateOf(*joining)
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func countPresent(ctx context.Context, q querier, employeeID generic.EntityID, p generic.Period) (int, error) {
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM attendance
		WHERE employee_id = $1 AND date BETWEEN $2 AND $3 AND status = ANY($4)
	`, string(employeeID), p.Start.Time, p.End.Time,
		[]string{string(payroll.AttendancePresent), string(payroll.AttendanceHalfDay)},
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return count, nil
}

func payrollRecordExists(ctx context.Context, q querier, employeeID generic.EntityID, month generic.Period) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payroll_records WHERE employee_id = $1 AND period_from = $2)
	`, string(employeeID), month.Start.Time).Scan(&exists)
	return exists, err
}

func insertPayrollRecord(ctx context.Context, q querier, rec payroll.Record) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO payroll_records (id, employee_id, period_from, period_to, working_days,
			days_present, net_amount, status, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (employee_id, period_from) DO NOTHING
	`,
		rec.ID, string(rec.EmployeeID), rec.Period.Start.Time, rec.Period.End.Time,
		rec.WorkingDays, rec.DaysPresent, rec.NetAmount, string(rec.Status),
		rec.Notes, rec.CreatedBy, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: employee %s month %s", generic.ErrDuplicateRecord, rec.EmployeeID, rec.Period.Start)
		}
		return fmt.Errorf("insert payroll record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: employee %s month %s", generic.ErrDuplicateRecord, rec.EmployeeID, rec.Period.Start)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) withTx(ctx context.Context, fn func(*txStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func (ts *txStore) ActiveContracts(ctx context.Context) ([]billing.Contract, error) {
	return activeContracts(ctx, ts.tx)
}

func (ts *txStore) RecordExists(ctx context.Context, contractID generic.EntityID, p generic.Period) (bool, error) {
	return recordExists(ctx, ts.tx, contractID, p)
}

func (ts *txStore) RecordNumberExists(ctx context.Context, number string) (bool, error) {
	return recordNumberExists(ctx, ts.tx, number)
}

func (ts *txStore) InsertBillingRecord(ctx context.Context, rec billing.BillingRecord) error {
	return insertBillingRecord(ctx, ts.tx, rec)
}

func (ts *txStore) AllEmployees(ctx context.Context) ([]payroll.Employee, error) {
	return allEmployees(ctx, ts.tx)
}

func (ts *txStore) PayrollRecordExists(ctx context.Context, employeeID generic.EntityID, month generic.Period) (bool, error) {
	return payrollRecordExists(ctx, ts.tx, employeeID, month)
}

func (ts *txStore) InsertPayrollRecord(ctx context.Context, rec payroll.Record) error {
	return insertPayrollRecord(ctx, ts.tx, rec)
}

func (ts *txStore) CountPresent(ctx context.Context, employeeID generic.EntityID, p generic.Period) (int, error) {
	return countPresent(ctx, ts.tx, employeeID, p)
}

// =============================================================================
// RUN LOG AND INBOX
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, r generic.RunRecord) error {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO generation_runs (id, kind, status, reason, reference_date, actor,
			entities, created, skipped, failed, errors, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		r.ID, string(r.Kind), string(r.Status), r.Reason, r.ReferenceDate.Time, r.Actor,
		r.Entities, r.Created, r.Skipped, r.Failed, errs, r.StartedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save generation run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, kind generic.Kind, limit int) ([]generic.RunRecord, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`
		SELECT id, kind, status, reason, reference_date, actor, entities, created,
		       skipped, failed, errors, started_at, completed_at
		FROM generation_runs`)
	if kind != "" {
		args = append(args, string(kind))
		fmt.Fprintf(&query, " WHERE kind = $%d", len(args))
	}
	query.WriteString(" ORDER BY started_at DESC")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&query, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query generation runs: %w", err)
	}
	defer rows.Close()

	var runs []generic.RunRecord
	for rows.Next() {
		var (
			r            generic.RunRecord
			kind, status string
			ref          time.Time
		)
		if err := rows.Scan(&r.ID, &kind, &status, &r.Reason, &ref, &r.Actor, &r.Entities,
			&r.Created, &r.Skipped, &r.Failed, &r.Errors, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan generation run: %w", err)
		}
		r.Kind = generic.Kind(kind)
		r.Status = generic.RunStatus(status)
		r.ReferenceDate = dateOf(ref)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) SaveNotification(ctx context.Context, n generic.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient, title, message, type, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.Recipient, n.Title, n.Message, n.Type, n.CreatedBy, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

// Helper functions

func dateOf(t time.Time) generic.TimePoint {
	return generic.NewTimePoint(t.Year(), t.Month(), t.Day())
}

// isUniqueViolation reports a unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "23505")
}
