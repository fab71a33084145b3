/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

INTERFACES IMPLEMENTED:
  billing.TxStore, billing.RecordReader:  Contracts and billing records
  payroll.TxStore, payroll.RecordReader:  Employees and payroll records
  payroll.AttendanceAggregator:           Present-day counts
  generic.RunLog:                         Generation run history
  generic.Inbox:                          Owner notifications

IDEMPOTENCY:
  Uniqueness lives in the schema, not in the generators:
  - billing_records UNIQUE(contract_id, period_from, period_to)
  - billing_records UNIQUE(record_number)
  - payroll_records UNIQUE(employee_id, period_from)
  Period-key conflicts are absorbed with ON CONFLICT DO NOTHING and reported
  as generic.ErrDuplicateRecord; a record-number conflict surfaces as
  generic.ErrDuplicateRecordNumber.

STORAGE FORMATS:
  Dates are TEXT YYYY-MM-DD, instants TEXT RFC3339, money TEXT decimal
  strings (never REAL).

CONCURRENCY:
  mu serializes write transactions (SQLite has a single writer). Reads go
  straight to the pool; WAL lets them run next to a writer.

USAGE:
  store, err := sqlite.New("./data/obligations.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - billing/types.go, payroll/types.go: Interface definitions
  - store/postgres: Same semantics on PostgreSQL
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/payroll"
)

const (
	dateLayout = "2006-01-02"
	// Fixed width so started_at sorts correctly as TEXT.
	runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection (used by the health endpoint).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		contract_number TEXT NOT NULL DEFAULT '',
		client_name TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		billing_cycle TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_status
		ON contracts(status);

	-- Generated bills. One per (contract, period), never regenerated.
	CREATE TABLE IF NOT EXISTS billing_records (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL REFERENCES contracts(id),
		record_number TEXT NOT NULL,
		bill_date TEXT NOT NULL,
		period_from TEXT NOT NULL,
		period_to TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_records_period
		ON billing_records(contract_id, period_from, period_to);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_records_number
		ON billing_records(record_number);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		employee_code TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		monthly_salary TEXT NOT NULL,
		joining_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attendance (
		employee_id TEXT NOT NULL REFERENCES employees(id),
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		PRIMARY KEY (employee_id, date)
	);

	CREATE TABLE IF NOT EXISTS payroll_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		period_from TEXT NOT NULL,
		period_to TEXT NOT NULL,
		working_days INTEGER NOT NULL,
		days_present INTEGER NOT NULL,
		net_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
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
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generation_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		reference_date TEXT NOT NULL,
		actor TEXT,
		entities INTEGER NOT NULL,
		created INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		errors_json TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_generation_runs_kind
		ON generation_runs(kind, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CONTRACTS (billing.Store)
// =============================================================================

// SaveContract inserts or updates a contract.
func (s *Store) SaveContract(ctx context.Context, c billing.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (id, contract_number, client_name, amount, start_date, end_date,
			billing_cycle, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			contract_number = excluded.contract_number,
			client_name = excluded.client_name,
			amount = excluded.amount,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			billing_cycle = excluded.billing_cycle,
			status = excluded.status,
			updated_at = excluded.updated_at
	`,
		c.ID, c.Number, c.ClientName, c.Amount.String(),
		c.Start.String(), c.End.String(), string(c.Cycle), string(c.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

// GetContract returns generic.ErrNotFound for unknown ids.
func (s *Store) GetContract(ctx context.Context, id generic.EntityID) (*billing.Contract, error) {
	contracts, err := queryContracts(ctx, s.db, contractColumns+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("contract %s: %w", id, generic.ErrNotFound)
	}
	return &contracts[0], nil
}

// ListContracts returns every contract regardless of status.
func (s *Store) ListContracts(ctx context.Context) ([]billing.Contract, error) {
	return queryContracts(ctx, s.db, contractColumns+` ORDER BY id`)
}

func (s *Store) ActiveContracts(ctx context.Context) ([]billing.Contract, error) {
	return activeContracts(ctx, s.db)
}

func (s *Store) RecordExists(ctx context.Context, contractID generic.EntityID, p generic.Period) (bool, error) {
	return recordExists(ctx, s.db, contractID, p)
}

func (s *Store) RecordNumberExists(ctx context.Context, number string) (bool, error) {
	return recordNumberExists(ctx, s.db, number)
}

func (s *Store) InsertBillingRecord(ctx context.Context, rec billing.BillingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertBillingRecord(ctx, s.db, rec)
}

// WithBillingTx runs fn inside one SQLite transaction.
func (s *Store) WithBillingTx(ctx context.Context, fn func(billing.Store) error) error {
	return s.withTx(ctx, func(tx *txStore) error { return fn(tx) })
}

// BillingRecords lists a contract's bills ordered by period.
func (s *Store) BillingRecords(ctx context.Context, contractID generic.EntityID) ([]billing.BillingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, record_number, bill_date, period_from, period_to,
		       amount, paid, created_by, created_at
		FROM billing_records
		WHERE contract_id = ?
		ORDER BY period_from ASC
	`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query billing records: %w", err)
	}
	defer rows.Close()

	var records []billing.BillingRecord
	for rows.Next() {
		var (
			r                                   billing.BillingRecord
			billDate, from, to, amount, created string
		)
		if err := rows.Scan(&r.ID, &r.ContractID, &r.Number, &billDate, &from, &to,
			&amount, &r.Paid, &r.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("failed to scan billing record: %w", err)
		}
		var errs [4]error
		r.BillDate, errs[0] = parseDate(billDate)
		r.Period.Start, errs[1] = parseDate(from)
		r.Period.End, errs[2] = parseDate(to)
		r.Amount, errs[3] = parseMoney(amount)
		if err := errors.Join(errs[:]...); err != nil {
			return nil, fmt.Errorf("failed to decode billing record %s: %w", r.ID, err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		records = append(records, r)
	}
	return records, rows.Err()
}

const contractColumns = `
	SELECT id, contract_number, client_name, amount, start_date, end_date, billing_cycle, status
	FROM contracts`

func activeContracts(ctx context.Context, db execer) ([]billing.Contract, error) {
	return queryContracts(ctx, db, contractColumns+` WHERE status = ? ORDER BY id`, string(billing.ContractActive))
}

func queryContracts(ctx context.Context, db execer, query string, args ...any) ([]billing.Contract, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []billing.Contract
	for rows.Next() {
		var (
			c                  billing.Contract
			amount, start, end string
			cycle, status      string
		)
		if err := rows.Scan(&c.ID, &c.Number, &c.ClientName, &amount, &start, &end, &cycle, &status); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		var errs [3]error
		c.Amount, errs[0] = parseMoney(amount)
		c.Start, errs[1] = parseDate(start)
		c.End, errs[2] = parseDate(end)
		// A bad row fails only its own contract, at Validate.
		c.DecodeErr = errors.Join(errs[:]...)
		c.Cycle = generic.Cycle(cycle)
		c.Status = billing.ContractStatus(status)
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func recordExists(ctx context.Context, db execer, contractID generic.EntityID, p generic.Period) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM billing_records
		WHERE contract_id = ? AND period_from = ? AND period_to = ?
	`, contractID, p.Start.String(), p.End.String()).Scan(&count)
	return count > 0, err
}

func recordNumberExists(ctx context.Context, db execer, number string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM billing_records WHERE record_number = ?", number,
	).Scan(&count)
	return count > 0, err
}

func insertBillingRecord(ctx context.Context, db execer, rec billing.BillingRecord) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO billing_records (id, contract_id, record_number, bill_date, period_from,
			period_to, amount, paid, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contract_id, period_from, period_to) DO NOTHING
	`,
		rec.ID, rec.ContractID, rec.Number, rec.BillDate.String(),
		rec.Period.Start.String(), rec.Period.End.String(),
		rec.Amount.String(), rec.Paid, rec.CreatedBy, rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "record_number") {
			return fmt.Errorf("%w: %s", generic.ErrDuplicateRecordNumber, rec.Number)
		}
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: contract %s period %s", generic.ErrDuplicateRecord, rec.ContractID, rec.Period)
		}
		return fmt.Errorf("failed to insert billing record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: contract %s period %s", generic.ErrDuplicateRecord, rec.ContractID, rec.Period)
	}
	return nil
}

// =============================================================================
// EMPLOYEES AND ATTENDANCE (payroll.Store)
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var joining sql.NullString
	if !e.JoiningDate.IsZero() {
		joining = sql.NullString{String: e.JoiningDate.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, employee_code, name, monthly_salary, joining_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_code = excluded.employee_code,
			name = excluded.name,
			monthly_salary = excluded.monthly_salary,
			joining_date = excluded.joining_date
	`, e.ID, e.Code, e.Name, e.MonthlySalary.String(), joining, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) AllEmployees(ctx context.Context) ([]payroll.Employee, error) {
	return allEmployees(ctx, s.db)
}

// SaveAttendance records one employee-day, replacing an earlier status.
func (s *Store) SaveAttendance(ctx context.Context, a payroll.AttendanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (employee_id, date, status) VALUES (?, ?, ?)
		ON CONFLICT(employee_id, date) DO UPDATE SET status = excluded.status
	`, a.EmployeeID, a.Date.String(), string(a.Status))
	if err != nil {
		return fmt.Errorf("failed to save attendance: %w", err)
	}
	return nil
}

func (s *Store) CountPresent(ctx context.Context, employeeID generic.EntityID, p generic.Period) (int, error) {
	return countPresent(ctx, s.db, employeeID, p)
}

func (s *Store) PayrollRecordExists(ctx context.Context, employeeID generic.EntityID, month generic.Period) (bool, error) {
	return payrollRecordExists(ctx, s.db, employeeID, month)
}

func (s *Store) InsertPayrollRecord(ctx context.Context, rec payroll.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayrollRecord(ctx, s.db, rec)
}

func (s *Store) WithPayrollTx(ctx context.Context, fn func(payroll.Store) error) error {
	return s.withTx(ctx, func(tx *txStore) error { return fn(tx) })
}

func (s *Store) PayrollRecords(ctx context.Context, employeeID generic.EntityID) ([]payroll.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, period_from, period_to, working_days, days_present,
		       net_amount, status, notes, created_by, created_at
		FROM payroll_records
		WHERE employee_id = ?
		ORDER BY period_from ASC
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payroll records: %w", err)
	}
	defer rows.Close()

	var records []payroll.Record
	for rows.Next() {
		var (
			r                         payroll.Record
			from, to, amount, created string
			status                    string
			notes                     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.EmployeeID, &from, &to, &r.WorkingDays, &r.DaysPresent,
			&amount, &status, &notes, &r.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("failed to scan payroll record: %w", err)
		}
		var errs [3]error
		r.Period.Start, errs[0] = parseDate(from)
		r.Period.End, errs[1] = parseDate(to)
		r.NetAmount, errs[2] = parseMoney(amount)
		if err := errors.Join(errs[:]...); err != nil {
			return nil, fmt.Errorf("failed to decode payroll record %s: %w", r.ID, err)
		}
		r.Status = payroll.Status(status)
		r.Notes = notes.String
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		records = append(records, r)
	}
	return records, rows.Err()
}

func allEmployees(ctx context.Context, db execer) ([]payroll.Employee, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, employee_code, name, monthly_salary, joining_date
		FROM employees ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []payroll.Employee
	for rows.Next() {
		var (
			e       payroll.Employee
			salary  string
			joining sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Code, &e.Name, &salary, &joining); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		var errs [2]error
		e.MonthlySalary, errs[0] = parseMoney(salary)
		if joining.Valid {
			e.JoiningDate, errs[1] = parseDate(joining.String)
		}
		e.DecodeErr = errors.Join(errs[:]...)
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func countPresent(ctx context.Context, db execer, employeeID generic.EntityID, p generic.Period) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance
		WHERE employee_id = ? AND date >= ? AND date <= ? AND status IN (?, ?)
	`, employeeID, p.Start.String(), p.End.String(),
		string(payroll.AttendancePresent), string(payroll.AttendanceHalfDay),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attendance: %w", err)
	}
	return count, nil
}

func payrollRecordExists(ctx context.Context, db execer, employeeID generic.EntityID, month generic.Period) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payroll_records WHERE employee_id = ? AND period_from = ?",
		employeeID, month.Start.String(),
	).Scan(&count)
	return count > 0, err
}

func insertPayrollRecord(ctx context.Context, db execer, rec payroll.Record) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO payroll_records (id, employee_id, period_from, period_to, working_days,
			days_present, net_amount, status, notes, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, period_from) DO NOTHING
	`,
		rec.ID, rec.EmployeeID, rec.Period.Start.String(), rec.Period.End.String(),
		rec.WorkingDays, rec.DaysPresent, rec.NetAmount.String(), string(rec.Status),
		nullString(rec.Notes), rec.CreatedBy, rec.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: employee %s month %s", generic.ErrDuplicateRecord, rec.EmployeeID, rec.Period.Start)
		}
		return fmt.Errorf("failed to insert payroll record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: employee %s month %s", generic.ErrDuplicateRecord, rec.EmployeeID, rec.Period.Start)
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

func (s *Store) withTx(ctx context.Context, fn func(*txStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore serves billing.Store, payroll.Store and payroll.AttendanceAggregator
// on one open transaction.
type txStore struct {
	tx *sql.Tx
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
	s.mu.Lock()
	defer s.mu.Unlock()

	errorsJSON, _ := json.Marshal(r.Errors)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_runs (id, kind, status, reason, reference_date, actor,
			entities, created, skipped, failed, errors_json, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, string(r.Kind), string(r.Status), nullString(r.Reason), r.ReferenceDate.String(),
		nullString(r.Actor), r.Entities, r.Created, r.Skipped, r.Failed, string(errorsJSON),
		r.StartedAt.UTC().Format(runTimeLayout), r.CompletedAt.UTC().Format(runTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save generation run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first. An empty kind lists every kind;
// limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, kind generic.Kind, limit int) ([]generic.RunRecord, error) {
	query := `
		SELECT id, kind, status, reason, reference_date, actor, entities, created,
		       skipped, failed, errors_json, started_at, completed_at
		FROM generation_runs`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation runs: %w", err)
	}
	defer rows.Close()

	var runs []generic.RunRecord
	for rows.Next() {
		var (
			r                      generic.RunRecord
			kindStr, status, ref   string
			reason, actor, errs    sql.NullString
			startedAt, completedAt string
		)
		if err := rows.Scan(&r.ID, &kindStr, &status, &reason, &ref, &actor,
			&r.Entities, &r.Created, &r.Skipped, &r.Failed, &errs, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan generation run: %w", err)
		}
		r.Kind = generic.Kind(kindStr)
		r.Status = generic.RunStatus(status)
		r.Reason = reason.String
		r.Actor = actor.String
		if r.ReferenceDate, err = parseDate(ref); err != nil {
			return nil, fmt.Errorf("failed to decode generation run %s: %w", r.ID, err)
		}
		if errs.Valid && errs.String != "" {
			if err := json.Unmarshal([]byte(errs.String), &r.Errors); err != nil {
				return nil, fmt.Errorf("failed to decode errors of generation run %s: %w", r.ID, err)
			}
		}
		r.StartedAt, _ = time.Parse(runTimeLayout, startedAt)
		r.CompletedAt, _ = time.Parse(runTimeLayout, completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) SaveNotification(ctx context.Context, n generic.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient, title, message, type, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Recipient, n.Title, n.Message, n.Type, n.CreatedBy, n.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// Notifications lists a recipient's notifications, newest first.
func (s *Store) Notifications(ctx context.Context, recipient string) ([]generic.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient, title, message, type, created_by, created_at
		FROM notifications WHERE recipient = ?
		ORDER BY created_at DESC
	`, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []generic.Notification
	for rows.Next() {
		var (
			n       generic.Notification
			created string
		)
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Title, &n.Message, &n.Type, &n.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Reset clears generated data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"billing_records", "payroll_records", "notifications", "generation_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDate(s string) (generic.TimePoint, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return generic.TimePoint{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return generic.TimePoint{Time: t}, nil
}

func parseMoney(s string) (generic.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
