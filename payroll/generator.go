package payroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/obligation-engine/generic"
)

// Generator creates the month's payroll record for one employee.
type Generator struct {
	Store      TxStore
	Attendance AttendanceAggregator
	Log        zerolog.Logger
}

func NewGenerator(store TxStore, attendance AttendanceAggregator, log zerolog.Logger) *Generator {
	return &Generator{Store: store, Attendance: attendance, Log: log}
}

// Generate writes e's record for the month containing ref. The caller checks
// IsPayrollDay first; Generate itself does not gate.
func (g *Generator) Generate(ctx context.Context, exec generic.ExecutionContext, e Employee, ref generic.TimePoint) (generic.Outcome, error) {
	out := generic.Outcome{Label: e.Label()}
	if err := e.Validate(); err != nil {
		return out, err
	}
	month := MonthPeriod(ref)

	err := g.Store.WithPayrollTx(ctx, func(tx Store) error {
		out.Created, out.Skipped = 0, 0
		exists, err := tx.PayrollRecordExists(ctx, e.ID, month)
		if err != nil {
			return fmt.Errorf("check existing payroll: %w", err)
		}
		if exists {
			out.Skipped = 1
			return nil
		}

		// Read attendance on the transaction when the store can.
		counter := g.Attendance
		if a, ok := tx.(AttendanceAggregator); ok {
			counter = a
		}
		if counter == nil {
			return fmt.Errorf("count attendance: no aggregator configured")
		}

		workingDays := WorkingDays(month)
		present, err := counter.CountPresent(ctx, e.ID, month)
		if err != nil {
			return fmt.Errorf("count attendance: %w", err)
		}

		rec := Record{
			ID:          uuid.NewString(),
			EmployeeID:  e.ID,
			Period:      month,
			WorkingDays: workingDays,
			DaysPresent: present,
			NetAmount:   NetAmount(e.MonthlySalary, workingDays, present, exec.Precision()),
			Status:      StatusPending,
			Notes:       fmt.Sprintf("Auto-generated payroll for %04d-%02d", month.Start.Year(), int(month.Start.Month())),
			CreatedBy:   exec.Actor,
			CreatedAt:   exec.Now(),
		}
		if err := tx.InsertPayrollRecord(ctx, rec); err != nil {
			if errors.Is(err, generic.ErrDuplicateRecord) {
				out.Skipped = 1
				return nil
			}
			return fmt.Errorf("insert payroll record: %w", err)
		}
		out.Created = 1

		g.Log.Debug().
			Str("employee_id", string(e.ID)).
			Str("period", month.String()).
			Int("working_days", workingDays).
			Int("days_present", present).
			Str("net_amount", rec.NetAmount.StringFixed(exec.Precision())).
			Msg("payroll record created")
		return nil
	})
	if err != nil {
		return generic.Outcome{Label: out.Label}, err
	}
	return out, nil
}
