/*
Package engine exposes the two generation entrypoints.

ENTRYPOINTS:
  RunBillingGeneration(ctx, exec, ref)  bills every elapsed contract period
  RunPayrollGeneration(ctx, exec, ref)  pays the month ending on ref

  Both are safe to call any number of times with the same ref: the second
  call creates nothing and reports every period as skipped.

ERROR MODEL:
  - Precondition not met (no entities, not a payroll day): skipped result,
    nil error
  - One entity fails (bad data, its transaction aborted): recorded in
    result.Errors, the batch continues
  - The entity list itself cannot be loaded: returned as error; the caller
    (scheduler, HTTP trigger) owns retries

SEE ALSO:
  - generic/batch.go: BatchRunner
  - billing/generator.go, payroll/generator.go
  - api/scheduler.go: Daily trigger
*/
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/payroll"
)

const (
	ReasonNoContracts   = "No active contracts found"
	ReasonNoEmployees   = "No employees found"
	ReasonNotPayrollDay = "Not the last day of the month"
)

// Options wires the engine's collaborators.
type Options struct {
	Contracts   billing.TxStore
	Employees   payroll.TxStore
	Attendance  payroll.AttendanceAggregator
	Notifier    generic.Notifier
	BillPrefix  string
	Concurrency int
	Log         zerolog.Logger
}

type Engine struct {
	billing  *billing.Generator
	payroll  *payroll.Generator
	contract billing.Store
	employee payroll.Store
	notifier generic.Notifier
	runner   generic.BatchRunner
	log      zerolog.Logger
}

func New(opts Options) *Engine {
	e := &Engine{
		notifier: opts.Notifier,
		runner:   generic.BatchRunner{Concurrency: opts.Concurrency, Log: opts.Log},
		log:      opts.Log,
	}
	if opts.Contracts != nil {
		e.contract = opts.Contracts
		e.billing = billing.NewGenerator(opts.Contracts, opts.BillPrefix, opts.Log)
	}
	if opts.Employees != nil {
		e.employee = opts.Employees
		e.payroll = payroll.NewGenerator(opts.Employees, opts.Attendance, opts.Log)
	}
	return e
}

// RunBillingGeneration generates bills for every active contract as of ref.
func (e *Engine) RunBillingGeneration(ctx context.Context, exec generic.ExecutionContext, ref generic.TimePoint) (*generic.GenerationResult, error) {
	if e.billing == nil {
		return nil, fmt.Errorf("billing generation: no contract store configured")
	}
	log := e.log.With().Str("kind", string(generic.KindBilling)).Str("reference_date", ref.String()).Logger()
	log.Info().Msg("starting billing generation")

	contracts, err := e.contract.ActiveContracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active contracts: %w", err)
	}
	active := contracts[:0:0]
	for _, c := range contracts {
		if c.IsActive() {
			active = append(active, c)
		}
	}

	var result *generic.GenerationResult
	if len(active) == 0 {
		log.Info().Msg("no active contracts, skipping billing generation")
		result = generic.SkippedResult(generic.KindBilling, ref, ReasonNoContracts, exec.Now())
	} else {
		result = generic.RunBatch(ctx, e.runnerFor(exec), generic.KindBilling, ref, active,
			func(c billing.Contract) generic.EntityID { return c.ID },
			func(ctx context.Context, c billing.Contract) (generic.Outcome, error) {
				return e.billing.Generate(ctx, exec, c, ref)
			},
		)
	}
	return e.finish(ctx, exec, result, log), nil
}

// RunPayrollGeneration generates the month's payroll when ref is the last
// day of its month.
func (e *Engine) RunPayrollGeneration(ctx context.Context, exec generic.ExecutionContext, ref generic.TimePoint) (*generic.GenerationResult, error) {
	if e.payroll == nil {
		return nil, fmt.Errorf("payroll generation: no employee store configured")
	}
	log := e.log.With().Str("kind", string(generic.KindPayroll)).Str("reference_date", ref.String()).Logger()

	if !payroll.IsPayrollDay(ref) {
		log.Info().Msg("not the last day of the month, skipping payroll generation")
		return e.finish(ctx, exec, generic.SkippedResult(generic.KindPayroll, ref, ReasonNotPayrollDay, exec.Now()), log), nil
	}
	log.Info().Msg("starting payroll generation")

	employees, err := e.employee.AllEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}

	var result *generic.GenerationResult
	if len(employees) == 0 {
		log.Warn().Msg("no employees, skipping payroll generation")
		result = generic.SkippedResult(generic.KindPayroll, ref, ReasonNoEmployees, exec.Now())
	} else {
		result = generic.RunBatch(ctx, e.runnerFor(exec), generic.KindPayroll, ref, employees,
			func(emp payroll.Employee) generic.EntityID { return emp.ID },
			func(ctx context.Context, emp payroll.Employee) (generic.Outcome, error) {
				return e.payroll.Generate(ctx, exec, emp, ref)
			},
		)
	}
	return e.finish(ctx, exec, result, log), nil
}

func (e *Engine) runnerFor(exec generic.ExecutionContext) generic.BatchRunner {
	r := e.runner
	r.Clock = exec.Clock
	return r
}

// finish stamps the actor, logs the summary and hands it to the notifier.
func (e *Engine) finish(ctx context.Context, exec generic.ExecutionContext, result *generic.GenerationResult, log zerolog.Logger) *generic.GenerationResult {
	result.Actor = exec.Actor

	log.Info().
		Str("status", string(result.Status)).
		Str("reason", result.Reason).
		Int("entities", result.Entities).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("generation completed")

	if e.notifier != nil {
		if err := e.notifier.PublishSummary(ctx, result); err != nil {
			log.Warn().Err(err).Msg("publish generation summary")
		}
	}
	return result
}
