/*
generator.go - Bill generation for one contract

PURPOSE:
  Turns a contract and a reference date into billing records, exactly once
  per period no matter how often it runs.

FLOW (per contract, one storage transaction):
  1. Validate the contract; expired contracts produce no work
  2. Prorate: amount / round(periods_per_year * years), rounded
  3. Slice the lifetime into periods; keep those ending on or before ref
  4. For each elapsed period:
       a. RecordExists -> skipped
       b. Pick a free record number
       c. Insert; ErrDuplicateRecord from the store -> skipped
          (another run won the race), ErrDuplicateRecordNumber -> next suffix

IDEMPOTENCY:
  Step 4a is only an optimization. The store's unique key on
  (contract_id, period_from, period_to) is what makes double runs safe.

SEE ALSO:
  - generic/period.go: Schedule (period slicing, total period count)
  - proration.go, number.go
  - engine/engine.go: RunBillingGeneration
*/
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/obligation-engine/generic"
)

// Generator creates billing records for one contract at a time.
type Generator struct {
	Store TxStore
	// Prefix is prepended to record numbers ("AMC" gives AMC-{id}-...).
	Prefix string
	Log    zerolog.Logger
}

func NewGenerator(store TxStore, prefix string, log zerolog.Logger) *Generator {
	return &Generator{Store: store, Prefix: prefix, Log: log}
}

// Generate creates the missing records of every elapsed period of c.
func (g *Generator) Generate(ctx context.Context, exec generic.ExecutionContext, c Contract, ref generic.TimePoint) (generic.Outcome, error) {
	out := generic.Outcome{Label: c.Label()}

	if err := c.Validate(); err != nil {
		return out, err
	}
	if c.End.Before(ref) {
		g.Log.Debug().
			Str("contract_id", string(c.ID)).
			Str("end_date", c.End.String()).
			Msg("contract expired, nothing to bill")
		return out, nil
	}

	proration, err := ProrateContract(c, exec.Precision())
	if err != nil {
		return out, err
	}
	periods := c.Schedule().Elapsed(ref)
	if len(periods) == 0 {
		return out, nil
	}

	err = g.Store.WithBillingTx(ctx, func(tx Store) error {
		out.Created, out.Skipped = 0, 0
		for _, p := range periods {
			created, err := g.generatePeriod(ctx, tx, exec, c, p, proration, ref)
			if err != nil {
				return fmt.Errorf("period %s: %w", p, err)
			}
			if created {
				out.Created++
			} else {
				out.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return generic.Outcome{Label: out.Label}, err
	}

	if !proration.Residual.IsZero() && out.Created > 0 {
		g.Log.Debug().
			Str("contract_id", string(c.ID)).
			Str("residual", proration.Residual.String()).
			Int("total_periods", proration.TotalPeriods).
			Msg("proration leaves rounding residual")
	}
	return out, nil
}

// generatePeriod returns created=false when the period already has a record.
func (g *Generator) generatePeriod(
	ctx context.Context,
	tx Store,
	exec generic.ExecutionContext,
	c Contract,
	p generic.Period,
	proration Proration,
	ref generic.TimePoint,
) (bool, error) {
	exists, err := tx.RecordExists(ctx, c.ID, p)
	if err != nil {
		return false, fmt.Errorf("check existing record: %w", err)
	}
	if exists {
		return false, nil
	}

	base := BaseRecordNumber(g.Prefix, c.ID, c.Cycle, p)
	suffix := 0
	for {
		number, err := uniqueFrom(ctx, base, suffix, tx.RecordNumberExists)
		if err != nil {
			return false, err
		}

		rec := BillingRecord{
			ID:         uuid.NewString(),
			ContractID: c.ID,
			Number:     number,
			BillDate:   ref,
			Period:     p,
			Amount:     proration.PerPeriod,
			Paid:       false,
			CreatedBy:  exec.Actor,
			CreatedAt:  exec.Now(),
		}
		err = tx.InsertBillingRecord(ctx, rec)
		switch {
		case err == nil:
			g.Log.Debug().
				Str("contract_id", string(c.ID)).
				Str("record_number", number).
				Str("period", p.String()).
				Str("amount", rec.Amount.StringFixed(exec.Precision())).
				Msg("billing record created")
			return true, nil
		case errors.Is(err, generic.ErrDuplicateRecord):
			return false, nil
		case errors.Is(err, generic.ErrDuplicateRecordNumber):
			suffix = nextSuffix(base, number)
		default:
			return false, fmt.Errorf("insert billing record: %w", err)
		}
	}
}

// nextSuffix is the suffix after the one used by number.
func nextSuffix(base, number string) int {
	if number == base {
		return 1
	}
	var n int
	if _, err := fmt.Sscanf(number[len(base):], "-%d", &n); err != nil {
		return 1
	}
	return n + 1
}
