// Package billing generates periodic bills for service contracts (AMCs).
// It uses the generic engine for period slicing and batch execution and adds
// proration, record numbering and the contract store contract.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/obligation-engine/generic"
)

// =============================================================================
// CONTRACT
// =============================================================================

type ContractStatus string

const (
	ContractPending  ContractStatus = "Pending"
	ContractActive   ContractStatus = "Active"
	ContractExpired  ContractStatus = "Expired"
	ContractCanceled ContractStatus = "Canceled"
)

// Contract is a service agreement billed over its lifetime. Only Amount and
// End may change once bills exist, and those edits happen outside this engine.
type Contract struct {
	ID         generic.EntityID
	Number     string // human contract number, e.g. "AMC-2025-007"
	ClientName string
	Amount     generic.Money
	Start      generic.TimePoint
	End        generic.TimePoint
	Cycle      generic.Cycle
	Status     ContractStatus

	// DecodeErr is set by a store when a stored column of this contract
	// could not be decoded. Validate reports it.
	DecodeErr error
}

func (c Contract) IsActive() bool { return c.Status == ContractActive }

func (c Contract) Schedule() generic.Schedule {
	return generic.Schedule{Start: c.Start, End: c.End, Cycle: c.Cycle}
}

// Validate rejects contracts that cannot be sliced or priced.
func (c Contract) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", generic.ErrInvalidContract)
	}
	if c.DecodeErr != nil {
		return fmt.Errorf("%w: %w", generic.ErrInvalidContract, c.DecodeErr)
	}
	if c.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", generic.ErrInvalidContract, c.Amount)
	}
	if err := c.Schedule().Validate(); err != nil {
		return fmt.Errorf("%w: %w", generic.ErrInvalidContract, err)
	}
	return nil
}

// Label is how the contract appears in summaries and notifications.
func (c Contract) Label() string {
	number := c.Number
	if number == "" {
		number = string(c.ID)
	}
	if c.ClientName == "" {
		return number
	}
	return number + " (" + c.ClientName + ")"
}

// =============================================================================
// BILLING RECORD
// =============================================================================

// BillingRecord is one bill for one period of one contract. It is created
// once and never regenerated; Paid is owned by the payment workflow.
type BillingRecord struct {
	ID         string
	ContractID generic.EntityID
	Number     string
	BillDate   generic.TimePoint
	Period     generic.Period
	Amount     generic.Money
	Paid       bool
	CreatedBy  string
	CreatedAt  time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Store is the contract-side persistence the generator needs.
//
// InsertBillingRecord must return generic.ErrDuplicateRecord when a record
// for (ContractID, Period.Start, Period.End) exists, and
// generic.ErrDuplicateRecordNumber when Number is taken. Both must be backed
// by unique constraints, not by a read before the write.
type Store interface {
	ActiveContracts(ctx context.Context) ([]Contract, error)
	RecordExists(ctx context.Context, contractID generic.EntityID, period generic.Period) (bool, error)
	RecordNumberExists(ctx context.Context, number string) (bool, error)
	InsertBillingRecord(ctx context.Context, rec BillingRecord) error
}

// TxStore runs fn inside one storage transaction. If fn returns an error the
// transaction is rolled back.
type TxStore interface {
	Store
	WithBillingTx(ctx context.Context, fn func(Store) error) error
}

// RecordReader lists generated bills (read side, used by the API).
type RecordReader interface {
	BillingRecords(ctx context.Context, contractID generic.EntityID) ([]BillingRecord, error)
}
