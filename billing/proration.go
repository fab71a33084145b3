package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/obligation-engine/generic"
)

// Proration is a contract amount split evenly over its periods.
type Proration struct {
	TotalPeriods int
	PerPeriod    generic.Money
	// Residual is Total - PerPeriod*TotalPeriods. It is left where it falls:
	// the last period does not absorb it.
	Residual generic.Money
}

// Prorate divides total by periods and rounds to precision. Every period of
// a contract is billed the same PerPeriod amount.
func Prorate(total generic.Money, periods int, precision int32) (Proration, error) {
	if periods < 1 {
		return Proration{}, fmt.Errorf("%w: %d periods", generic.ErrInvalidContract, periods)
	}
	n := decimal.NewFromInt(int64(periods))
	per := generic.RoundMoney(total.Div(n), precision)
	return Proration{
		TotalPeriods: periods,
		PerPeriod:    per,
		Residual:     total.Sub(per.Mul(n)),
	}, nil
}

// ProrateContract computes the total period count from the contract's
// schedule and prorates its amount over it.
func ProrateContract(c Contract, precision int32) (Proration, error) {
	total, err := c.Schedule().TotalPeriods()
	if err != nil {
		return Proration{}, err
	}
	return Prorate(c.Amount, total, precision)
}
