package payroll

import (
	"github.com/shopspring/decimal"
	"github.com/warp/obligation-engine/generic"
)

// IsPayrollDay gates generation to the last calendar day of the month, so a
// month is never paid before it is complete.
func IsPayrollDay(ref generic.TimePoint) bool {
	return ref.IsLastDayOfMonth()
}

// MonthPeriod is [first day, last day] of ref's month.
func MonthPeriod(ref generic.TimePoint) generic.Period {
	return generic.Period{
		Start: generic.StartOfMonth(ref.Year(), ref.Month()),
		End:   generic.EndOfMonth(ref.Year(), ref.Month()),
	}
}

// WorkingDays counts Monday-Friday in p. Holidays are deliberately not
// subtracted.
func WorkingDays(p generic.Period) int {
	return generic.WorkdaysIn(p)
}

// NetAmount is (salary / workingDays) * daysPresent rounded to precision,
// or zero when there are no working days.
func NetAmount(monthlySalary generic.Money, workingDays, daysPresent int, precision int32) generic.Money {
	if workingDays <= 0 {
		return decimal.Zero
	}
	daily := monthlySalary.Div(decimal.NewFromInt(int64(workingDays)))
	return generic.RoundMoney(daily.Mul(decimal.NewFromInt(int64(daysPresent))), precision)
}
