package generic

import (
	"fmt"
	"iter"
	"math"
	"strings"
)

// =============================================================================
// PERIOD - A contiguous, inclusive date range
// =============================================================================

// Period is the inclusive range [Start, End] one billing or payroll record
// covers.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// Length is the number of days in the period, both ends included.
func (p Period) Length() int { return DaysBetween(p.Start, p.End) + 1 }

// Validate rejects periods whose end precedes their start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// CYCLE - Recurrence interval for contract billing
// =============================================================================

type Cycle string

const (
	CycleMonthly    Cycle = "Monthly"
	CycleQuarterly  Cycle = "Quarterly"
	CycleHalfYearly Cycle = "Half-yearly"
	CycleYearly     Cycle = "Yearly"
)

// ParseCycle accepts the stored names case-insensitively, plus a few
// spellings operators use in imports ("half_yearly", "annual").
func ParseCycle(s string) (Cycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return CycleMonthly, nil
	case "quarterly":
		return CycleQuarterly, nil
	case "half-yearly", "half_yearly", "halfyearly":
		return CycleHalfYearly, nil
	case "yearly", "annual":
		return CycleYearly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCycle, s)
}

// Months is the calendar length of one period.
func (c Cycle) Months() (int, error) {
	switch c {
	case CycleMonthly:
		return 1, nil
	case CycleQuarterly:
		return 3, nil
	case CycleHalfYearly:
		return 6, nil
	case CycleYearly:
		return 12, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCycle, string(c))
}

// PeriodsPerYear is 12 / Months.
func (c Cycle) PeriodsPerYear() (int, error) {
	m, err := c.Months()
	if err != nil {
		return 0, err
	}
	return 12 / m, nil
}

// Index is the cycle-relative position of a period starting in the given
// month: the month itself for monthly, quarter 1-4, half 1-2, or 1 for yearly.
func (c Cycle) Index(p Period) int {
	m := int(p.Start.Month())
	switch c {
	case CycleMonthly:
		return m
	case CycleQuarterly:
		return (m-1)/3 + 1
	case CycleHalfYearly:
		return (m-1)/6 + 1
	default:
		return 1
	}
}

// =============================================================================
// SCHEDULE - Period calculator for a contract lifetime
// =============================================================================

// Schedule slices [Start, End] into consecutive periods of Cycle length.
// It is a pure value: the same inputs always produce the same periods.
type Schedule struct {
	Start TimePoint
	End   TimePoint
	Cycle Cycle
}

// Validate checks the range and the cycle.
func (s Schedule) Validate() error {
	if err := (Period{Start: s.Start, End: s.End}).Validate(); err != nil {
		return err
	}
	_, err := s.Cycle.Months()
	return err
}

// Periods yields every period of the schedule in order. Each period starts
// the day after the previous one ends; the last one is clamped to End.
// An invalid schedule yields nothing.
func (s Schedule) Periods() iter.Seq[Period] {
	return func(yield func(Period) bool) {
		months, err := s.Cycle.Months()
		if err != nil || s.End.Before(s.Start) {
			return
		}
		for cursor := s.Start; cursor.BeforeOrEqual(s.End); {
			end := cursor.AddMonths(months).AddDays(-1)
			if end.After(s.End) {
				end = s.End
			}
			if !yield(Period{Start: cursor, End: end}) {
				return
			}
			cursor = end.AddDays(1)
		}
	}
}

// Slice collects Periods into a slice.
func (s Schedule) Slice() []Period {
	var out []Period
	for p := range s.Periods() {
		out = append(out, p)
	}
	return out
}

// Elapsed returns the periods that have fully ended on or before ref.
func (s Schedule) Elapsed(ref TimePoint) []Period {
	var out []Period
	for p := range s.Periods() {
		if p.End.After(ref) {
			break
		}
		out = append(out, p)
	}
	return out
}

const daysPerYear = 365.25

// TotalPeriods is the divisor used for proration:
// round(periods_per_year * duration_days / 365.25), at least 1. It depends only
// on the schedule fields, so repeated runs always agree on it.
func (s Schedule) TotalPeriods() (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	perYear, _ := s.Cycle.PeriodsPerYear()
	years := float64(DaysBetween(s.Start, s.End)+1) / daysPerYear
	n := int(math.Round(float64(perYear) * years))
	if n < 1 {
		n = 1
	}
	return n, nil
}
