package generic

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date used for periods and reference dates
// =============================================================================

// TimePoint is a calendar date. Billing and payroll periods are whole days,
// so the time-of-day is always normalized away.
type TimePoint struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf converts an instant to the calendar date it falls on in loc.
func DateOf(t time.Time, loc *time.Location) TimePoint {
	if loc != nil {
		t = t.In(loc)
	}
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return NewTimePoint(t.Year(), t.Month(), t.Day()), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }

// AddMonths moves n calendar months, clamping the day to the last day of the
// target month (Jan 31 + 1 month = Feb 28/29). time.AddDate would overflow
// into the following month instead.
func (tp TimePoint) AddMonths(n int) TimePoint {
	y, m, d := tp.Time.Date()
	total := int(m) - 1 + n
	y += total / 12
	total %= 12
	if total < 0 {
		total += 12
		y--
	}
	target := time.Month(total + 1)
	if last := EndOfMonth(y, target).Day(); d > last {
		d = last
	}
	return NewTimePoint(y, target, d)
}

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }
func (tp TimePoint) IsWeekend() bool {
	wd := tp.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
func (tp TimePoint) IsWorkday() bool { return !tp.IsWeekend() }

// IsLastDayOfMonth reports whether tp is the final calendar day of its month.
func (tp TimePoint) IsLastDayOfMonth() bool {
	return tp.Day() == EndOfMonth(tp.Year(), tp.Month()).Day()
}

func (tp TimePoint) String() string { return tp.Time.Format(dateLayout) }

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	return []byte(`"` + tp.String() + `"`), nil
}

func (tp *TimePoint) UnmarshalJSON(b []byte) error {
	parsed, err := ParseDate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween returns to - from in whole days.
func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

func StartOfMonth(year int, month time.Month) TimePoint { return NewTimePoint(year, month, 1) }

func EndOfMonth(year int, month time.Month) TimePoint {
	return TimePoint{Time: time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
}

// WorkdaysIn counts Monday-Friday dates in [from, to]. Holidays are not
// excluded.
func WorkdaysIn(p Period) int {
	n := 0
	for _, d := range p.Days() {
		if d.IsWorkday() {
			n++
		}
	}
	return n
}
