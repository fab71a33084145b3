package generic_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/obligation-engine/generic"
)

func TestIsLastDayOfMonth(t *testing.T) {
	assert.True(t, date(2025, time.March, 31).IsLastDayOfMonth())
	assert.True(t, date(2025, time.February, 28).IsLastDayOfMonth())
	assert.False(t, date(2024, time.February, 28).IsLastDayOfMonth(), "2024 is a leap year")
	assert.True(t, date(2024, time.February, 29).IsLastDayOfMonth())
	assert.False(t, date(2025, time.March, 15).IsLastDayOfMonth())
}

func TestWorkdaysIn(t *testing.T) {
	march := generic.Period{Start: date(2025, time.March, 1), End: date(2025, time.March, 31)}
	assert.Equal(t, 21, generic.WorkdaysIn(march))

	weekend := generic.Period{Start: date(2025, time.March, 1), End: date(2025, time.March, 2)}
	assert.Equal(t, 0, generic.WorkdaysIn(weekend))
}

func TestDateOf_UsesLocation(t *testing.T) {
	// GIVEN: 20:00 UTC on March 30
	// WHEN: Read in Asia/Kolkata (UTC+05:30)
	// THEN: The local calendar date is already March 31

	kolkata := time.FixedZone("IST", 5*3600+30*60)
	instant := time.Date(2025, time.March, 30, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2025-03-31", generic.DateOf(instant, kolkata).String())
	assert.Equal(t, "2025-03-30", generic.DateOf(instant, time.UTC).String())
}

func TestExecutionContext_Today(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+30*60)

	exec := generic.ExecutionContext{
		Clock:    generic.FixedClock{At: time.Date(2025, time.March, 30, 19, 0, 0, 0, time.UTC)},
		Location: kolkata,
	}
	assert.Equal(t, "2025-03-31", exec.Today().String())
	assert.Equal(t, int32(2), exec.Precision())

	three := int32(3)
	exec.CurrencyPrecision = &three
	assert.Equal(t, int32(3), exec.Precision())

	zero := int32(0)
	exec.CurrencyPrecision = &zero
	assert.Equal(t, int32(0), exec.Precision())
}

func TestTimePoint_JSON(t *testing.T) {
	var got struct {
		Date generic.TimePoint `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-07-04"}`), &got))
	assert.Equal(t, "2025-07-04", got.Date.String())

	b, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-07-04"}`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"date":"04/07/2025"}`), &got))
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 364, generic.DaysBetween(date(2025, time.January, 1), date(2025, time.December, 31)))
	assert.Equal(t, 0, generic.DaysBetween(date(2025, time.January, 1), date(2025, time.January, 1)))
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, "0.13", generic.RoundMoney(generic.MustParseMoney("0.125"), 2).String())
	assert.Equal(t, "-0.13", generic.RoundMoney(generic.MustParseMoney("-0.125"), 2).String())
	assert.Equal(t, "0.01", generic.SmallestUnit(2).String())
}
