package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFinnishDay(t *testing.T) {
	day, err := ParseFinnishDay("01.09.", 2026)
	assert.NoError(t, err)
	assert.Equal(t, 2026, day.Year())
	assert.Equal(t, time.September, day.Month())
	assert.Equal(t, 1, day.Day())

	// The calendar sometimes drops leading zeros.
	day, err = ParseFinnishDay("1.9", 2026)
	assert.NoError(t, err)
	assert.Equal(t, 1, day.Day())
	assert.Equal(t, time.September, day.Month())

	_, err = ParseFinnishDay("not a day", 2026)
	assert.Error(t, err)
}

func TestCombineDateClock(t *testing.T) {
	date := Date(2026, 9, 1)

	got, err := CombineDateClock(date, "10:15")
	assert.NoError(t, err)
	assert.Equal(t, 10, got.Hour())
	assert.Equal(t, 15, got.Minute())
	assert.Equal(t, 1, got.Day())
	assert.Equal(t, HelsinkiTZ, got.Location())

	got, err = CombineDateClock(date, " 8:00 ")
	assert.NoError(t, err)
	assert.Equal(t, 8, got.Hour())

	_, err = CombineDateClock(date, "25:99")
	assert.Error(t, err)
}

func TestIsSameDay(t *testing.T) {
	morning := time.Date(2026, 9, 1, 8, 0, 0, 0, HelsinkiTZ)
	evening := time.Date(2026, 9, 1, 23, 0, 0, 0, HelsinkiTZ)
	nextDay := time.Date(2026, 9, 2, 0, 30, 0, 0, HelsinkiTZ)

	assert.True(t, IsSameDay(morning, evening))
	assert.False(t, IsSameDay(evening, nextDay))

	// A UTC instant late on Sep 1 is already Sep 2 in Helsinki.
	lateUTC := time.Date(2026, 9, 1, 23, 0, 0, 0, time.UTC)
	assert.True(t, IsSameDay(lateUTC, nextDay))
}

func TestMinutesBetween(t *testing.T) {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 30, MinutesBetween(base, base.Add(30*time.Minute)))
	assert.Equal(t, -30, MinutesBetween(base.Add(30*time.Minute), base))
	assert.Equal(t, 0, MinutesBetween(base, base.Add(59*time.Second)))
}

func TestFormatters(t *testing.T) {
	instant := time.Date(2026, 9, 1, 14, 5, 0, 0, HelsinkiTZ)

	assert.Equal(t, "2026-09-01", FormatDateStr(instant))
	assert.Equal(t, "14:05", FormatClockStr(instant))
	assert.Equal(t, "01.09.", FormatFinnishDayStr(instant))
}
