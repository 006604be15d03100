// Package timeutil provides timezone utilities for the Helsinki timezone.
// All Metropolia campuses live in Europe/Helsinki, and the Lukkarit calendar
// publishes wall-clock times in it, so every schedule computation is done here.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// HelsinkiTZ is the campus timezone. Finland observes DST, so the zone is
// loaded from the tz database; the fixed EET offset is only a fallback for
// stripped-down containers without tzdata.
var HelsinkiTZ = loadHelsinki()

func loadHelsinki() *time.Location {
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		return time.FixedZone("EET", 2*60*60)
	}
	return loc
}

// Now returns the current time in the Helsinki timezone.
func Now() time.Time {
	return time.Now().In(HelsinkiTZ)
}

// ToHelsinki converts a time to the Helsinki timezone.
func ToHelsinki(t time.Time) time.Time {
	return t.In(HelsinkiTZ)
}

// Date creates a time in the Helsinki timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, HelsinkiTZ)
}

// StartOfDay returns the start of the day (00:00:00) in the Helsinki timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToHelsinki(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, HelsinkiTZ)
}

// IsSameDay checks if two times are on the same day in the Helsinki timezone.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := ToHelsinki(t1), ToHelsinki(t2)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// MinutesBetween returns the number of whole minutes from earlier to later.
// Negative when later precedes earlier, matching integer truncation.
func MinutesBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier) / time.Minute)
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD) used in API
	// parameters and the Lukkarit print-view query string.
	FormatDate = "2006-01-02"
	// FormatClock is the wall-clock format (HH:MM) used in lesson time ranges.
	FormatClock = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatFinnishDay is the day label format used by the calendar day
	// markers ("dd.MM." - no year).
	FormatFinnishDay = "02.01."
	// FormatFinnishDate is the full Finnish date format (DD.MM.YYYY).
	FormatFinnishDate = "02.01.2006"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in Helsinki time.
func FormatDateStr(t time.Time) string {
	return ToHelsinki(t).Format(FormatDate)
}

// FormatClockStr formats a time as a clock string (HH:MM) in Helsinki time.
func FormatClockStr(t time.Time) string {
	return ToHelsinki(t).Format(FormatClock)
}

// FormatFinnishDayStr formats a time as a calendar day label (dd.MM.).
func FormatFinnishDayStr(t time.Time) string {
	return ToHelsinki(t).Format(FormatFinnishDay)
}

// ParseDate parses a date string (YYYY-MM-DD) in the Helsinki timezone.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, HelsinkiTZ)
}

// ParseFinnishDay parses a "dd.MM." day label against the given year.
// The calendar omits the year from day labels, so the caller has to supply
// one; near a year boundary the supplied year may simply be wrong.
func ParseFinnishDay(label string, year int) (time.Time, error) {
	label = strings.TrimSuffix(strings.TrimSpace(label), ".")
	// The lenient layout accepts both "5.9" and "05.09" labels.
	t, err := time.ParseInLocation("2.1.2006", fmt.Sprintf("%s.%d", label, year), HelsinkiTZ)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day label %q: %w", label, err)
	}
	return t, nil
}

// CombineDateClock combines a calendar date with an HH:MM wall-clock value
// into a single instant in the Helsinki timezone.
func CombineDateClock(date time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse(FormatClock, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	local := ToHelsinki(date)
	return time.Date(local.Year(), local.Month(), local.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, HelsinkiTZ), nil
}
