// Package lukkarit implements the Lukkarit calendar scrape client.
// The calendar has no API: a per-session "basket" is primed with the group,
// then a printable day view is fetched and its markup sliced apart. The
// parser lives in this file, isolated from the transport and from business
// logic, so a markup change upstream has a localized blast radius.
package lukkarit

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

// Markup anchors of the print view. The parser fails loudly when one of
// these is missing instead of guessing - a silently garbled timetable is
// worse than a reported scrape failure.
const (
	dayMarker   = `<td class="cl-col nd">`
	dayEnd      = `</td>`
	eventMarker = `<div class="cl-event`
)

var (
	dayLabelRe  = regexp.MustCompile(`clDay="(\d{1,2}\.\d{1,2})\."`)
	timeRangeRe = regexp.MustCompile(`(?s)<dl class="cl-event-dl">(.*?)</dt>`)
	locationRe  = regexp.MustCompile(`<b>(.*?)</b>`)
)

// infoLineBreak separates the four informational lines of a lesson fragment:
// course name, course code, group list, teacher list.
const infoLineBreak = "<br/>"

// teacherLinePrefix is the label the calendar puts before the teacher list.
const teacherLinePrefix = "Henkilö(t):"

// dayBlock is one day column cut out of the print view.
type dayBlock struct {
	// label is the calendar day label in "dd.MM" form - the source omits
	// the year entirely.
	label string

	// index is the column position, used to offset from the first day.
	index int

	// fragments are the raw per-lesson markup chunks of the day.
	fragments []string
}

// ParsePrintView parses the printable calendar page into the lessons
// scheduled on the requested date.
//
// The year of every parsed date is resolved by combining the first day
// column's "dd.MM" label with the given year. This is a heuristic carried
// over from the source format and it is wrong across a year boundary (a
// December page scraped in January resolves to the wrong year); it is kept
// as-is rather than silently "fixed".
//
// A requested date that does not appear on the page is a normal "no classes"
// outcome and yields an empty slice. Missing markup anchors make the whole
// page fail loudly with shared.ErrLukkaritMarkup.
func ParsePrintView(body string, requested time.Time, year int) ([]*lesson.Lesson, error) {
	days, err := splitDays(body)
	if err != nil {
		return nil, err
	}

	// The first column anchors the whole page on the calendar.
	firstDay, err := timeutil.ParseFinnishDay(days[0].label, year)
	if err != nil {
		return nil, shared.WrapError("lukkarit", "Parse", shared.ErrInvalidFormat, "unparseable first day label", err)
	}

	wanted := timeutil.ToHelsinki(requested).Format("2.1")
	var match *dayBlock
	for i := range days {
		if normalizeDayLabel(days[i].label) == wanted {
			match = &days[i]
			break
		}
	}

	// Calendar empty on that day.
	if match == nil {
		return []*lesson.Lesson{}, nil
	}

	date := firstDay.AddDate(0, 0, match.index)

	lessons := make([]*lesson.Lesson, 0, len(match.fragments))
	for i, fragment := range match.fragments {
		l, err := parseLessonFragment(fragment, date)
		if err != nil {
			return nil, shared.WrapError("lukkarit", "Parse", shared.ErrInvalidFormat,
				fmt.Sprintf("lesson fragment %d on %s", i, timeutil.FormatDateStr(date)), err)
		}
		lessons = append(lessons, l)
	}

	return lessons, nil
}

// splitDays cuts the page into day columns on the fixed day marker.
func splitDays(body string) ([]dayBlock, error) {
	parts := strings.Split(body, dayMarker)
	if len(parts) < 2 {
		return nil, shared.NewDomainError("lukkarit", "Parse", shared.ErrInvalidFormat,
			"day marker not found in print view")
	}

	days := make([]dayBlock, 0, len(parts)-1)
	for i, part := range parts[1:] {
		if idx := strings.Index(part, dayEnd); idx >= 0 {
			part = part[:idx]
		}

		m := dayLabelRe.FindStringSubmatch(part)
		if m == nil {
			return nil, shared.NewDomainError("lukkarit", "Parse", shared.ErrInvalidFormat,
				fmt.Sprintf("day column %d has no clDay label", i))
		}

		fragments := strings.Split(part, eventMarker)[1:]

		days = append(days, dayBlock{
			label:     m[1],
			index:     i,
			fragments: fragments,
		})
	}

	return days, nil
}

// normalizeDayLabel strips leading zeros so "05.09" and "5.9" compare equal.
func normalizeDayLabel(label string) string {
	parts := strings.SplitN(label, ".", 2)
	if len(parts) != 2 {
		return label
	}
	return strings.TrimLeft(parts[0], "0") + "." + strings.TrimLeft(parts[1], "0")
}

// parseLessonFragment extracts one lesson from its markup chunk.
func parseLessonFragment(fragment string, date time.Time) (*lesson.Lesson, error) {
	start, end, err := parseTimeRange(fragment, date)
	if err != nil {
		return nil, err
	}

	locations, err := parseLocations(fragment)
	if err != nil {
		return nil, err
	}

	// Info lines are the segments between adjacent <br/> breaks; the text
	// before the first break and after the last is markup, not data.
	segments := strings.Split(fragment, infoLineBreak)
	if len(segments) < 6 {
		return nil, fmt.Errorf("expected 4 info lines, found %d", max(0, len(segments)-2))
	}
	info := segments[1 : len(segments)-1]

	code := strings.TrimSpace(strings.ReplaceAll(info[1], "<p>", ""))
	name := strings.TrimSpace(strings.ReplaceAll(info[0], code, ""))

	groups := make([]lesson.GroupCode, 0)
	for _, g := range strings.Split(info[2], ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, lesson.GroupCode(g))
		}
	}

	teacherLine := strings.ReplaceAll(info[3], teacherLinePrefix, "")
	teachers := make([]string, 0)
	for _, t := range strings.Split(teacherLine, ",") {
		if t = strings.TrimSpace(t); t != "" {
			teachers = append(teachers, t)
		}
	}

	l := &lesson.Lesson{
		Start:     start,
		End:       end,
		Locations: locations,
		Code:      code,
		Name:      name,
		Groups:    groups,
		Teachers:  teachers,
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}

	return l, nil
}

// parseTimeRange extracts the "HH:mm - HH:mm" range and composes it with the
// calendar date.
func parseTimeRange(fragment string, date time.Time) (time.Time, time.Time, error) {
	m := timeRangeRe.FindStringSubmatch(fragment)
	if m == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("time range anchor not found")
	}

	dtParts := strings.Split(m[1], "<dt>")
	if len(dtParts) < 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("time range has no <dt> cell")
	}

	clocks := strings.Split(dtParts[1], "-")
	if len(clocks) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("time range %q is not two clock values", dtParts[1])
	}

	start, err := timeutil.CombineDateClock(date, clocks[0])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := timeutil.CombineDateClock(date, clocks[1])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	return start, end, nil
}

// parseLocations extracts the semicolon-separated location codes, trimming
// the trailing qualifier that follows a dash (e.g. "P527-AV" -> "P527").
func parseLocations(fragment string) ([]lesson.LocationCode, error) {
	m := locationRe.FindStringSubmatch(fragment)
	if m == nil {
		return nil, fmt.Errorf("location anchor not found")
	}

	codes := make([]lesson.LocationCode, 0)
	for _, raw := range strings.Split(m[1], ";") {
		code := strings.TrimSpace(strings.SplitN(raw, "-", 2)[0])
		if code != "" {
			codes = append(codes, lesson.LocationCode(code))
		}
	}

	if len(codes) == 0 {
		return nil, fmt.Errorf("location cell %q has no codes", m[1])
	}

	return codes, nil
}
