// Package lesson contains the domain model for scheduled class occurrences.
// This is the core of the attendance engine - no external dependencies here.
package lesson

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// LocationCode identifies a room or campus location (e.g. "P527").
// The same codes appear on lessons and on check-in points.
type LocationCode string

// IsValid checks that the location code is non-empty.
func (c LocationCode) IsValid() bool {
	return strings.TrimSpace(string(c)) != ""
}

// String returns the string representation of the location code.
func (c LocationCode) String() string {
	return string(c)
}

// GroupCode identifies an administrative student group (e.g. "TXM15S1").
type GroupCode string

// IsValid checks the group code is plausible.
func (g GroupCode) IsValid() bool {
	s := string(g)
	return len(s) >= 2 && len(s) <= 30 && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation of the group code.
func (g GroupCode) String() string {
	return string(g)
}

// Lesson is one scheduled class occurrence for a group, as ingested from the
// Lukkarit calendar. Lessons are content-addressed: the ID is a hash of the
// content, so a lesson is never mutated after creation - changed content is
// simply a different lesson.
type Lesson struct {
	// ID is the persisted content hash. Empty until the lesson has been
	// ensured in storage.
	ID string

	Start time.Time
	End   time.Time

	// Locations are the valid room codes for this occurrence.
	Locations []LocationCode

	// Address is the postal address of the campus building.
	Address string

	// Code is the course code (e.g. "TX00AB12").
	Code string

	// Name is the course name with the code substring stripped.
	Name string

	// Groups are the group codes this occurrence is scheduled for.
	Groups []GroupCode

	// Teachers are the teacher names as listed by the calendar.
	Teachers []string

	// AttendedLocation is the location code of the caller's existing
	// check-in for this lesson, empty when not checked in. Populated only
	// by schedule queries; never persisted on the lesson itself.
	AttendedLocation string
}

// Validate checks the structural invariants of an ingested lesson.
func (l *Lesson) Validate() error {
	if l.Start.IsZero() || l.End.IsZero() {
		return fmt.Errorf("lesson: start and end are required")
	}
	if !l.End.After(l.Start) {
		return fmt.Errorf("lesson: end %s is not after start %s", l.End, l.Start)
	}
	if len(l.Locations) == 0 {
		return fmt.Errorf("lesson: at least one location is required")
	}
	if l.Name == "" {
		return fmt.Errorf("lesson: name is required")
	}
	return nil
}

// HasLocation reports whether code is among the lesson's valid locations.
func (l *Lesson) HasLocation(code LocationCode) bool {
	for _, c := range l.Locations {
		if c == code {
			return true
		}
	}
	return false
}

// Fingerprint derives the stable content-addressed identity of the lesson:
// sha256 over start, joined locations, name and joined groups. Two
// ingestions of identical timetable content always produce the same
// fingerprint, which is what makes re-ingestion idempotent.
// Start is rendered in UTC so the hash does not depend on the wall-clock
// representation the scraper happened to produce.
func (l *Lesson) Fingerprint() string {
	locations := make([]string, len(l.Locations))
	for i, c := range l.Locations {
		locations[i] = string(c)
	}
	groups := make([]string, len(l.Groups))
	for i, g := range l.Groups {
		groups[i] = string(g)
	}

	id := fmt.Sprintf("%s-%s-%s-%s",
		l.Start.UTC().Format(time.RFC3339),
		strings.Join(locations, ","),
		l.Name,
		strings.Join(groups, ","),
	)

	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
