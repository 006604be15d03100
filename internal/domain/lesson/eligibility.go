package lesson

import "time"

// GraceMinutes is the flat pre-start check-in window: a lesson accepts
// check-ins up to 30 minutes before it starts.
const GraceMinutes = 30

// Eligible reports whether now falls inside the check-in window of the
// lesson. A lesson is eligible when it is currently ongoing (now strictly
// between start and end), or when it has not started yet and starts within
// the grace window. When a previous lesson exists the grace window shrinks to
// the gap between that lesson's end and this lesson's start, so the window
// never overlaps the tail of an earlier lesson.
func Eligible(now time.Time, l *Lesson, prev *Lesson) bool {
	after := now.After(l.Start)
	before := now.Before(l.End)

	// Lesson is currently ongoing.
	if after && before {
		return true
	}

	grace := GraceMinutes
	if prev != nil {
		if gap := minutesBetween(prev.End, l.Start); gap < grace {
			grace = gap
		}
	}

	if !after && minutesBetween(now, l.Start) <= grace {
		return true
	}

	return false
}

// FirstEligible scans the day's lessons in chronological order and returns
// the first one whose check-in window contains now, tracking the previously
// examined lesson for the grace computation. Returns nil when no lesson is
// eligible right now.
func FirstEligible(now time.Time, lessons []*Lesson) *Lesson {
	var prev *Lesson
	for _, l := range lessons {
		if Eligible(now, l, prev) {
			return l
		}
		prev = l
	}
	return nil
}

// minutesBetween returns whole minutes from earlier to later, truncated.
func minutesBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier) / time.Minute)
}
