// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/checkin"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SCHEDULE QUERY
// Returns a user's lessons for a day, each stamped with its persisted
// identity and the user's existing check-in location.
// ══════════════════════════════════════════════════════════════════════════════

// Schedules provides a group's lessons for a day.
type Schedules interface {
	Lessons(ctx context.Context, group lesson.GroupCode, day time.Time) ([]*lesson.Lesson, error)
}

// GetScheduleQuery identifies whose schedule and which day.
type GetScheduleQuery struct {
	// UserHash identifies the authenticated user.
	UserHash string

	// Date selects the day; zero means today.
	Date time.Time
}

// Validate validates the query.
func (q GetScheduleQuery) Validate() error {
	if q.UserHash == "" {
		return errors.New("get_schedule: user hash is required")
	}
	return nil
}

// GetScheduleHandler handles the GetScheduleQuery.
type GetScheduleHandler struct {
	users     user.Repository
	schedules Schedules
	lessons   lesson.Repository
	checkins  checkin.Repository
	logger    *logger.Logger
}

// NewGetScheduleHandler creates a new GetScheduleHandler.
func NewGetScheduleHandler(
	users user.Repository,
	schedules Schedules,
	lessons lesson.Repository,
	checkins checkin.Repository,
	log *logger.Logger,
) *GetScheduleHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetScheduleHandler{
		users:     users,
		schedules: schedules,
		lessons:   lessons,
		checkins:  checkins,
		logger:    log.With(logger.Component("get_schedule")),
	}
}

// Handle returns the day's lessons in chronological order. A user without a
// group has no timetable and gets an empty slice; so does an empty day.
// Every returned lesson is ensured in storage first, so its ID is always the
// persisted content hash.
func (h *GetScheduleHandler) Handle(ctx context.Context, q GetScheduleQuery) ([]*lesson.Lesson, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	date := q.Date
	if date.IsZero() {
		date = timeutil.Now()
	}

	u, err := h.users.Get(ctx, q.UserHash)
	if err != nil {
		return nil, fmt.Errorf("get_schedule: resolve user: %w", err)
	}
	if !u.HasGroup() {
		return []*lesson.Lesson{}, nil
	}

	lessons, err := h.schedules.Lessons(ctx, u.Group, date)
	if err != nil {
		return nil, fmt.Errorf("get_schedule: fetch timetable for %s: %w", u.Group, err)
	}

	for _, l := range lessons {
		id, err := h.lessons.Ensure(ctx, l)
		if err != nil {
			return nil, fmt.Errorf("get_schedule: ensure lesson: %w", err)
		}

		ci, err := h.checkins.Get(ctx, q.UserHash, id)
		switch {
		case err == nil:
			l.AttendedLocation = string(ci.Location)
		case errors.Is(err, shared.ErrCheckInNotFound):
			// Not checked in for this lesson.
		default:
			return nil, fmt.Errorf("get_schedule: lookup check-in: %w", err)
		}
	}

	h.logger.Debug("schedule served",
		logger.UserHash(q.UserHash),
		logger.GroupCode(string(u.Group)),
		logger.Day(timeutil.FormatDateStr(date)),
		logger.Int("lessons", len(lessons)))

	return lessons, nil
}
