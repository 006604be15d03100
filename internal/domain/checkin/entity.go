// Package checkin contains the attendance ledger domain model.
// A check-in is the record that a user physically attended a lesson. The
// ledger holds at most one row per (user, lesson) pair; a confirmed
// re-check-in overwrites the row in place and nothing in the engine ever
// deletes one.
package checkin

import (
	"context"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
)

// CheckIn is one attendance ledger entry.
type CheckIn struct {
	ID       string
	UserHash string
	LessonID string

	// Group is the group the user belonged to at check-in time.
	Group lesson.GroupCode

	// Location is the location code of the slab used to check in.
	Location lesson.LocationCode

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository persists the attendance ledger.
type Repository interface {
	// Get returns the check-in for a (user, lesson) pair.
	// Returns shared.ErrCheckInNotFound when the pair has no row.
	Get(ctx context.Context, userHash, lessonID string) (*CheckIn, error)

	// Create inserts a new ledger row for the pair. When a concurrent
	// request already created one, the uniqueness constraint on
	// (user, lesson) fires and Create returns shared.ErrCheckInExists -
	// callers treat that as "existing record, needs confirmation", never
	// as a fatal error.
	Create(ctx context.Context, c *CheckIn) error

	// Update overwrites group and location of the existing row for the
	// pair. Returns shared.ErrCheckInNotFound when there is nothing to
	// update.
	Update(ctx context.Context, c *CheckIn) error
}
