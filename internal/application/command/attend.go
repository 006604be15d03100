package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/checkin"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/geo"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/slab"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTEND COMMAND
// Validates and records physical attendance: eligibility window, location
// match, geofence distance, then the check-in write under one transaction.
// ══════════════════════════════════════════════════════════════════════════════

// Outcome identifies which stage of the attendance pipeline terminated the
// attempt. Every value is a meaningful user-facing state, not an error.
type Outcome string

const (
	// OutcomeCheckedIn - a new check-in row was created.
	OutcomeCheckedIn Outcome = "checked_in"

	// OutcomeUpdated - an existing check-in was overwritten after the
	// caller confirmed the update.
	OutcomeUpdated Outcome = "updated"

	// OutcomeNoEligibleLesson - no lesson's check-in window contains now
	// (also returned when the user has no group).
	OutcomeNoEligibleLesson Outcome = "no_eligible_lesson"

	// OutcomeLocationMismatch - the check-in point's location is not among
	// the lesson's valid locations and no override was asserted.
	OutcomeLocationMismatch Outcome = "location_mismatch"

	// OutcomeOutOfRange - the reported position is too far from the
	// check-in point.
	OutcomeOutOfRange Outcome = "out_of_range"

	// OutcomeUpdateRequired - a check-in for this (user, lesson) already
	// exists and the caller has not confirmed overwriting it.
	OutcomeUpdateRequired Outcome = "update_required"
)

// Success reports whether the outcome recorded attendance.
func (o Outcome) Success() bool {
	return o == OutcomeCheckedIn || o == OutcomeUpdated
}

// AttendCommand contains the data for one attendance attempt.
type AttendCommand struct {
	// UserHash identifies the authenticated user.
	UserHash string

	// SlabID is the check-in point the user is standing at.
	SlabID string

	// Coordinates is the device-reported position.
	Coordinates geo.Coordinates

	// ConfirmUpdate allows overwriting an existing check-in for the same
	// lesson.
	ConfirmUpdate bool

	// ConfirmOverride bypasses the location-match requirement.
	ConfirmOverride bool

	// Now is the evaluation instant; zero means the current wall clock.
	Now time.Time
}

// Validate validates the command.
func (c AttendCommand) Validate() error {
	if c.UserHash == "" {
		return errors.New("attend: user hash is required")
	}
	if c.SlabID == "" {
		return errors.New("attend: slab id is required")
	}
	return nil
}

// AttendResult is the terminal state of an attendance attempt. Which fields
// carry data depends on the outcome.
type AttendResult struct {
	Outcome Outcome

	// Lesson is the eligible lesson, nil for OutcomeNoEligibleLesson.
	Lesson *lesson.Lesson

	// DistanceMeters is the computed ground distance to the check-in
	// point. Set once the pipeline reaches the distance stage.
	DistanceMeters float64

	// ExistingLocation is the prior check-in location, set for
	// OutcomeUpdateRequired so the caller can show it in the prompt.
	ExistingLocation lesson.LocationCode

	// CheckIn is the persisted ledger row on success.
	CheckIn *checkin.CheckIn
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AttendHandler handles the AttendCommand.
type AttendHandler struct {
	uow       UnitOfWork
	schedules Schedules
	users     user.Repository
	slabs     slab.Repository
	checkins  checkin.Repository
	logger    *logger.Logger
}

// NewAttendHandler creates a new AttendHandler. The users, slabs and
// checkins repositories are pool-backed and used for the read stages; all
// writes happen inside the unit of work.
func NewAttendHandler(
	uow UnitOfWork,
	schedules Schedules,
	users user.Repository,
	slabs slab.Repository,
	checkins checkin.Repository,
	log *logger.Logger,
) *AttendHandler {
	if log == nil {
		log = logger.Default()
	}
	return &AttendHandler{
		uow:       uow,
		schedules: schedules,
		users:     users,
		slabs:     slabs,
		checkins:  checkins,
		logger:    log.With(logger.Component("attend")),
	}
}

// Handle executes the attendance pipeline. Each validation stage is a
// possible terminal exit carried in the result; only infrastructure and
// misconfiguration failures come back as errors. An unknown slab is caller
// misconfiguration and therefore an error, not an outcome.
func (h *AttendHandler) Handle(ctx context.Context, cmd AttendCommand) (*AttendResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := cmd.Now
	if now.IsZero() {
		now = timeutil.Now()
	}

	sl, err := h.slabs.Get(ctx, cmd.SlabID)
	if err != nil {
		return nil, fmt.Errorf("attend: resolve slab %s: %w", cmd.SlabID, err)
	}

	u, err := h.users.Get(ctx, cmd.UserHash)
	if err != nil {
		return nil, fmt.Errorf("attend: resolve user: %w", err)
	}

	// Without a group there is no timetable, so nothing can be eligible.
	if !u.HasGroup() {
		return h.done(cmd, &AttendResult{Outcome: OutcomeNoEligibleLesson}), nil
	}

	lessons, err := h.schedules.Lessons(ctx, u.Group, now)
	if err != nil {
		return nil, fmt.Errorf("attend: fetch schedule for %s: %w", u.Group, err)
	}

	eligible := lesson.FirstEligible(now, lessons)
	if eligible == nil {
		return h.done(cmd, &AttendResult{Outcome: OutcomeNoEligibleLesson}), nil
	}

	if !eligible.HasLocation(sl.Location) && !cmd.ConfirmOverride {
		return h.done(cmd, &AttendResult{
			Outcome: OutcomeLocationMismatch,
			Lesson:  eligible,
		}), nil
	}

	distance := geo.DistanceMeters(cmd.Coordinates, sl.Coordinates)
	if distance > geo.MaxCheckInDistanceMeters {
		return h.done(cmd, &AttendResult{
			Outcome:        OutcomeOutOfRange,
			Lesson:         eligible,
			DistanceMeters: distance,
		}), nil
	}

	result := &AttendResult{
		Lesson:         eligible,
		DistanceMeters: distance,
	}

	err = h.uow.WithinTx(ctx, func(r Repos) error {
		lessonID, err := r.Lessons().Ensure(ctx, eligible)
		if err != nil {
			return fmt.Errorf("ensure lesson: %w", err)
		}

		existing, err := r.CheckIns().Get(ctx, cmd.UserHash, lessonID)
		switch {
		case err == nil:
			if !cmd.ConfirmUpdate {
				result.Outcome = OutcomeUpdateRequired
				result.ExistingLocation = existing.Location
				return nil
			}

			existing.Group = u.Group
			existing.Location = sl.Location
			existing.UpdatedAt = now
			if err := r.CheckIns().Update(ctx, existing); err != nil {
				return fmt.Errorf("update check-in: %w", err)
			}
			result.Outcome = OutcomeUpdated
			result.CheckIn = existing
			return nil

		case errors.Is(err, shared.ErrCheckInNotFound):
			ci := &checkin.CheckIn{
				UserHash:  cmd.UserHash,
				LessonID:  lessonID,
				Group:     u.Group,
				Location:  sl.Location,
				CreatedAt: now,
				UpdatedAt: now,
			}
			// A concurrent attempt may win the insert; the uniqueness
			// constraint turns that into ErrCheckInExists, handled
			// after rollback.
			if err := r.CheckIns().Create(ctx, ci); err != nil {
				return err
			}
			result.Outcome = OutcomeCheckedIn
			result.CheckIn = ci
			return nil

		default:
			return fmt.Errorf("lookup check-in: %w", err)
		}
	})
	if err != nil {
		if errors.Is(err, shared.ErrCheckInExists) {
			// Lost the insert race. The row that beat us is the
			// existing record the caller now has to confirm over.
			race := &AttendResult{
				Outcome: OutcomeUpdateRequired,
				Lesson:  eligible,
			}
			if prior, lookupErr := h.checkins.Get(ctx, cmd.UserHash, eligible.Fingerprint()); lookupErr == nil {
				race.ExistingLocation = prior.Location
			}
			return h.done(cmd, race), nil
		}
		return nil, fmt.Errorf("attend: %w", err)
	}

	return h.done(cmd, result), nil
}

// done logs the terminal outcome and returns the result unchanged.
func (h *AttendHandler) done(cmd AttendCommand, result *AttendResult) *AttendResult {
	fields := []logger.Field{
		logger.UserHash(cmd.UserHash),
		logger.SlabID(cmd.SlabID),
		logger.Outcome(string(result.Outcome)),
	}
	if result.Lesson != nil {
		fields = append(fields, logger.LessonID(result.Lesson.ID))
	}
	h.logger.Info("attendance attempt finished", fields...)
	return result
}
