package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/checkin"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/geo"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/slab"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
)

var (
	testDay    = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	campusSpot = geo.Coordinates{Lat: 60.2241, Long: 24.7578}
)

func testLesson() *lesson.Lesson {
	return &lesson.Lesson{
		Start:     testDay.Add(10 * time.Hour),
		End:       testDay.Add(12 * time.Hour),
		Locations: []lesson.LocationCode{"P527"},
		Code:      "TX00AB12",
		Name:      "Ohjelmoinnin perusteet",
		Groups:    []lesson.GroupCode{"TXM15S1"},
	}
}

// attendFixture wires an AttendHandler over in-memory fakes.
type attendFixture struct {
	store     *memStore
	schedules *staticSchedules
	handler   *AttendHandler
}

func newAttendFixture(lessons ...*lesson.Lesson) *attendFixture {
	store := newMemStore()
	store.users["u1"] = &user.User{Hash: "u1", Group: "TXM15S1"}
	store.slabs["s1"] = &slab.Slab{ID: "s1", Coordinates: campusSpot, Location: "P527"}

	schedules := &staticSchedules{lessons: lessons}
	handler := NewAttendHandler(
		&memUnitOfWork{store: store},
		schedules,
		store.Users(),
		store.Slabs(),
		store.CheckIns(),
		nil,
	)

	return &attendFixture{store: store, schedules: schedules, handler: handler}
}

func attendCmd() AttendCommand {
	return AttendCommand{
		UserHash:    "u1",
		SlabID:      "s1",
		Coordinates: campusSpot,
		Now:         testDay.Add(10*time.Hour + 30*time.Minute),
	}
}

func TestAttendChecksIn(t *testing.T) {
	f := newAttendFixture(testLesson())

	result, err := f.handler.Handle(context.Background(), attendCmd())
	require.NoError(t, err)

	assert.Equal(t, OutcomeCheckedIn, result.Outcome)
	assert.True(t, result.Outcome.Success())
	require.NotNil(t, result.CheckIn)
	assert.Equal(t, "u1", result.CheckIn.UserHash)
	assert.Equal(t, lesson.LocationCode("P527"), result.CheckIn.Location)
	assert.Equal(t, lesson.GroupCode("TXM15S1"), result.CheckIn.Group)
	require.NotNil(t, result.Lesson)
	assert.Equal(t, result.Lesson.Fingerprint(), result.CheckIn.LessonID)

	// The lesson row exists after the transaction.
	_, err = f.store.Lessons().GetByID(context.Background(), result.CheckIn.LessonID)
	assert.NoError(t, err)
}

func TestAttendValidatesCommand(t *testing.T) {
	f := newAttendFixture(testLesson())

	_, err := f.handler.Handle(context.Background(), AttendCommand{SlabID: "s1"})
	assert.Error(t, err)

	_, err = f.handler.Handle(context.Background(), AttendCommand{UserHash: "u1"})
	assert.Error(t, err)
}

func TestAttendUnknownSlabIsFatal(t *testing.T) {
	f := newAttendFixture(testLesson())

	cmd := attendCmd()
	cmd.SlabID = "nope"

	_, err := f.handler.Handle(context.Background(), cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrSlabNotFound)
}

func TestAttendNoEligibleLesson(t *testing.T) {
	f := newAttendFixture(testLesson())

	cmd := attendCmd()
	cmd.Now = testDay.Add(15 * time.Hour)

	result, err := f.handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoEligibleLesson, result.Outcome)
	assert.Nil(t, result.Lesson)
	assert.False(t, result.Outcome.Success())
}

func TestAttendUserWithoutGroup(t *testing.T) {
	f := newAttendFixture(testLesson())
	f.store.users["u1"].Group = ""

	result, err := f.handler.Handle(context.Background(), attendCmd())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoEligibleLesson, result.Outcome)
	assert.Empty(t, f.store.checkins)
}

func TestAttendLocationMismatch(t *testing.T) {
	f := newAttendFixture(testLesson())
	f.store.slabs["s1"].Location = "P100"

	result, err := f.handler.Handle(context.Background(), attendCmd())
	require.NoError(t, err)
	assert.Equal(t, OutcomeLocationMismatch, result.Outcome)
	require.NotNil(t, result.Lesson)
	assert.Empty(t, f.store.checkins)
}

func TestAttendLocationOverride(t *testing.T) {
	f := newAttendFixture(testLesson())
	f.store.slabs["s1"].Location = "P100"

	cmd := attendCmd()
	cmd.ConfirmOverride = true

	result, err := f.handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCheckedIn, result.Outcome)

	// The ledger records the slab's location, not the lesson's.
	assert.Equal(t, lesson.LocationCode("P100"), result.CheckIn.Location)
}

func TestAttendOutOfRange(t *testing.T) {
	f := newAttendFixture(testLesson())

	cmd := attendCmd()
	cmd.Coordinates = geo.Coordinates{Lat: campusSpot.Lat + 0.01, Long: campusSpot.Long}

	result, err := f.handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOutOfRange, result.Outcome)
	assert.Greater(t, result.DistanceMeters, geo.MaxCheckInDistanceMeters)
	assert.Empty(t, f.store.checkins)
}

func TestAttendUpdateRequired(t *testing.T) {
	f := newAttendFixture(testLesson())

	first, err := f.handler.Handle(context.Background(), attendCmd())
	require.NoError(t, err)
	require.Equal(t, OutcomeCheckedIn, first.Outcome)

	// Second attempt without confirmation surfaces the existing row.
	second, err := f.handler.Handle(context.Background(), attendCmd())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdateRequired, second.Outcome)
	assert.Equal(t, lesson.LocationCode("P527"), second.ExistingLocation)
	assert.Nil(t, second.CheckIn)
}

func TestAttendConfirmedUpdate(t *testing.T) {
	f := newAttendFixture(testLesson())

	first, err := f.handler.Handle(context.Background(), attendCmd())
	require.NoError(t, err)
	require.Equal(t, OutcomeCheckedIn, first.Outcome)

	cmd := attendCmd()
	cmd.ConfirmUpdate = true
	cmd.Now = cmd.Now.Add(30 * time.Minute)

	second, err := f.handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, second.Outcome)
	assert.True(t, second.Outcome.Success())
	require.NotNil(t, second.CheckIn)
	assert.Equal(t, cmd.Now, second.CheckIn.UpdatedAt)
	assert.Equal(t, first.CheckIn.CreatedAt, second.CheckIn.CreatedAt)

	// Still exactly one ledger row for the pair.
	assert.Len(t, f.store.checkins, 1)
}

func TestAttendLostInsertRace(t *testing.T) {
	f := newAttendFixture(testLesson())

	// The competing request's row is already committed and visible to
	// the pool-backed lookup, but this request's transactional snapshot
	// predates it: the in-tx Get misses and the insert hits the
	// uniqueness constraint.
	winner := &checkin.CheckIn{
		UserHash: "u1",
		LessonID: testLesson().Fingerprint(),
		Group:    "TXM15S1",
		Location: "P601",
	}
	f.store.checkins[checkInKey(winner.UserHash, winner.LessonID)] = winner
	f.store.missNextCheckInGet = true
	f.store.failNextCheckInCreate = true

	result, err := f.handler.Handle(context.Background(), attendCmd())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdateRequired, result.Outcome)
	assert.Equal(t, lesson.LocationCode("P601"), result.ExistingLocation)
}

func TestAttendScheduleFetchFailureIsFatal(t *testing.T) {
	f := newAttendFixture(testLesson())
	f.schedules.err = shared.ErrLukkaritUnavailable

	_, err := f.handler.Handle(context.Background(), attendCmd())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrServiceUnavailable))
}
