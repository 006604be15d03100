package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/checkin"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeUsers map[string]*user.User

func (f fakeUsers) Get(_ context.Context, hash string) (*user.User, error) {
	u, ok := f[hash]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return u, nil
}

func (f fakeUsers) Create(_ context.Context, u *user.User) error { f[u.Hash] = u; return nil }

func (f fakeUsers) UpdateGroup(_ context.Context, hash string, group lesson.GroupCode) error {
	u, ok := f[hash]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.Group = group
	return nil
}

func (f fakeUsers) ListGroups(_ context.Context) ([]lesson.GroupCode, error) { return nil, nil }

type fakeLessons map[string]*lesson.Lesson

func (f fakeLessons) Ensure(_ context.Context, l *lesson.Lesson) (string, error) {
	id := l.Fingerprint()
	l.ID = id
	f[id] = l
	return id, nil
}

func (f fakeLessons) GetByID(_ context.Context, id string) (*lesson.Lesson, error) {
	l, ok := f[id]
	if !ok {
		return nil, shared.ErrLessonNotFound
	}
	return l, nil
}

type fakeCheckIns map[string]*checkin.CheckIn

func (f fakeCheckIns) Get(_ context.Context, userHash, lessonID string) (*checkin.CheckIn, error) {
	c, ok := f[userHash+"/"+lessonID]
	if !ok {
		return nil, shared.ErrCheckInNotFound
	}
	return c, nil
}

func (f fakeCheckIns) Create(_ context.Context, c *checkin.CheckIn) error {
	f[c.UserHash+"/"+c.LessonID] = c
	return nil
}

func (f fakeCheckIns) Update(_ context.Context, c *checkin.CheckIn) error {
	f[c.UserHash+"/"+c.LessonID] = c
	return nil
}

type fakeSchedules struct {
	lessons []*lesson.Lesson
	err     error
}

func (f *fakeSchedules) Lessons(_ context.Context, _ lesson.GroupCode, _ time.Time) ([]*lesson.Lesson, error) {
	return f.lessons, f.err
}

// ─── tests ───────────────────────────────────────────────────────────────────

func testLesson(hour int) *lesson.Lesson {
	start := time.Date(2026, 9, 1, hour, 0, 0, 0, time.UTC)
	return &lesson.Lesson{
		Start:     start,
		End:       start.Add(2 * time.Hour),
		Locations: []lesson.LocationCode{"P527"},
		Name:      "Ohjelmoinnin perusteet",
		Groups:    []lesson.GroupCode{"TXM15S1"},
	}
}

func TestGetScheduleStampsIdentityAndAttendance(t *testing.T) {
	users := fakeUsers{"u1": {Hash: "u1", Group: "TXM15S1"}}
	lessons := fakeLessons{}
	checkins := fakeCheckIns{}

	first := testLesson(8)
	second := testLesson(10)
	schedules := &fakeSchedules{lessons: []*lesson.Lesson{first, second}}

	// The user already attended the morning lesson.
	checkins["u1/"+first.Fingerprint()] = &checkin.CheckIn{
		UserHash: "u1",
		LessonID: first.Fingerprint(),
		Location: "P527",
	}

	handler := NewGetScheduleHandler(users, schedules, lessons, checkins, nil)

	got, err := handler.Handle(context.Background(), GetScheduleQuery{UserHash: "u1", Date: first.Start})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, first.Fingerprint(), got[0].ID)
	assert.Equal(t, "P527", got[0].AttendedLocation)
	assert.Equal(t, second.Fingerprint(), got[1].ID)
	assert.Empty(t, got[1].AttendedLocation)

	// Serving the schedule persisted both lessons.
	assert.Len(t, lessons, 2)
}

func TestGetScheduleUserWithoutGroup(t *testing.T) {
	users := fakeUsers{"u1": {Hash: "u1"}}
	handler := NewGetScheduleHandler(users, &fakeSchedules{}, fakeLessons{}, fakeCheckIns{}, nil)

	got, err := handler.Handle(context.Background(), GetScheduleQuery{UserHash: "u1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetScheduleUnknownUser(t *testing.T) {
	handler := NewGetScheduleHandler(fakeUsers{}, &fakeSchedules{}, fakeLessons{}, fakeCheckIns{}, nil)

	_, err := handler.Handle(context.Background(), GetScheduleQuery{UserHash: "ghost"})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestGetScheduleValidatesQuery(t *testing.T) {
	handler := NewGetScheduleHandler(fakeUsers{}, &fakeSchedules{}, fakeLessons{}, fakeCheckIns{}, nil)

	_, err := handler.Handle(context.Background(), GetScheduleQuery{})
	assert.Error(t, err)
}

func TestGetScheduleFetchFailure(t *testing.T) {
	users := fakeUsers{"u1": {Hash: "u1", Group: "TXM15S1"}}
	schedules := &fakeSchedules{err: shared.ErrLukkaritUnavailable}
	handler := NewGetScheduleHandler(users, schedules, fakeLessons{}, fakeCheckIns{}, nil)

	_, err := handler.Handle(context.Background(), GetScheduleQuery{UserHash: "u1", Date: time.Now()})
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}
