package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/token"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
)

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeUsers struct {
	groups []lesson.GroupCode
	err    error
}

func (f *fakeUsers) Get(_ context.Context, _ string) (*user.User, error) {
	return nil, shared.ErrUserNotFound
}
func (f *fakeUsers) Create(_ context.Context, _ *user.User) error { return nil }
func (f *fakeUsers) UpdateGroup(_ context.Context, _ string, _ lesson.GroupCode) error {
	return nil
}
func (f *fakeUsers) ListGroups(_ context.Context) ([]lesson.GroupCode, error) {
	return f.groups, f.err
}

type fakeScheduleSource struct {
	calls []lesson.GroupCode
	fail  map[lesson.GroupCode]error
}

func (f *fakeScheduleSource) Lessons(_ context.Context, group lesson.GroupCode, _ time.Time) ([]*lesson.Lesson, error) {
	f.calls = append(f.calls, group)
	if err := f.fail[group]; err != nil {
		return nil, err
	}
	return []*lesson.Lesson{}, nil
}

type fakeLocker struct {
	denied   bool
	err      error
	locked   int
	unlocked int
}

func (f *fakeLocker) TryLock(_ context.Context, _ string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.denied {
		return false, nil
	}
	f.locked++
	return true, nil
}

func (f *fakeLocker) Unlock(_ context.Context, _ string) error {
	f.unlocked++
	return nil
}

type fakeTokens struct {
	deleted int64
	err     error
	gotNow  time.Time
}

func (f *fakeTokens) Create(_ context.Context, _ *token.Token) error { return nil }
func (f *fakeTokens) Validate(_ context.Context, _ string, _ time.Time) (string, error) {
	return "", shared.ErrTokenNotFound
}
func (f *fakeTokens) Delete(_ context.Context, _ string) error { return nil }
func (f *fakeTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.gotNow = now
	return f.deleted, f.err
}

// ─── warm schedules ──────────────────────────────────────────────────────────

func TestWarmSchedulesWarmsEveryGroup(t *testing.T) {
	users := &fakeUsers{groups: []lesson.GroupCode{"TXM15S1", "TXM16S2"}}
	source := &fakeScheduleSource{}
	job := NewWarmSchedulesJob(users, source, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.ElementsMatch(t, []lesson.GroupCode{"TXM15S1", "TXM16S2"}, source.calls)
}

func TestWarmSchedulesToleratesPartialFailure(t *testing.T) {
	users := &fakeUsers{groups: []lesson.GroupCode{"TXM15S1", "TXM16S2"}}
	source := &fakeScheduleSource{fail: map[lesson.GroupCode]error{
		"TXM15S1": shared.ErrLukkaritUnavailable,
	}}
	job := NewWarmSchedulesJob(users, source, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, source.calls, 2)
}

func TestWarmSchedulesFailsWhenNothingWarms(t *testing.T) {
	users := &fakeUsers{groups: []lesson.GroupCode{"TXM15S1"}}
	source := &fakeScheduleSource{fail: map[lesson.GroupCode]error{
		"TXM15S1": shared.ErrLukkaritUnavailable,
	}}
	job := NewWarmSchedulesJob(users, source, nil)

	assert.Error(t, job.Run(context.Background()))
}

func TestWarmSchedulesNoGroups(t *testing.T) {
	job := NewWarmSchedulesJob(&fakeUsers{}, &fakeScheduleSource{}, nil)
	assert.NoError(t, job.Run(context.Background()))
}

func TestWarmSchedulesListFailure(t *testing.T) {
	users := &fakeUsers{err: assert.AnError}
	job := NewWarmSchedulesJob(users, &fakeScheduleSource{}, nil)
	assert.Error(t, job.Run(context.Background()))
}

func TestWarmSchedulesHoldsLockForTheRun(t *testing.T) {
	users := &fakeUsers{groups: []lesson.GroupCode{"TXM15S1"}}
	source := &fakeScheduleSource{}
	lock := &fakeLocker{}
	job := NewWarmSchedulesJob(users, source, nil).WithLock(lock)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, lock.locked)
	assert.Equal(t, 1, lock.unlocked)
	assert.Len(t, source.calls, 1)
}

func TestWarmSchedulesSkipsWhenLockHeldElsewhere(t *testing.T) {
	users := &fakeUsers{groups: []lesson.GroupCode{"TXM15S1"}}
	source := &fakeScheduleSource{}
	job := NewWarmSchedulesJob(users, source, nil).WithLock(&fakeLocker{denied: true})

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, source.calls)
}

func TestWarmSchedulesProceedsWhenLockBackendIsDown(t *testing.T) {
	users := &fakeUsers{groups: []lesson.GroupCode{"TXM15S1"}}
	source := &fakeScheduleSource{}
	job := NewWarmSchedulesJob(users, source, nil).WithLock(&fakeLocker{err: assert.AnError})

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, source.calls, 1)
}

// ─── token cleanup ───────────────────────────────────────────────────────────

func TestTokenCleanup(t *testing.T) {
	tokens := &fakeTokens{deleted: 5}
	job := NewTokenCleanupJob(tokens, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.False(t, tokens.gotNow.IsZero())
}

func TestTokenCleanupPropagatesError(t *testing.T) {
	tokens := &fakeTokens{err: assert.AnError}
	job := NewTokenCleanupJob(tokens, nil)

	assert.Error(t, job.Run(context.Background()))
}
