package redis

import (
	"context"
	"errors"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

// ScheduleCache caches a group's day schedule. Today's schedule gets a short
// TTL so same-day timetable edits surface quickly; future days live longer.
type ScheduleCache struct {
	cache *Cache
	now   func() time.Time
}

// NewScheduleCache creates a new ScheduleCache.
func NewScheduleCache(cache *Cache) *ScheduleCache {
	return &ScheduleCache{
		cache: cache,
		now:   time.Now,
	}
}

// GetDay returns the cached schedule for a group on a date.
// Returns ErrCacheMiss when nothing is cached yet. A cached empty day is a
// valid hit and comes back as an empty slice.
func (s *ScheduleCache) GetDay(ctx context.Context, group lesson.GroupCode, date time.Time) ([]*lesson.Lesson, error) {
	key := ScheduleKey(string(group), timeutil.FormatDateStr(date))

	lessons := make([]*lesson.Lesson, 0)
	if err := s.cache.Get(ctx, key, &lessons); err != nil {
		return nil, err
	}

	return lessons, nil
}

// SetDay caches the schedule for a group on a date.
func (s *ScheduleCache) SetDay(ctx context.Context, group lesson.GroupCode, date time.Time, lessons []*lesson.Lesson) error {
	if lessons == nil {
		lessons = make([]*lesson.Lesson, 0)
	}

	ttl := TTLScheduleFuture
	if timeutil.IsSameDay(date, s.now()) {
		ttl = TTLScheduleToday
	}

	key := ScheduleKey(string(group), timeutil.FormatDateStr(date))
	return s.cache.Set(ctx, key, lessons, ttl)
}

// InvalidateDay drops the cached schedule for a group on a date.
func (s *ScheduleCache) InvalidateDay(ctx context.Context, group lesson.GroupCode, date time.Time) error {
	return s.cache.Delete(ctx, ScheduleKey(string(group), timeutil.FormatDateStr(date)))
}

// InvalidateGroup drops every cached day for a group.
func (s *ScheduleCache) InvalidateGroup(ctx context.Context, group lesson.GroupCode) error {
	return s.cache.DeleteByPattern(ctx, PrefixSchedule+string(group)+":*")
}

// IsMiss reports whether the error is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
