// Package service contains adapters between infrastructure clients and the
// application-layer ports.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/persistence/redis"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
	"github.com/metka-hub/metka-attendance-hub/pkg/retry"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

// TimetableFetcher fetches one group's lessons for one day from the upstream
// calendar. Satisfied by the lukkarit client.
type TimetableFetcher interface {
	FetchDay(ctx context.Context, group lesson.GroupCode, day time.Time) ([]*lesson.Lesson, error)
}

// ScheduleService answers "what lessons does this group have on this day",
// serving from the Redis cache when possible and scraping the calendar
// behind a retry policy otherwise. It implements the Schedules port of both
// the command and query layers.
type ScheduleService struct {
	fetcher TimetableFetcher
	cache   *redis.ScheduleCache
	retrier *retry.Retrier
	logger  *logger.Logger
}

// NewScheduleService creates a new ScheduleService. The cache may be nil, in
// which case every call scrapes.
func NewScheduleService(fetcher TimetableFetcher, cache *redis.ScheduleCache, log *logger.Logger) *ScheduleService {
	if log == nil {
		log = logger.Default()
	}
	return &ScheduleService{
		fetcher: fetcher,
		cache:   cache,
		retrier: retry.LukkaritRetrier(),
		logger:  log.With(logger.Component("schedule")),
	}
}

// Lessons returns the group's lessons for the day in chronological order.
// An empty day comes back as an empty slice; cache failures degrade to a
// live fetch instead of failing the request.
func (s *ScheduleService) Lessons(ctx context.Context, group lesson.GroupCode, day time.Time) ([]*lesson.Lesson, error) {
	if s.cache != nil {
		lessons, err := s.cache.GetDay(ctx, group, day)
		if err == nil {
			return lessons, nil
		}
		if !redis.IsMiss(err) {
			s.logger.Warn("schedule cache read failed",
				logger.GroupCode(string(group)),
				logger.Day(timeutil.FormatDateStr(day)),
				logger.Err(err))
		}
	}

	var lessons []*lesson.Lesson
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		var ferr error
		lessons, ferr = s.fetcher.FetchDay(ctx, group, day)
		// Unreachable or slow upstream is worth another attempt;
		// garbled markup will not improve on retry.
		if ferr != nil && (errors.Is(ferr, shared.ErrServiceUnavailable) || errors.Is(ferr, shared.ErrTimeout)) {
			return retry.Retryable(ferr)
		}
		return ferr
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetDay(ctx, group, day, lessons); err != nil {
			s.logger.Warn("schedule cache write failed",
				logger.GroupCode(string(group)),
				logger.Day(timeutil.FormatDateStr(day)),
				logger.Err(err))
		}
	}

	return lessons, nil
}
