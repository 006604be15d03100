// Package jobs contains the background jobs run by the scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/user"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

// ScheduleSource provides the timetable for a group on a given day.
// Satisfied by service.ScheduleService, which fills the cache on a miss.
type ScheduleSource interface {
	Lessons(ctx context.Context, group lesson.GroupCode, day time.Time) ([]*lesson.Lesson, error)
}

// Locker is a distributed lock over a named resource. Satisfied by
// redis.Cache.
type Locker interface {
	TryLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, resource string) error
}

// warmLockTTL bounds how long a warming run can hold the lock. Longer than
// any realistic run over a few dozen groups, short enough that a crashed
// worker frees the resource before the next interval.
const warmLockTTL = 10 * time.Minute

// WarmSchedulesJob pre-fetches today's timetable for every group that has
// at least one registered student, so that attend requests during the day
// hit the cache instead of the upstream timetable site.
type WarmSchedulesJob struct {
	users     user.Repository
	schedules ScheduleSource
	locker    Locker
	logger    *logger.Logger
}

// NewWarmSchedulesJob creates a new WarmSchedulesJob.
func NewWarmSchedulesJob(users user.Repository, schedules ScheduleSource, log *logger.Logger) *WarmSchedulesJob {
	if log == nil {
		log = logger.Default()
	}
	return &WarmSchedulesJob{
		users:     users,
		schedules: schedules,
		logger:    log.With(logger.Component("warm_schedules_job")),
	}
}

// WithLock makes the job take a distributed lock before warming, so that
// several worker replicas do not scrape the timetable site concurrently.
func (j *WarmSchedulesJob) WithLock(l Locker) *WarmSchedulesJob {
	j.locker = l
	return j
}

// Name returns the job name.
func (j *WarmSchedulesJob) Name() string {
	return "warm_schedules"
}

// Description returns a human-readable description.
func (j *WarmSchedulesJob) Description() string {
	return "Pre-fetches today's timetable for all active groups into the cache"
}

// Run fetches today's schedule for each distinct group.
// A failure for one group does not stop the others; the job fails only
// when every group fails.
func (j *WarmSchedulesJob) Run(ctx context.Context) error {
	if j.locker != nil {
		got, err := j.locker.TryLock(ctx, j.Name(), warmLockTTL)
		if err != nil {
			// A broken lock backend should not stop the warming; worst
			// case two replicas fetch the same day twice.
			j.logger.Warn("warm lock unavailable, proceeding without it", logger.Err(err))
		} else if !got {
			j.logger.Debug("another replica is warming, skipping run")
			return nil
		} else {
			defer func() {
				if err := j.locker.Unlock(context.WithoutCancel(ctx), j.Name()); err != nil {
					j.logger.Warn("warm lock release failed", logger.Err(err))
				}
			}()
		}
	}

	groups, err := j.users.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("listing groups: %w", err)
	}

	if len(groups) == 0 {
		j.logger.Debug("no groups to warm")
		return nil
	}

	today := timeutil.Now()

	var warmed, failed int
	for _, group := range groups {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lessons, err := j.schedules.Lessons(ctx, group, today)
		if err != nil {
			failed++
			j.logger.Warn("schedule warm failed",
				logger.GroupCode(string(group)),
				logger.Err(err))
			continue
		}

		warmed++
		j.logger.Debug("schedule warmed",
			logger.GroupCode(string(group)),
			logger.Int("lessons", len(lessons)))
	}

	j.logger.Info("schedule warming complete",
		logger.Int("groups", len(groups)),
		logger.Int("warmed", warmed),
		logger.Int("failed", failed))

	if warmed == 0 && failed > 0 {
		return fmt.Errorf("all %d groups failed to warm", failed)
	}

	return nil
}
