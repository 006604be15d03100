// Package main is the entry point for the Metka Attendance Hub worker.
//
// The worker runs the periodic maintenance jobs:
// - Warming the schedule cache for every active group before prime hours
// - Purging expired session tokens
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/metka-hub/metka-attendance-hub/config"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/external/lukkarit"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/persistence/postgres"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/persistence/redis"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/scheduler"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/scheduler/jobs"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/service"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
	"github.com/metka-hub/metka-attendance-hub/pkg/timeutil"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled, nothing to do (set SCHEDULER_ENABLED=true)")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Metka Attendance Hub worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.Duration("warm_interval", cfg.Scheduler.WarmSchedulesInterval),
		logger.Duration("token_cleanup_interval", cfg.Scheduler.TokenCleanupInterval))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (schedule cache)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache    *redis.Cache
		scheduleCache *redis.ScheduleCache
	)

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		cache, err := redis.NewCache(redisCfg)
		if err != nil {
			// Warming without a cache is pointless, but token cleanup
			// still has value. Keep running.
			log.Warn("failed to connect to Redis, warming will only exercise the scraper", logger.Err(err))
		} else {
			defer cache.Close()
			redisCache = cache
			scheduleCache = redis.NewScheduleCache(cache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SERVICES & JOBS
	// ─────────────────────────────────────────────────────────────────────────
	store := postgres.NewStore(dbConn)
	repos := store.Repos()

	lukConfig := lukkarit.DefaultConfig(cfg.Lukkarit.BaseURL)
	lukConfig.Timeout = cfg.Lukkarit.RequestTimeout
	lukConfig.UserAgent = cfg.Lukkarit.UserAgent
	lukConfig.Logger = log
	lukClient := lukkarit.NewClient(lukConfig)

	scheduleService := service.NewScheduleService(lukClient, scheduleCache, log)

	warmJob := jobs.NewWarmSchedulesJob(repos.Users, scheduleService, log)
	if redisCache != nil {
		// Several worker replicas share the warm lock so only one hits
		// the timetable site per interval.
		warmJob = warmJob.WithLock(redisCache)
	}
	cleanupJob := jobs.NewTokenCleanupJob(repos.Tokens, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:     log,
		Timezone:   timeutil.HelsinkiTZ,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})

	if err := sched.Register(warmJob, scheduler.NewIntervalSchedule(cfg.Scheduler.WarmSchedulesInterval)); err != nil {
		return fmt.Errorf("failed to register warm job: %w", err)
	}
	if err := sched.Register(cleanupJob, scheduler.NewIntervalSchedule(cfg.Scheduler.TokenCleanupInterval)); err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Warm immediately on startup so a deploy before morning lessons does
	// not leave the first requests on a cold cache.
	if err := sched.RunNow(ctx, warmJob.Name()); err != nil {
		log.Warn("initial schedule warm failed", logger.Err(err))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger builds the root logger from the observability config.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()

	switch cfg.Observability.LogLevel {
	case "debug":
		opts.Level = logger.LevelDebug
	case "warn":
		opts.Level = logger.LevelWarn
	case "error":
		opts.Level = logger.LevelError
	default:
		opts.Level = logger.LevelInfo
	}
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}

	return logger.New(opts)
}
