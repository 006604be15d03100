// Package main is the entry point for the Metka Attendance Hub API server.
//
// The server exposes the student-facing HTTP API: portal login, timetable
// queries and slab check-ins. Background maintenance (cache warming, token
// cleanup) runs in the separate worker binary.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: pure business logic without external dependencies
// - Application: use case orchestration (Commands/Queries)
// - Infrastructure: repository implementations, external portals
// - Interface: HTTP endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/metka-hub/metka-attendance-hub/config"
	"github.com/metka-hub/metka-attendance-hub/internal/application/command"
	"github.com/metka-hub/metka-attendance-hub/internal/application/query"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/external/lukkarit"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/external/metka"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/persistence/postgres"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/persistence/redis"
	"github.com/metka-hub/metka-attendance-hub/internal/infrastructure/service"
	httpserver "github.com/metka-hub/metka-attendance-hub/internal/interface/http"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
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

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Metka Attendance Hub API",
		logger.String("env", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
		logger.String("timezone", cfg.App.Timezone))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	log.Info("running database migrations")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional schedule cache)
	// ─────────────────────────────────────────────────────────────────────────
	var scheduleCache *redis.ScheduleCache
	var redisCache *redis.Cache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, schedule caching disabled", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			scheduleCache = redis.NewScheduleCache(redisCache)
			log.Info("Redis connection established")
		}
	} else {
		log.Info("Redis disabled, schedules are scraped on every request")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPOSITORIES & UNIT OF WORK
	// ─────────────────────────────────────────────────────────────────────────
	store := postgres.NewStore(dbConn)
	repos := store.Repos()
	uow := service.NewUnitOfWorkAdapter(store)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	lukConfig := lukkarit.DefaultConfig(cfg.Lukkarit.BaseURL)
	lukConfig.Timeout = cfg.Lukkarit.RequestTimeout
	lukConfig.UserAgent = cfg.Lukkarit.UserAgent
	lukConfig.Logger = log
	lukClient := lukkarit.NewClient(lukConfig)

	metkaConfig := metka.DefaultConfig(cfg.Metka.BaseURL)
	metkaConfig.Timeout = cfg.Metka.RequestTimeout
	metkaConfig.Logger = log
	metkaClient := metka.NewClient(metkaConfig)

	scheduleService := service.NewScheduleService(lukClient, scheduleCache, log)
	authenticator := service.NewMetkaAuthenticator(metkaClient)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER (Commands & Queries)
	// ─────────────────────────────────────────────────────────────────────────
	loginHandler := command.NewLoginHandler(authenticator, uow, log)
	logoutHandler := command.NewLogoutHandler(repos.Tokens)
	selectGroupHandler := command.NewSelectGroupHandler(repos.Users, log)
	attendHandler := command.NewAttendHandler(uow, scheduleService, repos.Users, repos.Slabs, repos.CheckIns, log)
	createSlabHandler := command.NewCreateSlabHandler(repos.Slabs, log)
	getScheduleHandler := query.NewGetScheduleHandler(repos.Users, scheduleService, repos.Lessons, repos.CheckIns, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.AdminAPIKeyHash = cfg.HTTP.AdminAPIKeyHash

	healthCheckers := map[string]httpserver.Pinger{
		"postgres": dbConn,
	}
	if redisCache != nil {
		healthCheckers["redis"] = redisCache
	}

	httpDeps := httpserver.Dependencies{
		LoginHandler:       loginHandler,
		LogoutHandler:      logoutHandler,
		SelectGroupHandler: selectGroupHandler,
		AttendHandler:      attendHandler,
		CreateSlabHandler:  createSlabHandler,
		GetScheduleHandler: getScheduleHandler,
		Tokens:             repos.Tokens,
		Users:              repos.Users,
		Slabs:              repos.Slabs,
		HealthCheckers:     healthCheckers,
		Logger:             log,
	}

	server := httpserver.NewServer(httpConfig, httpDeps)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", logger.String("address", server.Address()))
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Metka Attendance Hub API is running",
		logger.String("http_address", server.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	case <-ctx.Done():
		log.Info("context cancelled")
	}

	log.Info("starting graceful shutdown",
		logger.Duration("timeout", cfg.HTTP.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
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
