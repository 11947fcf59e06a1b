// Package main is the entry point for the budgetd cash-flow service.
//
// Startup sequence:
//  1. Load configuration from environment variables (.env file supported)
//  2. Initialize structured logging
//  3. Wire all dependencies via the DI container (store, repositories, services)
//  4. Register background jobs with the scheduler (if enabled)
//  5. Start the HTTP server
//  6. Wait for shutdown signal and stop everything gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stavrou/budgetd/internal/config"
	"github.com/stavrou/budgetd/internal/di"
	"github.com/stavrou/budgetd/internal/scheduler"
	"github.com/stavrou/budgetd/internal/server"
	"github.com/stavrou/budgetd/pkg/logger"
)

func main() {
	// Load configuration first to get the log level. If config fails we still
	// want the error on a structured logger.
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().Msg("Starting budgetd")
	cfg.LogSummary(log)

	// Wire all dependencies. The container opens and migrates the sqlite
	// store, builds the repositories and services, and gates the optional
	// pieces (upstream client, offsite backups) on their configuration.
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Background jobs. The scheduler owns the nightly pipeline; everything
	// else runs on demand through the HTTP surface or the CLI.
	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		loc, err := time.LoadLocation(cfg.SchedulerTZ)
		if err != nil {
			log.Fatal().Err(err).Str("tz", cfg.SchedulerTZ).Msg("Invalid SCHEDULER_TZ")
		}

		sched = scheduler.New(loc, log)
		jobs := di.BuildJobs(container, cfg, log)

		// Maintenance runs an hour before the nightly pipeline so the store
		// is checked and compacted first; the backup runs an hour after, so
		// the archive carries the fresh snapshot.
		if err := sched.AddJob(scheduler.DailySpec((cfg.SchedulerHour+23)%24, cfg.SchedulerMinute), jobs.Maintenance); err != nil {
			log.Fatal().Err(err).Msg("Failed to register store maintenance job")
		}
		if err := sched.AddJob(scheduler.DailySpec(cfg.SchedulerHour, cfg.SchedulerMinute), jobs.Nightly); err != nil {
			log.Fatal().Err(err).Msg("Failed to register nightly forecast job")
		}
		if jobs.Backup != nil {
			if err := sched.AddJob(scheduler.DailySpec((cfg.SchedulerHour+1)%24, cfg.SchedulerMinute), jobs.Backup); err != nil {
				log.Fatal().Err(err).Msg("Failed to register backup job")
			}
		}

		sched.Start()
		log.Info().
			Int("hour", cfg.SchedulerHour).
			Int("minute", cfg.SchedulerMinute).
			Str("tz", cfg.SchedulerTZ).
			Msg("Scheduler started")
	} else {
		log.Info().Msg("Scheduler disabled - nightly jobs will not run")
	}

	srv := server.New(server.Config{
		Log:       log,
		Cfg:       cfg,
		Container: container,
		Scheduler: sched,
	})

	// Start server in a goroutine so shutdown handling below can block on
	// the signal channel.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop the scheduler first. Stop blocks until running jobs finish, so a
	// nightly pipeline caught mid-run completes before the store closes.
	if sched != nil {
		sched.Stop()
	}

	// Graceful shutdown with a deadline for in-flight requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
