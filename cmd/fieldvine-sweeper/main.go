package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fieldvine/fieldvine/pkg/audit"
	"github.com/fieldvine/fieldvine/pkg/billing"
	"github.com/fieldvine/fieldvine/pkg/config"
	"github.com/fieldvine/fieldvine/pkg/jobs"
	"github.com/fieldvine/fieldvine/pkg/numbering"
	"github.com/fieldvine/fieldvine/pkg/observability"
	"github.com/fieldvine/fieldvine/pkg/schedule"
	"github.com/fieldvine/fieldvine/pkg/storage/postgres"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
	"github.com/fieldvine/fieldvine/pkg/sweep"
)

var (
	runOnce    = flag.Bool("run-once", false, "Run one sweep and exit (for testing or backfilling)")
	businessID = flag.Int64("business-id", 0, "Restrict the sweep to a single business (0 sweeps all)")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	conns, err := postgres.NewConnectionManager(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer conns.Close()
	db := conns.Primary()
	if err := postgres.EnsureSchema(db); err != nil {
		logger.WithError(err).Fatal("failed to ensure database schema")
	}

	obsLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var cache subscriptions.PortalCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer client.Close()
		cache = postgres.NewPortalCacheWithClient(client)
	}

	events, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize audit log")
	}
	sequences, err := numbering.NewPostgresAllocator(db)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize number sequences")
	}
	generator := schedule.NewGenerator(db, events, cache, obsLogger)
	subs := subscriptions.NewPostgresService(db, sequences, generator, events, cache, obsLogger)
	jobStore := jobs.NewPostgresStore(db)
	executor := schedule.NewExecutor(db, jobStore, events, cache, obsLogger)
	invoices := billing.NewGenerator(db, sequences, events, obsLogger)

	metrics := observability.NewMetrics(nil)
	sweeper := sweep.NewSweeper(db, subs, generator, executor, invoices, metrics, logger, sweep.Config{
		Workers:      cfg.Sweep.Workers,
		LeadDays:     cfg.Sweep.LeadDays,
		WindowMonths: cfg.Sweep.WindowMonths,
		BatchSize:    cfg.Sweep.BatchSize,
		BusinessID:   *businessID,
	})

	if *runOnce {
		if _, err := sweeper.Run(context.Background()); err != nil {
			logger.WithError(err).Fatal("sweep failed")
		}
		return
	}

	// Metrics endpoint for the long-running worker
	if cfg.Observability.MetricsEnabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			addr := cfg.Server.Host + ":" + cfg.Server.HealthPort
			logger.WithField("addr", addr).Info("metrics server listening")
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Sweep.Schedule, func() {
		defer observability.RecoverPanic(obsLogger, "scheduled sweep")
		if _, err := sweeper.Run(context.Background()); err != nil {
			logger.WithError(err).Error("sweep failed")
		}
	}); err != nil {
		logger.WithError(err).Fatal("invalid sweep schedule")
	}
	c.Start()
	logger.WithField("schedule", cfg.Sweep.Schedule).Info("sweeper started")

	// Run an initial sweep immediately so a fresh deployment does not wait
	// for the first cron tick
	go func() {
		defer observability.RecoverPanic(obsLogger, "initial sweep")
		if _, err := sweeper.Run(context.Background()); err != nil {
			logger.WithError(err).Error("initial sweep failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("shutting down")

	// Let any in-flight sweep finish before exiting
	<-c.Stop().Done()
}
