package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/fieldvine/fieldvine/pkg/api"
	"github.com/fieldvine/fieldvine/pkg/audit"
	"github.com/fieldvine/fieldvine/pkg/billing"
	"github.com/fieldvine/fieldvine/pkg/config"
	"github.com/fieldvine/fieldvine/pkg/jobs"
	"github.com/fieldvine/fieldvine/pkg/numbering"
	"github.com/fieldvine/fieldvine/pkg/observability"
	"github.com/fieldvine/fieldvine/pkg/schedule"
	"github.com/fieldvine/fieldvine/pkg/storage/postgres"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	httpLogger := newHTTPLogger(cfg.Observability.LogLevel)

	// Database
	conns, err := postgres.NewConnectionManager(cfg.Database)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	db := conns.Primary()
	if err := postgres.EnsureSchema(db); err != nil {
		logger.WithError(err).Error("failed to ensure database schema")
		os.Exit(1)
	}

	// Portal cache (optional)
	var cache subscriptions.PortalCache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		cache = postgres.NewPortalCacheWithClient(redisClient)
		logger.Info("Portal cache enabled")
	} else {
		logger.Info("Portal cache disabled")
	}

	// Services
	events, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Error("failed to initialize audit log")
		os.Exit(1)
	}
	sequences, err := numbering.NewPostgresAllocator(db)
	if err != nil {
		logger.WithError(err).Error("failed to initialize number sequences")
		os.Exit(1)
	}
	generator := schedule.NewGenerator(db, events, cache, logger)
	subs := subscriptions.NewPostgresService(db, sequences, generator, events, cache, logger)
	jobStore := jobs.NewPostgresStore(db)
	executor := schedule.NewExecutor(db, jobStore, events, cache, logger)
	invoices := billing.NewGenerator(db, sequences, events, logger)

	metrics := observability.NewMetrics(nil)
	server := api.NewServer(subs, executor, invoices, metrics, httpLogger)

	// Health and metrics on a separate port for probes
	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Shutdown funcs run in reverse order: health server first, connections
	// last.
	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctxShutdown context.Context) error {
		return conns.Close()
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctxShutdown context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)

	go func() {
		logger.Infof("Fieldvine API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}

// newHTTPLogger builds the logrus logger used by HTTP middleware
func newHTTPLogger(level observability.LogLevel) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	switch level {
	case observability.DebugLevel:
		l.SetLevel(logrus.DebugLevel)
	case observability.WarnLevel:
		l.SetLevel(logrus.WarnLevel)
	case observability.ErrorLevel:
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
