package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tierlink/tierlink-backend/internal/activity"
	"github.com/tierlink/tierlink-backend/internal/affiliates"
	"github.com/tierlink/tierlink-backend/internal/clicks"
	"github.com/tierlink/tierlink-backend/internal/conversions"
	"github.com/tierlink/tierlink-backend/internal/cron"
	"github.com/tierlink/tierlink-backend/internal/fraud"
	"github.com/tierlink/tierlink-backend/internal/recalc"
	"github.com/tierlink/tierlink-backend/internal/settings"
	"github.com/tierlink/tierlink-backend/pkg/config"
	"github.com/tierlink/tierlink-backend/pkg/db"
	"github.com/tierlink/tierlink-backend/pkg/logger"
	"github.com/tierlink/tierlink-backend/pkg/metrics"
	"github.com/tierlink/tierlink-backend/pkg/migrate"
	"github.com/tierlink/tierlink-backend/pkg/redis"
)

const lockKeyFormat = "tl:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	conn := dbClient.DB()
	affiliateRepo := affiliates.NewRepository(conn)
	conversionRepo := conversions.NewRepository(conn)
	clickRepo := clicks.NewRepository(conn)
	fraudRepo := fraud.NewRepository(conn)

	activitySvc, err := activity.NewService(activity.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to wire activity service", err)
		os.Exit(1)
	}

	settingsSvc, err := settings.NewService(settings.NewRepository(conn), redisClient, *cfg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire settings service", err)
		os.Exit(1)
	}

	recalcSvc, err := recalc.NewService(affiliateRepo, conversionRepo, activitySvc, settingsSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire recalculation service", err)
		os.Exit(1)
	}

	fraudSvc, err := fraud.NewService(fraudRepo, affiliateRepo, clickRepo, conversionRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to wire fraud service", err)
		os.Exit(1)
	}

	recalcJob, err := cron.NewRecalculateJob(logg, recalcSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create recalculate job", err)
		os.Exit(1)
	}
	fraudJob, err := cron.NewFraudScanJob(logg, fraudSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create fraud scan job", err)
		os.Exit(1)
	}

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(recalcJob, fraudJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
