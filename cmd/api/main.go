package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tierlink/tierlink-backend/api/routes"
	"github.com/tierlink/tierlink-backend/internal/activity"
	"github.com/tierlink/tierlink-backend/internal/affiliates"
	"github.com/tierlink/tierlink-backend/internal/alerts"
	"github.com/tierlink/tierlink-backend/internal/clicks"
	"github.com/tierlink/tierlink-backend/internal/conversions"
	"github.com/tierlink/tierlink-backend/internal/cron"
	"github.com/tierlink/tierlink-backend/internal/export"
	"github.com/tierlink/tierlink-backend/internal/fraud"
	"github.com/tierlink/tierlink-backend/internal/payouts"
	"github.com/tierlink/tierlink-backend/internal/recalc"
	"github.com/tierlink/tierlink-backend/internal/settings"
	woowebhook "github.com/tierlink/tierlink-backend/internal/webhooks/woocommerce"
	"github.com/tierlink/tierlink-backend/pkg/config"
	"github.com/tierlink/tierlink-backend/pkg/db"
	"github.com/tierlink/tierlink-backend/pkg/logger"
	"github.com/tierlink/tierlink-backend/pkg/mailer"
	"github.com/tierlink/tierlink-backend/pkg/metrics"
	"github.com/tierlink/tierlink-backend/pkg/migrate"
	"github.com/tierlink/tierlink-backend/pkg/redis"
	"github.com/tierlink/tierlink-backend/pkg/tipalti"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	promRegistry := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobMetrics(promRegistry)
	webhookMetrics := metrics.NewWebhookMetrics(promRegistry)

	services, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	cronService, err := buildCron(cfg, logg, redisClient, jobMetrics, services)
	if err != nil {
		logg.Error(context.Background(), "failed to wire cron service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			Database:       dbClient,
			Redis:          redisClient,
			Affiliates:     services.affiliates,
			Conversions:    services.conversions,
			Payouts:        services.payouts,
			Alerts:         services.alerts,
			Fraud:          services.fraud,
			Activity:       services.activity,
			Settings:       services.settings,
			Clicks:         services.clicks,
			Recalc:         services.recalc,
			Export:         services.export,
			WooWebhook:     services.wooWebhook,
			Cron:           cronService,
			WebhookMetrics: webhookMetrics,
			Gatherer:       promRegistry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

type serviceSet struct {
	activity    activity.Service
	alerts      alerts.Service
	settings    settings.Service
	clicks      clicks.Service
	affiliates  affiliates.Service
	conversions conversions.Service
	payouts     payouts.Service
	recalc      recalc.Service
	fraud       fraud.Service
	export      *export.Service
	wooWebhook  *woowebhook.Service
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*serviceSet, error) {
	conn := dbClient.DB()

	affiliateRepo := affiliates.NewRepository(conn)
	activityRepo := activity.NewRepository(conn)
	alertRepo := alerts.NewRepository(conn)
	clickRepo := clicks.NewRepository(conn)
	conversionRepo := conversions.NewRepository(conn)
	payoutRepo := payouts.NewRepository(conn)
	fraudRepo := fraud.NewRepository(conn)
	settingsRepo := settings.NewRepository(conn)

	activitySvc, err := activity.NewService(activityRepo)
	if err != nil {
		return nil, err
	}

	alertSvc, err := alerts.NewService(alertRepo)
	if err != nil {
		return nil, err
	}

	settingsSvc, err := settings.NewService(settingsRepo, redisClient, *cfg)
	if err != nil {
		return nil, err
	}

	clickSvc, err := clicks.NewService(clickRepo, alertSvc, logg)
	if err != nil {
		return nil, err
	}

	var mail *mailer.Client
	if cfg.Mailer.APIKey != "" {
		mail = mailer.NewClient(cfg.Mailer.BaseURL, cfg.Mailer.APIKey, cfg.Mailer.DefaultFrom, "TierLink")
	}

	affiliateDeps := affiliates.ServiceDeps{
		Repo:        affiliateRepo,
		Activity:    activitySvc,
		Settings:    settingsSvc,
		Tx:          dbClient,
		Alerts:      alertRepo,
		Audit:       activityRepo,
		Clicks:      clickRepo,
		Conversions: conversionRepo,
		AdminEmail:  cfg.Mailer.AdminEmail,
		Logger:      logg,
	}
	if mail != nil {
		affiliateDeps.Mail = mail
	}
	affiliateSvc, err := affiliates.NewService(affiliateDeps)
	if err != nil {
		return nil, err
	}

	recalcSvc, err := recalc.NewService(affiliateRepo, conversionRepo, activitySvc, settingsSvc, logg)
	if err != nil {
		return nil, err
	}

	conversionSvc, err := conversions.NewService(conversionRepo, recalcSvc, logg)
	if err != nil {
		return nil, err
	}

	var processor *tipalti.Client
	if cfg.Tipalti.PayerName != "" && cfg.Tipalti.MasterKey != "" {
		processor, err = tipalti.NewClient(cfg.Tipalti)
		if err != nil {
			return nil, err
		}
	}
	payoutDeps := payouts.ServiceDeps{
		Repo:        payoutRepo,
		Affiliates:  affiliateRepo,
		Conversions: conversionRepo,
		Activity:    activitySvc,
		Logger:      logg,
	}
	if processor != nil {
		payoutDeps.Processor = processor
	}
	payoutSvc, err := payouts.NewService(payoutDeps)
	if err != nil {
		return nil, err
	}

	fraudSvc, err := fraud.NewService(fraudRepo, affiliateRepo, clickRepo, conversionRepo)
	if err != nil {
		return nil, err
	}

	exportRepo, err := export.NewRepository(conn)
	if err != nil {
		return nil, err
	}
	exportSvc, err := export.NewService(exportRepo, settingsSvc)
	if err != nil {
		return nil, err
	}

	wooSvc, err := woowebhook.NewService(woowebhook.ServiceParams{
		Affiliates:  affiliateSvc,
		Coupons:     affiliateRepo,
		Conversions: conversionSvc,
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}

	return &serviceSet{
		activity:    activitySvc,
		alerts:      alertSvc,
		settings:    settingsSvc,
		clicks:      clickSvc,
		affiliates:  affiliateSvc,
		conversions: conversionSvc,
		payouts:     payoutSvc,
		recalc:      recalcSvc,
		fraud:       fraudSvc,
		export:      exportSvc,
		wooWebhook:  wooSvc,
	}, nil
}

func buildCron(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, jobMetrics *metrics.JobMetrics, services *serviceSet) (*cron.Service, error) {
	recalcJob, err := cron.NewRecalculateJob(logg, services.recalc)
	if err != nil {
		return nil, err
	}
	fraudJob, err := cron.NewFraudScanJob(logg, services.fraud)
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(recalcJob, fraudJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
}
