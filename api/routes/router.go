package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tierlink/tierlink-backend/api/controllers"
	"github.com/tierlink/tierlink-backend/api/middleware"
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
	"github.com/tierlink/tierlink-backend/pkg/metrics"
	"github.com/tierlink/tierlink-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Database db.Pinger
	Redis    *redis.Client

	Affiliates  affiliates.Service
	Conversions conversions.Service
	Payouts     payouts.Service
	Alerts      alerts.Service
	Fraud       fraud.Service
	Activity    activity.Service
	Settings    settings.Service
	Clicks      clicks.Service
	Recalc      recalc.Service
	Export      *export.Service
	WooWebhook  *woowebhook.Service
	Cron        *cron.Service

	WebhookMetrics *metrics.WebhookMetrics
	Gatherer       prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins...),
	)

	var cache interface {
		Ping(ctx context.Context) error
	}
	if deps.Redis != nil {
		cache = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.Liveness())
		r.Get("/ready", controllers.Readiness(deps.Database, cache, logg))
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	redirect := controllers.RedirectDeps{
		Affiliates: deps.Affiliates,
		Clicks:     deps.Clicks,
		Settings:   deps.Settings,
		Referral:   cfg.Referral,
		Logger:     logg,
	}
	r.Get("/tracking-snippet.js", controllers.TrackingSnippet())
	r.Get("/ref/{slug}", controllers.RedirectBySlug(redirect))
	r.Get("/api/ref/{id}", controllers.RedirectByID(redirect))

	applyLimit := middleware.ApplyRateLimit(cfg.RateLimit, nil, logg)
	if deps.Redis != nil {
		applyLimit = middleware.ApplyRateLimit(cfg.RateLimit, deps.Redis, logg)
	}
	r.With(applyLimit).Post("/api/affiliates/apply", controllers.ApplyAffiliate(deps.Affiliates, logg))
	r.With(applyLimit).Post("/api/join", controllers.ApplyAffiliate(deps.Affiliates, logg))

	wooHook := controllers.WooCommerceWebhook(deps.WooWebhook, cfg.WooCommerce.WebhookSecret, nil, deps.WebhookMetrics, logg)
	if deps.Redis != nil {
		wooHook = controllers.WooCommerceWebhook(deps.WooWebhook, cfg.WooCommerce.WebhookSecret, deps.Redis, deps.WebhookMetrics, logg)
	}
	r.Route("/api/webhooks", func(r chi.Router) {
		r.Post("/woocommerce", wooHook)
		r.Post("/tipalti", controllers.TipaltiWebhook(deps.Payouts, deps.WebhookMetrics, logg))
	})

	r.Route("/api/cron", func(r chi.Router) {
		r.Use(middleware.CronToken(cfg.Admin.CronToken, logg))
		r.Post("/run", controllers.TriggerCron(deps.Cron, logg))
		r.Post("/recalculate", controllers.TriggerJob("recalculate-tiers", deps.Recalc, logg))
		r.Post("/fraud-scan", controllers.TriggerFraudScan(deps.Fraud, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Admin, deps.Settings, logg))

		r.Route("/affiliates", func(r chi.Router) {
			r.Get("/", controllers.ListAffiliates(deps.Affiliates, logg))
			r.Post("/", controllers.ApplyAffiliate(deps.Affiliates, logg))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", controllers.GetAffiliate(deps.Affiliates, logg))
				r.Patch("/", controllers.UpdateAffiliate(deps.Affiliates, logg))
				r.Delete("/", controllers.DeleteAffiliate(deps.Affiliates, logg))
				r.Post("/approve", controllers.ApproveAffiliate(deps.Affiliates, logg))
				r.Post("/reject", controllers.RejectAffiliate(deps.Affiliates, logg))
				r.Get("/stats", controllers.AffiliateStats(deps.Affiliates, logg))
				r.Post("/payouts", controllers.SubmitPayout(deps.Payouts, logg))
			})
		})

		r.Route("/conversions", func(r chi.Router) {
			r.Get("/", controllers.ListConversions(deps.Conversions, logg))
			r.Post("/", controllers.CreateConversion(deps.Conversions, logg))
			r.Patch("/{id}", controllers.UpdateConversion(deps.Conversions, logg))
			r.Delete("/{id}", controllers.DeleteConversion(deps.Conversions, logg))
		})

		r.Get("/payouts", controllers.ListPayouts(deps.Payouts, logg))

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", controllers.ListAlerts(deps.Alerts, logg))
			r.Post("/{id}/dismiss", controllers.DismissAlert(deps.Alerts, logg))
		})
		r.Route("/fraud-flags", func(r chi.Router) {
			r.Get("/", controllers.ListFraudFlags(deps.Fraud, logg))
			r.Post("/{id}/resolve", controllers.ResolveFraudFlag(deps.Fraud, logg))
		})

		r.Get("/activity", controllers.ListActivity(deps.Activity, logg))
		r.Get("/export/{resource}", controllers.ExportCSV(deps.Export, logg))

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", controllers.GetSettings(deps.Settings, logg))
			r.Patch("/", controllers.UpdateSettings(deps.Settings, deps.Recalc, logg))
		})
	})

	return r
}
