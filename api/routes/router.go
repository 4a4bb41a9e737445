package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quanghuyng/feastly-backend/api/controllers"
	"github.com/quanghuyng/feastly-backend/api/middleware"
	paymentsvc "github.com/quanghuyng/feastly-backend/internal/payments"
	plansvc "github.com/quanghuyng/feastly-backend/internal/plans"
	subsvc "github.com/quanghuyng/feastly-backend/internal/subscriptions"
	usagesvc "github.com/quanghuyng/feastly-backend/internal/usage"
	"github.com/quanghuyng/feastly-backend/pkg/config"
	"github.com/quanghuyng/feastly-backend/pkg/db"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
	"github.com/quanghuyng/feastly-backend/pkg/metrics"
	"github.com/quanghuyng/feastly-backend/pkg/redis"
)

// Deps carries everything the router wires together.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         redis.Pinger
	Plans         plansvc.Service
	Subscriptions subsvc.Service
	Usage         usagesvc.Service
	Payments      paymentsvc.Service
	AccessMetrics *metrics.AccessMetrics
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/{provider}", controllers.PaymentWebhook(deps.Payments, logg))
	})

	r.Route("/api/v1/plans", func(r chi.Router) {
		r.Get("/", controllers.ListPlans(deps.Plans, logg))
		r.Get("/{planID}", controllers.GetPlan(deps.Plans, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/usage", func(r chi.Router) {
			r.Get("/", controllers.UsageOverview(deps.Usage, logg))
			r.Get("/{feature}", controllers.UsageCheck(deps.Usage, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.CreateSubscription(deps.Subscriptions, logg))
			r.Get("/me", controllers.GetSubscription(deps.Subscriptions, logg))
			r.Patch("/me", controllers.UpdateSubscription(deps.Subscriptions, logg))
			r.Post("/me/cancel", controllers.CancelSubscription(deps.Subscriptions, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", controllers.CreatePayment(deps.Payments, logg))
			r.Get("/{paymentID}", controllers.GetPayment(deps.Payments, logg))
		})

		entitled := func(req middleware.Requirement) func(http.Handler) http.Handler {
			return middleware.RequireEntitlement(deps.Usage, req, deps.AccessMetrics, logg)
		}

		r.With(entitled(middleware.Requirement{Feature: enums.FeatureTypeRecipeGeneration})).
			Post("/recipes/generate", controllers.GenerateRecipe())
		r.With(entitled(middleware.Requirement{Feature: enums.FeatureTypeVideoGeneration})).
			Post("/videos/generate", controllers.GenerateVideo())
		r.With(entitled(middleware.Requirement{Feature: enums.FeatureTypeCommunityPost})).
			Post("/community/posts", controllers.CreateCommunityPost())
		r.With(entitled(middleware.Requirement{Feature: enums.FeatureTypeCommunityComment})).
			Post("/community/comments", controllers.CreateCommunityComment())
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Post("/plans", controllers.AdminUpsertPlan(deps.Plans, logg))
		r.Post("/payments/{paymentID}/refund", controllers.AdminRefundPayment(deps.Payments, logg))
		r.Get("/payments/stats", controllers.AdminPaymentStats(deps.Payments, logg))
		r.Post("/quotas/reset", controllers.AdminResetQuotas(deps.Subscriptions, logg))
	})

	return r
}
