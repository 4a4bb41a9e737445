package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quanghuyng/feastly-backend/api/routes"
	"github.com/quanghuyng/feastly-backend/internal/payments"
	"github.com/quanghuyng/feastly-backend/internal/payments/providers"
	"github.com/quanghuyng/feastly-backend/internal/plans"
	"github.com/quanghuyng/feastly-backend/internal/subscriptions"
	"github.com/quanghuyng/feastly-backend/internal/usage"
	"github.com/quanghuyng/feastly-backend/pkg/config"
	"github.com/quanghuyng/feastly-backend/pkg/db"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
	"github.com/quanghuyng/feastly-backend/pkg/metrics"
	"github.com/quanghuyng/feastly-backend/pkg/migrate"
	"github.com/quanghuyng/feastly-backend/pkg/redis"
)

const webhookDedupeTTL = 48 * time.Hour

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

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
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

	accessMetrics := metrics.NewAccessMetrics(prometheus.DefaultRegisterer)

	planService, err := plans.NewService(plans.ServiceParams{
		Repo:     plans.NewRepository(dbClient.DB()),
		Cache:    redisClient,
		CacheTTL: cfg.PlanCache.TTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	usageRepo := usage.NewRepository(dbClient.DB())
	subscriptionRepo := subscriptions.NewRepository(dbClient.DB())

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              subscriptionRepo,
		Quotas:            usageRepo,
		Plans:             planService,
		TransactionRunner: dbClient,
		Log:               logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	usageService, err := usage.NewService(usage.ServiceParams{
		Repo:          usageRepo,
		Subscriptions: subscriptionRepo,
		FreeTier:      cfg.FreeTier,
		Log:           logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage service", err)
		os.Exit(1)
	}

	registry := providers.NewRegistry(configuredProviders(cfg, logg)...)

	webhookGuard, err := payments.NewIdempotencyGuard(redisClient, webhookDedupeTTL, "payments:webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:          payments.NewRepository(dbClient.DB()),
		Providers:     registry,
		Subscriptions: subscriptionRepo,
		Lifecycle:     subscriptionService,
		Guard:         webhookGuard,
		Metrics:       accessMetrics,
		Log:           logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
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
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Plans:         planService,
			Subscriptions: subscriptionService,
			Usage:         usageService,
			Payments:      paymentService,
			AccessMetrics: accessMetrics,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// configuredProviders wires every gateway whose credentials are present.
// Missing credentials just leave that gateway out of the registry.
func configuredProviders(cfg *config.Config, logg *logger.Logger) []providers.Provider {
	var active []providers.Provider

	if stripe, err := providers.NewStripe(cfg.Stripe); err != nil {
		logg.Warn(logg.WithProvider(context.Background(), "stripe"), "gateway not configured")
	} else {
		active = append(active, stripe)
	}

	if momo, err := providers.NewMoMo(cfg.MoMo, nil); err != nil {
		logg.Warn(logg.WithProvider(context.Background(), "momo"), "gateway not configured")
	} else {
		active = append(active, momo)
	}

	if zalopay, err := providers.NewZaloPay(cfg.ZaloPay, nil); err != nil {
		logg.Warn(logg.WithProvider(context.Background(), "zalopay"), "gateway not configured")
	} else {
		active = append(active, zalopay)
	}

	return active
}
