package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/pipeline"
	"github.com/angelmondragon/storefront-backend/internal/realtime"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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
		Format:      cfg.App.LogFormat,
		Instance:    instance.ID(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	requireResource(ctx, logg, "stripe", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	hub := realtime.NewHub(realtime.HubParams{
		Logger:       logg,
		Metrics:      pipelineMetrics,
		WriteTimeout: cfg.Realtime.WriteTimeout,
	})
	bus, err := realtime.NewBus(realtime.BusParams{PubSub: redisClient, Local: hub, Logger: logg})
	requireResource(ctx, logg, "realtime bus", err)
	go func() {
		if err := bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "realtime bus stopped", err)
		}
	}()

	p, err := pipeline.Build(pipeline.Params{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Sequences: redisClient,
		Hub:       bus,
		Metrics:   pipelineMetrics,
	})
	requireResource(ctx, logg, "pipeline", err)

	notificationService, err := notifications.NewService(p.Notifications)
	requireResource(ctx, logg, "notifications service", err)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Variants:  p.Variants,
		Addresses: p.Addresses,
		Pricer:    p.Pricer,
		Stripe:    stripeClient,
		Config:    cfg.Checkout,
		Logger:    logg,
	})
	requireResource(ctx, logg, "checkout service", err)

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Reconciler: p.Reconciler,
		Logger:     logg,
		Metrics:    pipelineMetrics,
	})
	requireResource(ctx, logg, "stripe webhook service", err)

	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Stripe.WebhookIdempotencyTTL, cfg.Stripe.WebhookInFlightTTL, "")
	requireResource(ctx, logg, "stripe webhook guard", err)

	addr := ":" + instance.Port(cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Pingers:  map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
			Cache:    redisClient,
			Gatherer: registry,

			Checkout:      checkoutService,
			Orders:        p.OrderService,
			Notifications: notificationService,
			Hub:           hub,

			StripeVerifier: stripeClient,
			StripeWebhook:  webhookService,
			WebhookGuard:   guard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	// Hub first so websocket handlers return and Shutdown can drain them.
	err = multierr.Combine(hub.Close(), server.Shutdown(shutdownCtx))
	if err != nil {
		logg.Error(ctx, "api server shutdown incomplete", err)
		return
	}
	logg.Info(ctx, "api server stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to bootstrap "+resource, err)
	os.Exit(1)
}
