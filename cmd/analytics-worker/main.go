package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/mesa-backend/internal/analytics"
	"github.com/angelmondragon/mesa-backend/pkg/bigquery"
	"github.com/angelmondragon/mesa-backend/pkg/config"
	"github.com/angelmondragon/mesa-backend/pkg/instance"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
	"github.com/angelmondragon/mesa-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/mesa-backend/pkg/pubsub"
	"github.com/angelmondragon/mesa-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	subscriptions := []string{cfg.PubSub.OrdersAnalyticsSubscription, cfg.PubSub.BookingsAnalyticsSubscription}
	requireResource(ctx, logg, "analytics subscriptions", pubsubClient.EnsureSubscriptions(ctx, subscriptions...))
	receivers := make([]analytics.Receiver, 0, len(subscriptions))
	for _, name := range subscriptions {
		sub := pubsubClient.Subscription(name)
		if sub == nil {
			requireResource(ctx, logg, "analytics subscription", fmt.Errorf("subscription %q not configured", name))
		}
		receivers = append(receivers, sub)
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "error closing bigquery client", err)
		}
	}()

	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency guard", err)

	writer, err := analytics.NewBigQueryWriter(bqClient, analytics.WriterConfig{
		OrderEventsTable:   cfg.BigQuery.OrderEventsTable,
		BookingEventsTable: cfg.BigQuery.BookingEventsTable,
	})
	requireResource(ctx, logg, "analytics writer", err)

	router, err := analytics.NewRouter(writer)
	requireResource(ctx, logg, "analytics router", err)

	service, err := analytics.NewService(receivers, router, guard.WithScope(idempotency.ScopeConsumed), logg)
	requireResource(ctx, logg, "analytics worker", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "analytics worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "analytics worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
