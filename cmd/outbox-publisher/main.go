package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/hrcore-backend/internal/dispatcher"
	"github.com/angelmondragon/hrcore-backend/pkg/config"
	"github.com/angelmondragon/hrcore-backend/pkg/db"
	"github.com/angelmondragon/hrcore-backend/pkg/delivery"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"github.com/angelmondragon/hrcore-backend/pkg/metrics"
	"github.com/angelmondragon/hrcore-backend/pkg/migrate"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox/registry"
	"github.com/angelmondragon/hrcore-backend/pkg/pubsub"
	"github.com/angelmondragon/hrcore-backend/pkg/redis"
)

const serviceName = "outbox-publisher"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		os.Exit(1)
	}

	checks := []dispatcher.ReadinessCheck{{Name: "database", Ping: dbClient.Ping}}
	deps := delivery.Deps{Logger: logg, Topics: eventRegistry}
	if strings.EqualFold(cfg.Outbox.Channel, config.OutboxChannelPubSub) {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub client", err)
			}
		}()
		deps.PubSub = pubsubClient
		checks = append(checks, dispatcher.ReadinessCheck{Name: "pubsub", Ping: pubsubClient.Ping})
	}

	channel, err := delivery.NewChannel(*cfg, deps)
	if err != nil {
		logg.Error(ctx, "failed to build delivery channel", err)
		os.Exit(1)
	}
	if closer, ok := channel.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logg.Error(context.Background(), "error closing delivery channel", err)
			}
		}()
	}

	signalParams := outbox.SignalParams{Logger: logg, Source: serviceName}
	params := dispatcher.ServiceParams{
		Config:  cfg.Outbox,
		Logger:  logg,
		Channel: channel,
		Metrics: metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	}
	if deps.PubSub != nil {
		params.Validator = eventRegistry
	}

	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		guard, err := idempotency.NewManager(redisClient, cfg.Outbox.IdempotencyTTL)
		if err != nil {
			logg.Error(ctx, "failed to create idempotency guard", err)
			os.Exit(1)
		}
		params.Guard = guard
		checks = append(checks, dispatcher.ReadinessCheck{Name: "redis", Ping: redisClient.Ping})

		if cfg.Outbox.WakeChannel != "" {
			wakeups, err := redisClient.Subscribe(ctx, cfg.Outbox.WakeChannel)
			if err != nil {
				logg.Warn(logg.WithError(ctx, err), "wake channel unavailable, relying on polling")
			} else {
				wake := outbox.NewSignal(signalParams)
				go wake.Forward(ctx, wakeups)
				params.Wake = wake
			}
		}
	}

	repo := outbox.NewRepository(dbClient.DB())
	params.Repository = repo
	params.DeadLetters = outbox.NewDeadLetterWriter(dbClient, repo, outbox.NewDLQRepository(dbClient.DB()))
	params.Checks = checks

	service, err := dispatcher.NewService(params)
	if err != nil {
		logg.Error(ctx, "failed to create outbox dispatcher", err)
		os.Exit(1)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
