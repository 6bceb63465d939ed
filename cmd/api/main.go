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

	"github.com/angelmondragon/hrcore-backend/api/controllers"
	"github.com/angelmondragon/hrcore-backend/api/routes"
	"github.com/angelmondragon/hrcore-backend/internal/employees"
	"github.com/angelmondragon/hrcore-backend/pkg/config"
	"github.com/angelmondragon/hrcore-backend/pkg/db"
	"github.com/angelmondragon/hrcore-backend/pkg/logger"
	"github.com/angelmondragon/hrcore-backend/pkg/migrate"
	"github.com/angelmondragon/hrcore-backend/pkg/outbox"
	"github.com/angelmondragon/hrcore-backend/pkg/redis"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	checks := []controllers.ReadinessCheck{{Name: "database", Ping: dbClient.Ping}}
	signalParams := outbox.SignalParams{Logger: logg, Source: serviceName}
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
		signalParams.Broadcaster = redisClient
		signalParams.Channel = cfg.Outbox.WakeChannel
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Ping: redisClient.Ping})
	} else {
		logg.Warn(ctx, "redis not configured, dispatchers will rely on polling")
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	events := outbox.NewService(outboxRepo, outbox.NewHistoryRepository(dbClient.DB()), logg)

	employeeService, err := employees.NewService(employees.ServiceParams{
		Logger:     logg,
		Tx:         dbClient,
		Repository: employees.NewRepository(dbClient.DB()),
		Events:     events,
		Signal:     outbox.NewSignal(signalParams),
	})
	if err != nil {
		logg.Error(ctx, "failed to create employee service", err)
		os.Exit(1)
	}

	if !cfg.JWT.Enabled() {
		logg.Warn(ctx, "jwt secret not configured, api routes are open")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			Checks:      checks,
			Employees:   employeeService,
			OutboxStats: outboxRepo,
			DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
			Gatherer:    prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}
