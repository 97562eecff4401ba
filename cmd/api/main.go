package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/congo-pay/settlement/internal/config"
	"github.com/congo-pay/settlement/internal/gateway/mangopay"
	"github.com/congo-pay/settlement/internal/gateway/stripe"
	"github.com/congo-pay/settlement/internal/infra"
	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/logging"
	"github.com/congo-pay/settlement/internal/notification"
	"github.com/congo-pay/settlement/internal/routes"
	"github.com/congo-pay/settlement/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

// run owns every resource so its deferred cleanups happen before main exits.
func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// New Relic first so the Redis client can be instrumented.
	nrApp, err := infra.NewNewRelic(cfg.AppName, cfg.NewRelicLicenseKey)
	if err != nil {
		logger.Warn("new relic disabled", "error", err)
	}
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PoolOptions{
		AppName:         cfg.AppName,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		ConnectTimeout:  cfg.DBConnectTimeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	store := ledger.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL, nrApp)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	var notifier notification.Notifier = notification.NewLoggerNotifier(logger.With("component", "notification"))
	if cfg.NotificationsEnabled() {
		kafkaNotifier := notification.NewKafkaNotifier(cfg.KafkaBrokers, cfg.NotificationsTopic)
		defer func() {
			if err := kafkaNotifier.Close(); err != nil {
				logger.Warn("close kafka writer", "error", err)
			}
		}()
		notifier = kafkaNotifier
		logger.Info("publishing notifications to kafka", "topic", cfg.NotificationsTopic)
	}

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		Cache:    cache,
		Logger:   logger,
		Store:    store,
		Charger:  stripe.New(cfg.StripeSecretKey, cfg.GatewayTimeout),
		Fetcher:  mangopay.New(cfg.MangopayBaseURL, cfg.MangopayClientID, cfg.MangopayAPIKey, cfg.GatewayTimeout),
		Notifier: notifier,
		NewRelic: nrApp,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
