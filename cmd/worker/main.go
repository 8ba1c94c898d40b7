package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/ramurama/populardoctor-webapi/cmd/mainconfig"
	"github.com/ramurama/populardoctor-webapi/internal/app/bootstrap"
	"github.com/ramurama/populardoctor-webapi/internal/config"
	"github.com/ramurama/populardoctor-webapi/internal/events"
	"github.com/ramurama/populardoctor-webapi/internal/notify"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// The worker drains due token releases and delivers outbox notifications.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("worker requires DATABASE_URL")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var awsCfg *aws.Config
	if loaded, err := mainconfig.LoadAWSConfig(ctx, cfg); err != nil {
		logger.Warn("aws config unavailable; email falls back to stub", "error", err)
	} else {
		awsCfg = &loaded
	}

	services, err := bootstrap.BuildServices(bootstrap.Deps{
		Config: cfg,
		DB:     pool,
		Redis:  redisClient,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to wire services", "error", err)
		os.Exit(1)
	}

	notifier := bootstrap.BuildNotifier(cfg, awsCfg, services.Directory, logger)
	deliverer := events.NewDeliverer(services.Outbox, notify.NewOutboxHandler(notifier, logger), logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxInterval)

	release := services.ReleaseWorker(cfg, nil, nil, logger)

	go release.Run(ctx)
	go deliverer.Start(ctx)
	logger.Info("worker started",
		"release_interval", cfg.ReleaseSweepInterval,
		"outbox_interval", cfg.OutboxInterval,
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}
