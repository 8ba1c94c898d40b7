package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/ramurama/populardoctor-webapi/cmd/mainconfig"
	"github.com/ramurama/populardoctor-webapi/internal/app/bootstrap"
	"github.com/ramurama/populardoctor-webapi/internal/config"
	"github.com/ramurama/populardoctor-webapi/internal/observability/telemetry"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// One scoring pass over every visited booking, for cron.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, "populardoctor-scoring", logger)
	defer func() { _ = shutdownTracing(context.Background()) }()

	if cfg.DatabaseURL == "" {
		logger.Error("scoring requires DATABASE_URL")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var awsCfg *aws.Config
	if loaded, err := mainconfig.LoadAWSConfig(ctx, cfg); err == nil {
		awsCfg = &loaded
	}

	engine, err := bootstrap.BuildScoringEngine(cfg, pool, awsCfg, nil, logger)
	if err != nil {
		logger.Error("failed to wire scoring", "error", err)
		os.Exit(1)
	}

	sum, err := engine.Run(ctx)
	if err != nil {
		logger.Error("scoring run failed", "error", err)
		os.Exit(1)
	}
	logger.Info("scoring run finished",
		"run_id", sum.RunID,
		"visits", sum.Visits,
		"scored", sum.Scored,
		"failed", len(sum.Failed),
		"report", sum.ReportKey,
	)
	if len(sum.Failed) > 0 {
		os.Exit(2)
	}
}
