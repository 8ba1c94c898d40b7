package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramurama/populardoctor-webapi/cmd/mainconfig"
	"github.com/ramurama/populardoctor-webapi/internal/app/bootstrap"
	"github.com/ramurama/populardoctor-webapi/internal/config"
	"github.com/ramurama/populardoctor-webapi/internal/scoring"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

type runner interface {
	Run(ctx context.Context) (scoring.Summary, error)
}

// result is what the scheduled invocation returns to EventBridge.
type result struct {
	RunID     string   `json:"run_id"`
	Visits    int      `json:"visits"`
	Scored    int      `json:"scored"`
	Failed    []string `json:"failed,omitempty"`
	ReportKey string   `json:"report_key,omitempty"`
}

var errPartialRun = errors.New("scoring: some doctors were not stored")

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	// The pool outlives invocations so warm starts reuse connections.
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}

	var awsCfg *aws.Config
	if loaded, err := mainconfig.LoadAWSConfig(context.Background(), cfg); err == nil {
		awsCfg = &loaded
	}

	engine, err := bootstrap.BuildScoringEngine(cfg, pool, awsCfg, nil, logger)
	if err != nil {
		panic(err)
	}

	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (result, error) {
		return handle(ctx, engine, logger, evt)
	})
}

func handle(ctx context.Context, engine runner, logger *logging.Logger, evt events.CloudWatchEvent) (result, error) {
	logger.Info("scoring run triggered", "source", evt.Source, "event_id", evt.ID)
	sum, err := engine.Run(ctx)
	if err != nil {
		return result{}, fmt.Errorf("scoring run: %w", err)
	}
	out := result{
		RunID:     sum.RunID.String(),
		Visits:    sum.Visits,
		Scored:    sum.Scored,
		Failed:    sum.Failed,
		ReportKey: sum.ReportKey,
	}
	if len(sum.Failed) > 0 {
		// Scheduled retries rerun the whole pass; every write is an upsert.
		return out, errPartialRun
	}
	return out, nil
}
