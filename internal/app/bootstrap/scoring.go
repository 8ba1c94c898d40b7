package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/ramurama/populardoctor-webapi/internal/config"
	"github.com/ramurama/populardoctor-webapi/internal/observability/metrics"
	"github.com/ramurama/populardoctor-webapi/internal/scoring"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// ScoringConfig converts the env tables into a validated scoring.Config.
func ScoringConfig(cfg *appconfig.Config) (scoring.Config, error) {
	if cfg == nil {
		return scoring.Config{}, fmt.Errorf("bootstrap: config is required")
	}
	sc, err := scoring.FromTables(scoring.Tables{
		TrustVisits:    cfg.ScoringTrustVisits,
		TrustPoints:    cfg.ScoringTrustPoints,
		DistanceBandKm: cfg.ScoringDistanceBandKm,
		DistancePoints: cfg.ScoringDistancePoints,
		SpeedBands:     cfg.ScoringSpeedBands,
		SpeedPoints:    cfg.ScoringSpeedPoints,
	})
	if err != nil {
		return scoring.Config{}, fmt.Errorf("bootstrap: scoring tables: %w", err)
	}
	return sc, nil
}

// BuildScoringEngine wires the engine with the Postgres store as source and
// primary sink. DynamoDB and the S3 archive join when configured.
func BuildScoringEngine(cfg *appconfig.Config, db scoring.Querier, awsCfg *aws.Config, m *metrics.SchedulerMetrics, logger *logging.Logger) (*scoring.Engine, error) {
	sc, err := ScoringConfig(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("bootstrap: scoring needs a database")
	}
	if logger == nil {
		logger = logging.Default()
	}

	store := scoring.NewPostgresStore(db)
	sinks := []scoring.Sink{store}
	if cfg.ScoresTable != "" && awsCfg != nil {
		sinks = append(sinks, scoring.NewDynamoSink(dynamodb.NewFromConfig(*awsCfg), cfg.ScoresTable))
		logger.Info("scores mirrored to dynamodb", "table", cfg.ScoresTable)
	}

	engine := scoring.NewEngine(sc, store, logger, sinks...).WithMetrics(m)
	if cfg.ScoringReportBucket != "" && awsCfg != nil {
		engine.WithArchiver(scoring.NewReportArchive(s3.NewFromConfig(*awsCfg), cfg.ScoringReportBucket))
		logger.Info("scoring reports archived", "bucket", cfg.ScoringReportBucket)
	}
	return engine, nil
}
