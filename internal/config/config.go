package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	MaxConnections int

	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	UseMemoryQueue bool

	// Scheduling
	Timezone             string
	BookingWindow        time.Duration
	ReleaseGrace         time.Duration
	ReleaseSweepInterval time.Duration
	ReleaseBatchSize     int
	BlockVelocityMax     int
	BlockVelocityWindow  time.Duration
	ScheduleCacheSize    int

	// HTTP
	JWTSecret          string
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Notifications
	NotificationQueueURL string
	NotifyEmailProvider  string
	SESFromEmail         string
	SendGridAPIKey       string
	SendGridFromEmail    string
	EmailFromName        string
	OutboxInterval       time.Duration
	OutboxBatchSize      int

	// Scoring
	ScoresTable           string
	ScoringReportBucket   string
	ScoringTrustVisits    []int
	ScoringTrustPoints    []int
	ScoringDistanceBandKm []float64
	ScoringDistancePoints []int
	ScoringSpeedBands     []time.Duration
	ScoringSpeedPoints    []int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MaxConnections: getEnvAsInt("MAX_CONNECTIONS", 0),

		RedisAddr:      getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),

		Timezone:             getEnv("TIMEZONE", "Asia/Calcutta"),
		BookingWindow:        getEnvAsDuration("BOOKING_WINDOW", 4*time.Hour),
		ReleaseGrace:         getEnvAsDuration("RELEASE_GRACE", time.Minute),
		ReleaseSweepInterval: getEnvAsDuration("RELEASE_SWEEP_INTERVAL", 15*time.Second),
		ReleaseBatchSize:     getEnvAsInt("RELEASE_BATCH_SIZE", 100),
		BlockVelocityMax:     getEnvAsInt("BLOCK_VELOCITY_MAX", 5),
		BlockVelocityWindow:  getEnvAsDuration("BLOCK_VELOCITY_WINDOW", 10*time.Minute),
		ScheduleCacheSize:    getEnvAsInt("SCHEDULE_CACHE_SIZE", 256),

		JWTSecret:          getEnv("JWT_SECRET", ""),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),

		AWSRegion:           getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		NotificationQueueURL: getEnv("NOTIFICATION_QUEUE_URL", ""),
		NotifyEmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_EMAIL_PROVIDER", "none"))),
		SESFromEmail:         getEnv("SES_FROM_EMAIL", ""),
		SendGridAPIKey:       getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:    getEnv("SENDGRID_FROM_EMAIL", ""),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "Popular Doctor"),
		OutboxInterval:       getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize:      getEnvAsInt("OUTBOX_BATCH_SIZE", 25),

		ScoresTable:           getEnv("SCORES_TABLE", ""),
		ScoringReportBucket:   getEnv("SCORING_REPORT_BUCKET", ""),
		ScoringTrustVisits:    getEnvAsIntList("SCORING_TRUST_VISITS", []int{1, 3, 5, 10}),
		ScoringTrustPoints:    getEnvAsIntList("SCORING_TRUST_POINTS", []int{1, 5, 10, 20}),
		ScoringDistanceBandKm: getEnvAsFloatList("SCORING_DISTANCE_BANDS_KM", []float64{2, 5, 10}),
		ScoringDistancePoints: getEnvAsIntList("SCORING_DISTANCE_POINTS", []int{1, 2, 4, 6}),
		ScoringSpeedBands: getEnvAsDurationList("SCORING_SPEED_BANDS",
			[]time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour, 3 * time.Hour}),
		ScoringSpeedPoints: getEnvAsIntList("SCORING_SPEED_POINTS", []int{10, 7, 4, 2, 1}),
	}
}

// Location resolves the configured timezone, falling back to UTC when the
// zone database does not know it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsIntList parses a comma separated list. Any malformed element
// discards the whole value in favour of the default.
func getEnvAsIntList(key string, defaultValue []int) []int {
	parts := splitList(getEnv(key, ""))
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return defaultValue
		}
		out = append(out, v)
	}
	return out
}

func getEnvAsFloatList(key string, defaultValue []float64) []float64 {
	parts := splitList(getEnv(key, ""))
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, v)
	}
	return out
}

func getEnvAsDurationList(key string, defaultValue []time.Duration) []time.Duration {
	parts := splitList(getEnv(key, ""))
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		v, err := time.ParseDuration(p)
		if err != nil {
			return defaultValue
		}
		out = append(out, v)
	}
	return out
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
