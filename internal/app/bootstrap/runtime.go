package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/ramurama/populardoctor-webapi/internal/config"
	"github.com/ramurama/populardoctor-webapi/internal/release"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// BuildRedisClient connects the release queue and velocity limiter backend.
// REDIS_ADDR may be host:port or a redis:// / rediss:// URL. It returns nil
// when Redis is not configured, the URL is bad, or verify is set and the
// ping fails; callers then fall back to in-process implementations.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil {
		return nil
	}
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts, err := redisOptions(addr, cfg)
	if err != nil {
		logger.Warn("redis address invalid, continuing without redis", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}

	if ctx == nil {
		ctx = context.Background()
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available, continuing without redis", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

const redisPingTimeout = 3 * time.Second

func redisOptions(addr string, cfg *appconfig.Config) (*redis.Options, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		return redis.ParseURL(addr)
	}
	opts := &redis.Options{Addr: addr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// BuildReleaseQueue picks the release timer backend. The in-memory queue only
// works when the API and the release worker share a process.
func BuildReleaseQueue(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) release.Queue {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient == nil || (cfg != nil && cfg.UseMemoryQueue) {
		logger.Info("release queue: in-memory")
		return release.NewMemoryQueue()
	}
	logger.Info("release queue: redis")
	return release.NewRedisQueue(redisClient, "")
}
