package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"

	"github.com/ramurama/populardoctor-webapi/cmd/mainconfig"
	"github.com/ramurama/populardoctor-webapi/internal/api/router"
	"github.com/ramurama/populardoctor-webapi/internal/app/bootstrap"
	appconfig "github.com/ramurama/populardoctor-webapi/internal/config"
	"github.com/ramurama/populardoctor-webapi/internal/http/handlers"
	httpmiddleware "github.com/ramurama/populardoctor-webapi/internal/http/middleware"
	"github.com/ramurama/populardoctor-webapi/internal/observability/metrics"
	"github.com/ramurama/populardoctor-webapi/internal/observability/telemetry"
	"github.com/ramurama/populardoctor-webapi/internal/realtime"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting populardoctor API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", cfg.Timezone,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := telemetry.Setup(ctx, "populardoctor-api", logger)

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	defer pool.Close()
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer func() { _ = sqlDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var awsCfg *aws.Config
	if loaded, err := mainconfig.LoadAWSConfig(ctx, cfg); err != nil {
		logger.Warn("aws config unavailable; scoring mirrors disabled", "error", err)
	} else {
		awsCfg = &loaded
	}

	metricsHandler, schedulerMetrics := setupMetrics()
	hub := realtime.NewHub(logger)

	services, err := bootstrap.BuildServices(bootstrap.Deps{
		Config:    cfg,
		DB:        pool,
		SQL:       sqlDB,
		Redis:     redisClient,
		Metrics:   schedulerMetrics,
		Publisher: hub,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to wire services", "error", err)
		os.Exit(1)
	}

	engine, err := bootstrap.BuildScoringEngine(cfg, pool, awsCfg, schedulerMetrics, logger)
	if err != nil {
		logger.Error("failed to wire scoring", "error", err)
		os.Exit(1)
	}

	// Released tokens are pushed to this process's websocket clients.
	releaseWorker := services.ReleaseWorker(cfg, schedulerMetrics, hub, logger)
	go releaseWorker.Run(ctx)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx)

	loc := cfg.Location()
	r := router.New(&router.Config{
		Logger:         logger,
		Customer:       handlers.NewCustomerHandler(services.Bookings, services.History, loc, logger),
		Staff:          handlers.NewStaffHandler(services.Bookings, services.Schedules, services.History, loc, logger),
		Admin:          handlers.NewAdminHandler(services.Schedules, services.Directory, services.Bookings, engine, logger),
		Live:           handlers.NewLiveHandler(hub, logger),
		AuthSecret:     cfg.JWTSecret,
		RateLimiter:    limiter,
		MetricsHandler: metricsHandler,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		Ping:           pool.Ping,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelhttp.NewHandler(r, "populardoctor-api"),
		ReadTimeout: 15 * time.Second,
		// Websocket streams outlive a write timeout; the write pump sets
		// per-frame deadlines instead.
		IdleTimeout: 60 * time.Second,
	}

	ln, err := listen(srv.Addr, cfg.MaxConnections)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr, "max_connections", cfg.MaxConnections)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// connectPostgresPool returns nil when url is empty or unreachable.
func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if url == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres not reachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// setupMetrics registers scheduler and runtime collectors on a private
// registry and returns its /metrics handler.
func setupMetrics() (http.Handler, *metrics.SchedulerMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSchedulerMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), m
}

// listen caps concurrent connections when limit is positive.
func listen(addr string, limit int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		ln = netutil.LimitListener(ln, limit)
	}
	return ln, nil
}
