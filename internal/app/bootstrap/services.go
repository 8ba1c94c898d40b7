package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/ramurama/populardoctor-webapi/internal/availability"
	"github.com/ramurama/populardoctor-webapi/internal/booking"
	appconfig "github.com/ramurama/populardoctor-webapi/internal/config"
	"github.com/ramurama/populardoctor-webapi/internal/directory"
	"github.com/ramurama/populardoctor-webapi/internal/events"
	"github.com/ramurama/populardoctor-webapi/internal/history"
	"github.com/ramurama/populardoctor-webapi/internal/observability/metrics"
	"github.com/ramurama/populardoctor-webapi/internal/release"
	"github.com/ramurama/populardoctor-webapi/internal/schedules"
	"github.com/ramurama/populardoctor-webapi/internal/sequence"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// Database is what the stores need from Postgres. *pgxpool.Pool satisfies it.
type Database interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Deps are the shared clients a process opens at startup.
type Deps struct {
	Config    *appconfig.Config
	DB        Database
	SQL       *sql.DB
	Redis     *redis.Client
	Metrics   *metrics.SchedulerMetrics
	Publisher booking.Publisher
	Logger    *logging.Logger
}

// Services is the wired domain layer.
type Services struct {
	Calculator *availability.Calculator
	Sequences  *sequence.Generator
	Tokens     *tokens.Store
	Schedules  *schedules.Service
	Directory  *directory.Service
	Bookings   *booking.Service
	History    *history.Reader
	Outbox     *events.OutboxStore
	Queue      release.Queue
	Releases   *release.Scheduler
}

// BuildServices wires stores and services over the shared clients.
func BuildServices(d Deps) (*Services, error) {
	if d.Config == nil || d.DB == nil {
		return nil, fmt.Errorf("bootstrap: config and database are required")
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Default()
	}
	cfg := d.Config

	calc := availability.New(cfg.Location(), cfg.BookingWindow)
	seq := sequence.NewGenerator(sequence.NewPostgresStore(d.DB), logger)
	tokenStore := tokens.NewStore(d.DB)
	outbox := events.NewOutboxStore(d.DB)

	cache, err := schedules.NewCache(cfg.ScheduleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: schedule cache: %w", err)
	}
	sched := schedules.NewService(d.DB, schedules.NewStore(d.DB), tokenStore, cache, logger)
	dir := directory.NewService(directory.NewStore(d.DB), seq, logger)

	queue := BuildReleaseQueue(cfg, d.Redis, logger)
	releases := release.NewScheduler(queue, cfg.ReleaseGrace)

	svc := booking.NewService(d.DB, tokenStore, booking.NewRepository(d.DB), seq, calc, logger).
		WithReleaser(releases).
		WithLocator(dir).
		WithOutbox(outbox).
		WithMetrics(d.Metrics)
	if d.Redis != nil {
		svc.WithLimiter(booking.NewBlockLimiter(d.Redis, cfg.BlockVelocityMax, cfg.BlockVelocityWindow, logger))
	}
	if d.Publisher != nil {
		svc.WithPublisher(d.Publisher)
	}

	out := &Services{
		Calculator: calc,
		Sequences:  seq,
		Tokens:     tokenStore,
		Schedules:  sched,
		Directory:  dir,
		Bookings:   svc,
		Outbox:     outbox,
		Queue:      queue,
		Releases:   releases,
	}
	if d.SQL != nil {
		out.History = history.NewReader(d.SQL, calc)
	}
	return out, nil
}

// ReleaseWorker builds the release worker over the wired token store.
func (s *Services) ReleaseWorker(cfg *appconfig.Config, m *metrics.SchedulerMetrics, pub release.Publisher, logger *logging.Logger) *release.Worker {
	w := release.NewWorker(s.Queue, s.Tokens, logger).
		WithGrace(cfg.ReleaseGrace).
		WithInterval(cfg.ReleaseSweepInterval).
		WithBatchSize(cfg.ReleaseBatchSize).
		WithMetrics(m)
	if pub != nil {
		w.WithPublisher(pub)
	}
	return w
}
