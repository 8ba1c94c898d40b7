// Package scoring recomputes every doctor's trust, popularity and schedule
// speed scores from the full history of visited bookings.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramurama/populardoctor-webapi/internal/observability/metrics"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

var scoringTracer = otel.Tracer("populardoctor.scoring")

// Source yields visited bookings.
type Source interface {
	Visited(ctx context.Context) ([]Visit, error)
}

// Sink persists a doctor's scores with replace semantics.
type Sink interface {
	Name() string
	Put(ctx context.Context, sc Scores) error
}

// Archiver stores run summaries.
type Archiver interface {
	Archive(ctx context.Context, sum Summary) (string, error)
}

// Summary describes one run.
type Summary struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Visits     int       `json:"visits"`
	Scored     int       `json:"scored"`
	Failed     []string  `json:"failed,omitempty"`
	Scores     []Scores  `json:"scores"`
	ReportKey  string    `json:"report_key,omitempty"`
}

type Engine struct {
	cfg      Config
	source   Source
	sinks    []Sink
	archiver Archiver
	logger   *logging.Logger
	metrics  *metrics.SchedulerMetrics
	now      func() time.Time
}

func NewEngine(cfg Config, source Source, logger *logging.Logger, sinks ...Sink) *Engine {
	if source == nil {
		panic("scoring: source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		cfg:    cfg,
		source: source,
		sinks:  sinks,
		logger: logger.WithComponent("scoring"),
		now:    time.Now,
	}
}

func (e *Engine) WithArchiver(a Archiver) *Engine {
	e.archiver = a
	return e
}

func (e *Engine) WithMetrics(m *metrics.SchedulerMetrics) *Engine {
	e.metrics = m
	return e
}

// Run recomputes scores for every doctor with visited bookings. A sink
// failure for one doctor is logged and recorded in the summary; other
// doctors are still written.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	ctx, span := scoringTracer.Start(ctx, "scoring.run")
	defer span.End()

	sum := Summary{RunID: uuid.New(), StartedAt: e.now().UTC()}
	visits, err := e.source.Visited(ctx)
	if err != nil {
		return sum, fmt.Errorf("scoring: load visits: %w", err)
	}
	sum.Visits = len(visits)

	byDoctor := make(map[uuid.UUID][]Visit)
	for _, v := range visits {
		byDoctor[v.DoctorID] = append(byDoctor[v.DoctorID], v)
	}
	doctors := make([]uuid.UUID, 0, len(byDoctor))
	for id := range byDoctor {
		doctors = append(doctors, id)
	}
	sort.Slice(doctors, func(i, j int) bool { return doctors[i].String() < doctors[j].String() })

	for _, doctorID := range doctors {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sc := e.cfg.Compute(doctorID, byDoctor[doctorID])
		sc.ComputedAt = sum.StartedAt
		if e.write(ctx, sc) {
			sum.Scored++
			sum.Scores = append(sum.Scores, sc)
		} else {
			sum.Failed = append(sum.Failed, doctorID.String())
		}
	}
	sum.FinishedAt = e.now().UTC()
	e.metrics.ObserveScoringRun(sum.FinishedAt.Sub(sum.StartedAt).Seconds())
	span.SetAttributes(
		attribute.Int("scoring.doctors", len(doctors)),
		attribute.Int("scoring.failed", len(sum.Failed)),
	)

	if e.archiver != nil {
		key, err := e.archiver.Archive(ctx, sum)
		if err != nil {
			e.logger.Error("scoring report archive failed", "error", err, "run_id", sum.RunID)
		} else {
			sum.ReportKey = key
		}
	}

	e.logger.Info("scoring run finished",
		"run_id", sum.RunID,
		"visits", sum.Visits,
		"scored", sum.Scored,
		"failed", len(sum.Failed),
	)
	return sum, nil
}

func (e *Engine) write(ctx context.Context, sc Scores) bool {
	ok := true
	for _, sink := range e.sinks {
		if err := sink.Put(ctx, sc); err != nil {
			ok = false
			e.logger.Error("scores write failed", "error", err, "doctor_id", sc.DoctorID, "sink", sink.Name())
		}
	}
	e.metrics.ObserveScoredDoctor(ok)
	return ok
}
