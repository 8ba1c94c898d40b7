package release

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramurama/populardoctor-webapi/internal/observability/metrics"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

var releaseTracer = otel.Tracer("populardoctor.release")

type tokenStore interface {
	ReleaseBlock(ctx context.Context, q tokens.Querier, tableID uuid.UUID, number int, blockedAt time.Time) (bool, error)
	ReleaseExpired(ctx context.Context, q tokens.Querier, cutoff time.Time, limit int) ([]tokens.Ref, error)
}

// Publisher broadcasts released tokens.
type Publisher interface {
	PublishToken(tableID uuid.UUID, number int, status tokens.Status)
}

// Worker drains due releases and sweeps stale blocks.
type Worker struct {
	queue     Queue
	store     tokenStore
	logger    *logging.Logger
	metrics   *metrics.SchedulerMetrics
	pub       Publisher
	grace     time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewWorker(queue Queue, store tokenStore, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		queue:     queue,
		store:     store,
		logger:    logger.WithComponent("release"),
		grace:     time.Minute,
		interval:  15 * time.Second,
		batchSize: 100,
		now:       time.Now,
	}
}

func (w *Worker) WithGrace(d time.Duration) *Worker {
	if d > 0 {
		w.grace = d
	}
	return w
}

func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

func (w *Worker) WithBatchSize(n int) *Worker {
	if n > 0 {
		w.batchSize = n
	}
	return w
}

func (w *Worker) WithMetrics(m *metrics.SchedulerMetrics) *Worker {
	w.metrics = m
	return w
}

func (w *Worker) WithPublisher(p Publisher) *Worker {
	w.pub = p
	return w
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	w.ProcessDue(ctx)
	w.Sweep(ctx)
}

// ProcessDue releases every queued entry that has come due. Tokens that were
// booked, or released and blocked again, since the entry was armed are left
// alone.
func (w *Worker) ProcessDue(ctx context.Context) int {
	if w.queue == nil || w.store == nil {
		return 0
	}
	ctx, span := releaseTracer.Start(ctx, "release.process_due")
	defer span.End()

	entries, err := w.queue.PopDue(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.Error("release queue pop failed", "error", err)
	}
	released := 0
	for _, e := range entries {
		ok, err := w.store.ReleaseBlock(ctx, nil, e.TableID, e.Number, e.BlockedAt)
		if err != nil {
			w.logger.Error("token release failed", "error", err, "token_table_id", e.TableID, "token_number", e.Number)
			continue
		}
		if !ok {
			w.logger.Debug("release skipped, block no longer current", "token_table_id", e.TableID, "token_number", e.Number, "blocked_at", e.BlockedAt)
			continue
		}
		released++
		w.published(e.TableID, e.Number)
		w.logger.Debug("token released", "token_table_id", e.TableID, "token_number", e.Number)
	}
	w.metrics.ObserveRelease("timer", released)
	span.SetAttributes(attribute.Int("release.popped", len(entries)), attribute.Int("release.released", released))
	return released
}

// Sweep reopens tokens blocked longer than the grace window that no queue
// entry covered.
func (w *Worker) Sweep(ctx context.Context) int {
	if w.store == nil {
		return 0
	}
	refs, err := w.store.ReleaseExpired(ctx, nil, w.now().Add(-w.grace), w.batchSize)
	if err != nil {
		w.logger.Error("release sweep failed", "error", err)
		return 0
	}
	for _, ref := range refs {
		w.published(ref.TableID, ref.Number)
	}
	if len(refs) > 0 {
		w.metrics.ObserveRelease("sweep", len(refs))
		w.logger.Info("stale blocks released", "count", len(refs))
	}
	return len(refs)
}

func (w *Worker) published(tableID uuid.UUID, number int) {
	if w.pub != nil {
		w.pub.PublishToken(tableID, number, tokens.StatusOpen)
	}
}
