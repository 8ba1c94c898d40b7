package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// DefaultMaxAttempts is how many deliveries an event gets before it is
// parked for manual inspection.
const DefaultMaxAttempts = 8

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxEntry is an event written alongside a booking state change.
type OutboxEntry struct {
	ID        uuid.UUID
	Aggregate string
	Type      string
	Payload   json.RawMessage
	Attempts  int
	CreatedAt time.Time
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// OutboxStore is the postgres outbox table.
type OutboxStore struct {
	db          Querier
	maxAttempts int
}

func NewOutboxStore(db Querier) *OutboxStore {
	if db == nil {
		panic("events: db required")
	}
	return &OutboxStore{db: db, maxAttempts: DefaultMaxAttempts}
}

func (s *OutboxStore) WithMaxAttempts(n int) *OutboxStore {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// Insert records an event. Pass the caller's transaction as q so the event
// commits or rolls back with the state change it describes; nil uses the pool.
func (s *OutboxStore) Insert(ctx context.Context, q Querier, aggregate, eventType string, payload any) (uuid.UUID, error) {
	if q == nil {
		q = s.db
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal %s payload: %w", eventType, err)
	}
	id := uuid.New()
	if _, err := q.Exec(ctx,
		`INSERT INTO outbox (id, aggregate, type, payload) VALUES ($1, $2, $3, $4)`,
		id, aggregate, eventType, data); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert outbox: %w", err)
	}
	return id, nil
}

// FetchPending returns undelivered events, oldest first, that still have
// attempts left.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, aggregate, type, payload, attempts, created_at
		FROM outbox
		WHERE delivered_at IS NULL AND attempts < $2
		ORDER BY created_at
		LIMIT $1`, limit, s.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxEntry, error) {
		var e OutboxEntry
		var payload []byte
		if err := row.Scan(&e.ID, &e.Aggregate, &e.Type, &payload, &e.Attempts, &e.CreatedAt); err != nil {
			return e, fmt.Errorf("events: scan outbox: %w", err)
		}
		e.Payload = append(json.RawMessage(nil), payload...)
		return e, nil
	})
}

// MarkDelivered reports whether this call was the one to flip the row.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx,
		`UPDATE outbox SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed counts a failed attempt and keeps the cause.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := s.db.Exec(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1 AND delivered_at IS NULL`,
		id, msg); err != nil {
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}

// Deliverer polls the outbox and hands each event to the handler.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger.WithComponent("outbox"),
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start drains on every tick until ctx is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch and returns how many events went out. A failed
// event is retried on a later tick until it runs out of attempts.
func (d *Deliverer) Drain(ctx context.Context) int {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		if herr := d.handler.Handle(ctx, entry); herr != nil {
			d.logger.Error("outbox delivery failed", "error", herr, "event_id", entry.ID, "type", entry.Type, "attempt", entry.Attempts+1)
			if err := d.store.MarkFailed(ctx, entry.ID, herr); err != nil {
				d.logger.Error("outbox failure not recorded", "error", err, "event_id", entry.ID)
			}
			if entry.Attempts+1 >= d.store.maxAttempts {
				d.logger.Warn("outbox event parked", "event_id", entry.ID, "type", entry.Type)
			}
			continue
		}
		ok, err := d.store.MarkDelivered(ctx, entry.ID)
		switch {
		case err != nil:
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		case ok:
			delivered++
		}
	}
	return delivered
}
