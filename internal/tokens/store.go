package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tokensTracer = otel.Tracer("populardoctor.tokens")

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists token tables with one row per token so every transition is
// a single conditional row update.
type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	if db == nil {
		panic("tokens: db required")
	}
	return &Store{db: db}
}

func (s *Store) querier(q Querier) Querier {
	if q == nil {
		return s.db
	}
	return q
}

// NewTable is the input for CreateTable.
type NewTable struct {
	Key       Key
	StartTime string
	EndTime   string
	Tokens    []Token
}

// CreateTable instantiates a table with every token OPEN. Fast-track tokens in
// the template are skipped.
func (s *Store) CreateTable(ctx context.Context, q Querier, in NewTable) (*Table, error) {
	q = s.querier(q)
	table := &Table{
		ID:        uuid.New(),
		Key:       NewKey(in.Key.DoctorID, in.Key.ScheduleID, in.Key.TokenDate),
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		CreatedAt: time.Now().UTC(),
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO token_tables (id, doctor_id, schedule_id, token_date, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (doctor_id, schedule_id, token_date) DO NOTHING
	`, table.ID, table.Key.DoctorID, table.Key.ScheduleID, table.Key.TokenDate, table.StartTime, table.EndTime, table.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("tokens: insert table: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrTableExists
	}

	numbers := make([]int, 0, len(in.Tokens))
	types := make([]string, 0, len(in.Tokens))
	times := make([]string, 0, len(in.Tokens))
	for _, tok := range in.Tokens {
		if tok.IsFastTrack() {
			continue
		}
		numbers = append(numbers, tok.Number)
		types = append(types, tok.Type)
		times = append(times, tok.Time)
		table.Tokens = append(table.Tokens, Token{Number: tok.Number, Type: tok.Type, Time: tok.Time, Status: StatusOpen})
	}
	if len(numbers) == 0 {
		return table, nil
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO tokens (table_id, number, type, time, status, updated_at)
		SELECT $1, t.number, t.type, t.time, 'OPEN', $5
		FROM unnest($2::int[], $3::text[], $4::text[]) AS t(number, type, time)
	`, table.ID, numbers, types, times, table.CreatedAt); err != nil {
		return nil, fmt.Errorf("tokens: insert tokens: %w", err)
	}
	return table, nil
}

// GetTable loads a table and its tokens by key.
func (s *Store) GetTable(ctx context.Context, q Querier, key Key) (*Table, error) {
	q = s.querier(q)
	table := &Table{Key: NewKey(key.DoctorID, key.ScheduleID, key.TokenDate)}
	err := q.QueryRow(ctx, `
		SELECT id, start_time, end_time, created_at
		FROM token_tables
		WHERE doctor_id = $1 AND schedule_id = $2 AND token_date = $3
	`, table.Key.DoctorID, table.Key.ScheduleID, table.Key.TokenDate).Scan(&table.ID, &table.StartTime, &table.EndTime, &table.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("tokens: get table: %w", err)
	}
	if table.Tokens, err = s.listTokens(ctx, q, table.ID); err != nil {
		return nil, err
	}
	return table, nil
}

// GetTableByID loads a table and its tokens by id.
func (s *Store) GetTableByID(ctx context.Context, q Querier, id uuid.UUID) (*Table, error) {
	q = s.querier(q)
	table := &Table{ID: id}
	err := q.QueryRow(ctx, `
		SELECT doctor_id, schedule_id, token_date, start_time, end_time, created_at
		FROM token_tables
		WHERE id = $1
	`, id).Scan(&table.Key.DoctorID, &table.Key.ScheduleID, &table.Key.TokenDate, &table.StartTime, &table.EndTime, &table.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("tokens: get table by id: %w", err)
	}
	table.Key.TokenDate = DateOnly(table.Key.TokenDate)
	if table.Tokens, err = s.listTokens(ctx, q, table.ID); err != nil {
		return nil, err
	}
	return table, nil
}

func (s *Store) listTokens(ctx context.Context, q Querier, tableID uuid.UUID) ([]Token, error) {
	rows, err := q.Query(ctx, `
		SELECT number, type, time, status
		FROM tokens
		WHERE table_id = $1
		ORDER BY number
	`, tableID)
	if err != nil {
		return nil, fmt.Errorf("tokens: list tokens: %w", err)
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		var tok Token
		var status string
		if err := rows.Scan(&tok.Number, &tok.Type, &tok.Time, &status); err != nil {
			return nil, fmt.Errorf("tokens: scan token: %w", err)
		}
		tok.Status = Status(status)
		out = append(out, tok)
	}
	return out, rows.Err()
}

// Block moves an OPEN token to BLOCKED and stamps blocked_at.
func (s *Store) Block(ctx context.Context, q Querier, tableID uuid.UUID, number int, at time.Time) error {
	ctx, span := tokensTracer.Start(ctx, "tokens.block")
	defer span.End()
	span.SetAttributes(attribute.String("token.table_id", tableID.String()), attribute.Int("token.number", number))

	q = s.querier(q)
	tag, err := q.Exec(ctx, `
		UPDATE tokens SET status = 'BLOCKED', blocked_at = $3, updated_at = $3
		WHERE table_id = $1 AND number = $2 AND status = 'OPEN'
	`, tableID, number, BlockInstant(at))
	if err != nil {
		return fmt.Errorf("tokens: block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classify(ctx, q, tableID, number, StatusBlocked)
	}
	return nil
}

// Book moves a BLOCKED token to BOOKED and returns it.
func (s *Store) Book(ctx context.Context, q Querier, tableID uuid.UUID, number int, at time.Time) (Token, error) {
	ctx, span := tokensTracer.Start(ctx, "tokens.book")
	defer span.End()
	span.SetAttributes(attribute.String("token.table_id", tableID.String()), attribute.Int("token.number", number))

	q = s.querier(q)
	tok := Token{Status: StatusBooked}
	err := q.QueryRow(ctx, `
		UPDATE tokens SET status = 'BOOKED', blocked_at = NULL, updated_at = $3
		WHERE table_id = $1 AND number = $2 AND status = 'BLOCKED'
		RETURNING number, type, time
	`, tableID, number, at.UTC()).Scan(&tok.Number, &tok.Type, &tok.Time)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, s.classify(ctx, q, tableID, number, StatusBooked)
		}
		return Token{}, fmt.Errorf("tokens: book: %w", err)
	}
	return tok, nil
}

// Release returns a BLOCKED token to OPEN. It reports false when the token
// had already moved on, which makes repeated releases harmless.
func (s *Store) Release(ctx context.Context, q Querier, tableID uuid.UUID, number int) (bool, error) {
	q = s.querier(q)
	tag, err := q.Exec(ctx, `
		UPDATE tokens SET status = 'OPEN', blocked_at = NULL, updated_at = now()
		WHERE table_id = $1 AND number = $2 AND status = 'BLOCKED'
	`, tableID, number)
	if err != nil {
		return false, fmt.Errorf("tokens: release: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseBlock reopens the token only if it is still held by the block made
// at blockedAt. A timer armed for an earlier block that was booked, cancelled
// or force-released and then blocked again leaves the new block alone.
func (s *Store) ReleaseBlock(ctx context.Context, q Querier, tableID uuid.UUID, number int, blockedAt time.Time) (bool, error) {
	q = s.querier(q)
	tag, err := q.Exec(ctx, `
		UPDATE tokens SET status = 'OPEN', blocked_at = NULL, updated_at = now()
		WHERE table_id = $1 AND number = $2 AND status = 'BLOCKED' AND blocked_at = $3
	`, tableID, number, BlockInstant(blockedAt))
	if err != nil {
		return false, fmt.Errorf("tokens: release block: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ForceRelease is the administrative release of a BLOCKED token. Unlike
// Release it reports why nothing changed.
func (s *Store) ForceRelease(ctx context.Context, q Querier, tableID uuid.UUID, number int) error {
	q = s.querier(q)
	released, err := s.Release(ctx, q, tableID, number)
	if err != nil {
		return err
	}
	if !released {
		return s.classify(ctx, q, tableID, number, StatusOpen)
	}
	return nil
}

// ReleaseExpired reopens up to limit tokens blocked at or before cutoff.
func (s *Store) ReleaseExpired(ctx context.Context, q Querier, cutoff time.Time, limit int) ([]Ref, error) {
	ctx, span := tokensTracer.Start(ctx, "tokens.release_expired")
	defer span.End()

	q = s.querier(q)
	rows, err := q.Query(ctx, `
		UPDATE tokens t SET status = 'OPEN', blocked_at = NULL, updated_at = now()
		FROM (
			SELECT table_id, number FROM tokens
			WHERE status = 'BLOCKED' AND blocked_at <= $1
			ORDER BY blocked_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) due
		WHERE t.table_id = due.table_id AND t.number = due.number
		RETURNING t.table_id, t.number
	`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("tokens: release expired: %w", err)
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		var ref Ref
		if err := rows.Scan(&ref.TableID, &ref.Number); err != nil {
			return nil, fmt.Errorf("tokens: scan released: %w", err)
		}
		refs = append(refs, ref)
	}
	span.SetAttributes(attribute.Int("token.released", len(refs)))
	return refs, rows.Err()
}

// MarkVisited moves a BOOKED token to VISITED.
func (s *Store) MarkVisited(ctx context.Context, q Querier, tableID uuid.UUID, number int, at time.Time) error {
	return s.transition(ctx, q, tableID, number, StatusBooked, StatusVisited, at)
}

// Reopen returns a BOOKED token to OPEN after a customer cancellation.
func (s *Store) Reopen(ctx context.Context, q Querier, tableID uuid.UUID, number int, at time.Time) error {
	return s.transition(ctx, q, tableID, number, StatusBooked, StatusOpen, at)
}

func (s *Store) transition(ctx context.Context, q Querier, tableID uuid.UUID, number int, from, to Status, at time.Time) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	q = s.querier(q)
	tag, err := q.Exec(ctx, `
		UPDATE tokens SET status = $4, updated_at = $5
		WHERE table_id = $1 AND number = $2 AND status = $3
	`, tableID, number, string(from), string(to), at.UTC())
	if err != nil {
		return fmt.Errorf("tokens: %s -> %s: %w", from, to, err)
	}
	if tag.RowsAffected() == 0 {
		return s.classify(ctx, q, tableID, number, to)
	}
	return nil
}

// CloseDay closes OPEN and BLOCKED tokens and cancels BOOKED ones.
func (s *Store) CloseDay(ctx context.Context, q Querier, tableID uuid.UUID, at time.Time) (DayChanges, error) {
	ctx, span := tokensTracer.Start(ctx, "tokens.close_day")
	defer span.End()
	span.SetAttributes(attribute.String("token.table_id", tableID.String()))

	q = s.querier(q)
	rows, err := q.Query(ctx, `
		UPDATE tokens
		SET status = CASE WHEN status = 'BOOKED' THEN 'CANCELLED' ELSE 'CLOSED' END,
			blocked_at = NULL,
			updated_at = $2
		WHERE table_id = $1 AND status IN ('OPEN', 'BLOCKED', 'BOOKED')
		RETURNING number, status
	`, tableID, at.UTC())
	if err != nil {
		return DayChanges{}, fmt.Errorf("tokens: close day: %w", err)
	}
	defer rows.Close()

	var changes DayChanges
	for rows.Next() {
		var number int
		var status string
		if err := rows.Scan(&number, &status); err != nil {
			return DayChanges{}, fmt.Errorf("tokens: scan closed token: %w", err)
		}
		if Status(status) == StatusCancelled {
			changes.Cancelled = append(changes.Cancelled, number)
		} else {
			changes.Closed = append(changes.Closed, number)
		}
	}
	return changes, rows.Err()
}

// classify explains why a conditional update matched no row.
func (s *Store) classify(ctx context.Context, q Querier, tableID uuid.UUID, number int, target Status) error {
	var raw string
	err := q.QueryRow(ctx, `SELECT status FROM tokens WHERE table_id = $1 AND number = $2`, tableID, number).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("tokens: read status: %w", err)
	}
	current := Status(raw)
	switch {
	case current == StatusBlocked && target == StatusBlocked:
		return ErrAlreadyBlocked
	case (current == StatusBooked || current == StatusVisited) && (target == StatusBlocked || target == StatusBooked):
		return ErrAlreadyBooked
	case current == StatusOpen && (target == StatusBooked || target == StatusOpen):
		return ErrNotBlocked
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}
