package schedules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ramurama/populardoctor-webapi/internal/tokens"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	if db == nil {
		panic("schedules: db required")
	}
	return &Store{db: db}
}

func (s *Store) querier(q Querier) Querier {
	if q == nil {
		return s.db
	}
	return q
}

const scheduleColumns = `id, doctor_id, hospital_id, frontdesk_user_id, weekday, start_time, end_time, tokens, is_deleted`

// Insert relies on the partial unique index over live schedules.
func (s *Store) Insert(ctx context.Context, q Querier, sc *Schedule) error {
	raw, err := json.Marshal(sc.Tokens)
	if err != nil {
		return fmt.Errorf("schedules: marshal tokens: %w", err)
	}
	_, err = s.querier(q).Exec(ctx, `
		INSERT INTO schedules (id, doctor_id, hospital_id, frontdesk_user_id, weekday, start_time, end_time, tokens, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)
	`, sc.ID, sc.DoctorID, sc.HospitalID, sc.FrontdeskUserID, sc.Weekday, sc.StartTime, sc.EndTime, raw)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrScheduleExists
		}
		return fmt.Errorf("schedules: insert: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, q Querier, id uuid.UUID) (*Schedule, error) {
	return s.get(ctx, q, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
}

// GetForUpdate locks the schedule row for a token edit.
func (s *Store) GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*Schedule, error) {
	return s.get(ctx, q, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, id)
}

func (s *Store) get(ctx context.Context, q Querier, sql string, id uuid.UUID) (*Schedule, error) {
	sc, err := scanSchedule(s.querier(q).QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("schedules: get: %w", err)
	}
	return sc, nil
}

func (s *Store) SoftDelete(ctx context.Context, q Querier, id uuid.UUID) error {
	tag, err := s.querier(q).Exec(ctx, `UPDATE schedules SET is_deleted = true WHERE id = $1 AND is_deleted = false`, id)
	if err != nil {
		return fmt.Errorf("schedules: soft delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (s *Store) SetTokens(ctx context.Context, q Querier, id uuid.UUID, toks []tokens.Token) error {
	raw, err := json.Marshal(toks)
	if err != nil {
		return fmt.Errorf("schedules: marshal tokens: %w", err)
	}
	if _, err := s.querier(q).Exec(ctx, `UPDATE schedules SET tokens = $2 WHERE id = $1`, id, raw); err != nil {
		return fmt.Errorf("schedules: set tokens: %w", err)
	}
	return nil
}

// ListForWeekday returns a doctor's live schedules on weekday ordered by start.
func (s *Store) ListForWeekday(ctx context.Context, q Querier, doctorID uuid.UUID, weekday string) ([]Schedule, error) {
	rows, err := s.querier(q).Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE doctor_id = $1 AND weekday = $2 AND is_deleted = false
		ORDER BY start_time
	`, doctorID, weekday)
	if err != nil {
		return nil, fmt.Errorf("schedules: list: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("schedules: scan: %w", err)
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// ConfirmedOn returns the schedule ids that already have a token table on date.
func (s *Store) ConfirmedOn(ctx context.Context, q Querier, doctorID uuid.UUID, date time.Time) (map[uuid.UUID]bool, error) {
	rows, err := s.querier(q).Query(ctx, `
		SELECT schedule_id FROM token_tables WHERE doctor_id = $1 AND token_date = $2
	`, doctorID, tokens.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("schedules: confirmed tables: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("schedules: scan table: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var sc Schedule
	var raw []byte
	if err := row.Scan(&sc.ID, &sc.DoctorID, &sc.HospitalID, &sc.FrontdeskUserID, &sc.Weekday,
		&sc.StartTime, &sc.EndTime, &raw, &sc.IsDeleted); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sc.Tokens); err != nil {
			return nil, fmt.Errorf("decode tokens: %w", err)
		}
	}
	return &sc, nil
}
