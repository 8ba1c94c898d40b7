package booking

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

// Repository persists bookings and their OTPs.
type Repository struct {
	db Querier
}

func NewRepository(db Querier) *Repository {
	if db == nil {
		panic("booking: db required")
	}
	return &Repository{db: db}
}

func (r *Repository) querier(q Querier) Querier {
	if q == nil {
		return r.db
	}
	return q
}

const bookingColumns = `booking_id, user_id, doctor_id, schedule_id, table_id, token_date, token,
	start_time, end_time, latitude, longitude, distance_km, start_ts, end_ts, booked_ts,
	status, visited_ts, feedback_given, rating, suggestions`

func (r *Repository) Insert(ctx context.Context, q Querier, b *Booking) error {
	snapshot, err := json.Marshal(b.Token.Snapshot())
	if err != nil {
		return fmt.Errorf("booking: marshal token: %w", err)
	}
	_, err = r.querier(q).Exec(ctx, `
		INSERT INTO bookings (booking_id, user_id, doctor_id, schedule_id, table_id, token_date, token, token_number,
			start_time, end_time, latitude, longitude, distance_km, start_ts, end_ts, booked_ts, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, b.ID, b.UserID, b.DoctorID, b.ScheduleID, b.TableID, b.TokenDate, snapshot, b.Token.Number,
		b.StartTime, b.EndTime, b.Location.Latitude, b.Location.Longitude, b.DistanceKm,
		b.StartTs, b.EndTs, b.BookedTs, string(b.Status))
	if err != nil {
		return fmt.Errorf("booking: insert booking: %w", err)
	}
	return nil
}

func (r *Repository) InsertOTP(ctx context.Context, q Querier, bookingID int64, otp int) error {
	if _, err := r.querier(q).Exec(ctx, `INSERT INTO booking_otps (booking_id, otp) VALUES ($1, $2)`, bookingID, otp); err != nil {
		return fmt.Errorf("booking: insert otp: %w", err)
	}
	return nil
}

// Get loads a booking.
func (r *Repository) Get(ctx context.Context, q Querier, id int64) (*Booking, error) {
	return r.get(ctx, q, id, "")
}

// GetForUpdate loads a booking and locks its row until q commits.
func (r *Repository) GetForUpdate(ctx context.Context, q Querier, id int64) (*Booking, error) {
	return r.get(ctx, q, id, " FOR UPDATE")
}

func (r *Repository) get(ctx context.Context, q Querier, id int64, lock string) (*Booking, error) {
	row := r.querier(q).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = $1`+lock, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("booking: get booking: %w", err)
	}
	return b, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var (
		b        Booking
		snapshot []byte
		status   string
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.DoctorID, &b.ScheduleID, &b.TableID, &b.TokenDate, &snapshot,
		&b.StartTime, &b.EndTime, &b.Location.Latitude, &b.Location.Longitude, &b.DistanceKm,
		&b.StartTs, &b.EndTs, &b.BookedTs, &status, &b.VisitedTs, &b.FeedbackGiven, &b.Rating, &b.Suggestions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &b.Token); err != nil {
		return nil, fmt.Errorf("booking: decode token snapshot: %w", err)
	}
	b.TokenDate = tokens.DateOnly(b.TokenDate)
	b.Status = Status(status)
	return &b, nil
}

func (r *Repository) MarkVisited(ctx context.Context, q Querier, id int64, at time.Time) error {
	return r.setStatus(ctx, q, id, StatusVisited, &at)
}

func (r *Repository) MarkCancelled(ctx context.Context, q Querier, id int64) error {
	return r.setStatus(ctx, q, id, StatusCancelled, nil)
}

func (r *Repository) setStatus(ctx context.Context, q Querier, id int64, status Status, visitedAt *time.Time) error {
	tag, err := r.querier(q).Exec(ctx, `
		UPDATE bookings SET status = $2, visited_ts = COALESCE($3, visited_ts)
		WHERE booking_id = $1 AND status = 'BOOKED'
	`, id, string(status), visitedAt)
	if err != nil {
		return fmt.Errorf("booking: set status %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// CancelForTable cancels every BOOKED booking on a token table, fast-track
// bookings included.
func (r *Repository) CancelForTable(ctx context.Context, q Querier, tableID uuid.UUID) ([]cancelled, error) {
	rows, err := r.querier(q).Query(ctx, `
		UPDATE bookings SET status = 'CANCELLED'
		WHERE table_id = $1 AND status = 'BOOKED'
		RETURNING booking_id, user_id, token_number
	`, tableID)
	if err != nil {
		return nil, fmt.Errorf("booking: cancel for table: %w", err)
	}
	defer rows.Close()

	var out []cancelled
	for rows.Next() {
		var c cancelled
		if err := rows.Scan(&c.ID, &c.UserID, &c.TokenNumber); err != nil {
			return nil, fmt.Errorf("booking: scan cancelled: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) GetOTP(ctx context.Context, q Querier, bookingID int64) (int, error) {
	var otp int
	err := r.querier(q).QueryRow(ctx, `SELECT otp FROM booking_otps WHERE booking_id = $1`, bookingID).Scan(&otp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrOTPNotFound
		}
		return 0, fmt.Errorf("booking: get otp: %w", err)
	}
	return otp, nil
}

func (r *Repository) DeleteOTPs(ctx context.Context, q Querier, bookingIDs ...int64) error {
	if len(bookingIDs) == 0 {
		return nil
	}
	if _, err := r.querier(q).Exec(ctx, `DELETE FROM booking_otps WHERE booking_id = ANY($1)`, bookingIDs); err != nil {
		return fmt.Errorf("booking: delete otps: %w", err)
	}
	return nil
}

// SaveFeedback stores a rating once per visited booking owned by userID.
func (r *Repository) SaveFeedback(ctx context.Context, q Querier, id int64, userID string, rating int, suggestions string) (bool, error) {
	var s *string
	if suggestions != "" {
		s = &suggestions
	}
	tag, err := r.querier(q).Exec(ctx, `
		UPDATE bookings SET feedback_given = true, rating = $3, suggestions = $4
		WHERE booking_id = $1 AND user_id = $2 AND status = 'VISITED' AND NOT feedback_given
	`, id, userID, rating, s)
	if err != nil {
		return false, fmt.Errorf("booking: save feedback: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
