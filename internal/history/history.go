// Package history serves the read-only booking views: a customer's current
// and past appointments, a doctor's day, and the schedules confirmed for it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ramurama/populardoctor-webapi/internal/availability"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
)

// Entry is one booking as listed to customers and doctors.
type Entry struct {
	BookingID    int64      `json:"booking_id"`
	UserID       string     `json:"user_id"`
	DoctorID     uuid.UUID  `json:"doctor_id"`
	DoctorName   string     `json:"doctor_name"`
	ScheduleID   uuid.UUID  `json:"schedule_id"`
	HospitalName string     `json:"hospital_name"`
	TokenDate    time.Time  `json:"token_date"`
	TokenNumber  int        `json:"token_number"`
	StartTime    string     `json:"start_time"`
	EndTime      string     `json:"end_time"`
	Status       string     `json:"status"`
	BookedTs     time.Time  `json:"booked_ts"`
	VisitedTs    *time.Time `json:"visited_ts,omitempty"`
	Rating       *int       `json:"rating,omitempty"`
}

// Customer splits a customer's bookings around today.
type Customer struct {
	Current []Entry `json:"current"`
	Past    []Entry `json:"past"`
}

// ConfirmedSchedule is a token table a doctor has opened for a day.
type ConfirmedSchedule struct {
	TableID      uuid.UUID `json:"table_id"`
	ScheduleID   uuid.UUID `json:"schedule_id"`
	HospitalName string    `json:"hospital_name"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
}

type Reader struct {
	db   *sql.DB
	calc *availability.Calculator
}

func NewReader(db *sql.DB, calc *availability.Calculator) *Reader {
	if calc == nil {
		calc = availability.New(time.UTC, 0)
	}
	return &Reader{db: db, calc: calc}
}

// Today is the current calendar day in the pinned zone.
func (r *Reader) Today(now time.Time) time.Time {
	return tokens.DateOnly(now.In(r.calc.Location()))
}

const entrySelect = `
	SELECT b.booking_id, b.user_id, b.doctor_id, COALESCE(d.full_name, ''), b.schedule_id,
	       COALESCE(h.name, ''), b.token_date, b.token_number, b.start_time, b.end_time,
	       b.status, b.booked_ts, b.visited_ts, b.rating
	FROM bookings b
	LEFT JOIN doctors d ON d.id = b.doctor_id
	LEFT JOIN schedules s ON s.id = b.schedule_id
	LEFT JOIN hospitals h ON h.id = s.hospital_id`

// CustomerHistory returns upcoming BOOKED appointments as current and
// everything else as past, newest first.
func (r *Reader) CustomerHistory(ctx context.Context, userID string, today time.Time) (Customer, error) {
	out := Customer{Current: []Entry{}, Past: []Entry{}}
	entries, err := r.query(ctx, entrySelect+`
		WHERE b.user_id = $1
		ORDER BY b.token_date DESC, b.start_time DESC`, userID)
	if err != nil {
		return out, err
	}
	day := tokens.DateOnly(today)
	for _, e := range entries {
		if e.Status == "BOOKED" && !tokens.DateOnly(e.TokenDate).Before(day) {
			out.Current = append(out.Current, e)
		} else {
			out.Past = append(out.Past, e)
		}
	}
	return out, nil
}

// TodaysBookings lists a doctor's live bookings for date in token order.
func (r *Reader) TodaysBookings(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Entry, error) {
	return r.query(ctx, entrySelect+`
		WHERE b.doctor_id = $1 AND b.token_date = $2 AND b.status = ANY($3)
		ORDER BY b.start_time, b.token_number`,
		doctorID, tokens.DateOnly(date), pq.Array([]string{"BOOKED", "VISITED"}))
}

// BookingsByStatus lists a doctor's bookings in any of statuses.
func (r *Reader) BookingsByStatus(ctx context.Context, doctorID uuid.UUID, statuses []string) ([]Entry, error) {
	return r.query(ctx, entrySelect+`
		WHERE b.doctor_id = $1 AND b.status = ANY($2)
		ORDER BY b.token_date DESC, b.token_number`,
		doctorID, pq.Array(statuses))
}

// ConfirmedSchedules lists the doctor's token tables for date that have not
// ended yet at now.
func (r *Reader) ConfirmedSchedules(ctx context.Context, doctorID uuid.UUID, date, now time.Time) ([]ConfirmedSchedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.schedule_id, COALESCE(h.name, ''), t.start_time, t.end_time
		FROM token_tables t
		LEFT JOIN schedules s ON s.id = t.schedule_id
		LEFT JOIN hospitals h ON h.id = s.hospital_id
		WHERE t.doctor_id = $1 AND t.token_date = $2
		ORDER BY t.start_time`, doctorID, tokens.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("history: confirmed schedules: %w", err)
	}
	defer rows.Close()

	out := []ConfirmedSchedule{}
	for rows.Next() {
		var c ConfirmedSchedule
		if err := rows.Scan(&c.TableID, &c.ScheduleID, &c.HospitalName, &c.StartTime, &c.EndTime); err != nil {
			return nil, fmt.Errorf("history: scan schedule: %w", err)
		}
		b, err := r.calc.Bounds(date, c.StartTime, c.EndTime)
		if err != nil || now.After(b.End) {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query bookings: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var visited sql.NullTime
		var rating sql.NullInt64
		if err := rows.Scan(&e.BookingID, &e.UserID, &e.DoctorID, &e.DoctorName, &e.ScheduleID,
			&e.HospitalName, &e.TokenDate, &e.TokenNumber, &e.StartTime, &e.EndTime,
			&e.Status, &e.BookedTs, &visited, &rating); err != nil {
			return nil, fmt.Errorf("history: scan booking: %w", err)
		}
		if visited.Valid {
			t := visited.Time
			e.VisitedTs = &t
		}
		if rating.Valid {
			v := int(rating.Int64)
			e.Rating = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
