package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes doctors, hospitals and user contacts.
type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	if db == nil {
		panic("directory: db required")
	}
	return &Store{db: db}
}

func (s *Store) InsertDoctor(ctx context.Context, d *Doctor) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO doctors (id, user_id, pd_number, full_name, specialization, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.UserID, d.PDNumber, d.FullName, d.Specialization, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDoctorExists
		}
		return fmt.Errorf("directory: insert doctor: %w", err)
	}
	return nil
}

func (s *Store) InsertHospital(ctx context.Context, h *Hospital) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO hospitals (id, pd_number, name, location, latitude, longitude, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, h.ID, h.PDNumber, h.Name, h.Location, h.Point.Latitude, h.Point.Longitude, h.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrHospitalExists
		}
		return fmt.Errorf("directory: insert hospital: %w", err)
	}
	return nil
}

// HospitalLocation resolves the coordinates of the hospital a schedule runs at.
func (s *Store) HospitalLocation(ctx context.Context, scheduleID uuid.UUID) (GeoPoint, error) {
	var p GeoPoint
	err := s.db.QueryRow(ctx, `
		SELECT h.latitude, h.longitude
		FROM schedules s
		JOIN hospitals h ON h.id = s.hospital_id
		WHERE s.id = $1
	`, scheduleID).Scan(&p.Latitude, &p.Longitude)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GeoPoint{}, ErrHospitalNotFound
		}
		return GeoPoint{}, fmt.Errorf("directory: hospital location: %w", err)
	}
	return p, nil
}

// UserContact loads the notification details of a user.
func (s *Store) UserContact(ctx context.Context, userID string) (Contact, error) {
	c := Contact{UserID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT full_name, COALESCE(mobile, ''), COALESCE(email, '')
		FROM users
		WHERE id = $1
	`, userID).Scan(&c.FullName, &c.Mobile, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrUserNotFound
		}
		return Contact{}, fmt.Errorf("directory: user contact: %w", err)
	}
	return c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
