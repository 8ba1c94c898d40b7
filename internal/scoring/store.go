package scoring

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore reads visited bookings and owns the scores table.
type PostgresStore struct {
	db Querier
}

func NewPostgresStore(db Querier) *PostgresStore {
	if db == nil {
		panic("scoring: db required")
	}
	return &PostgresStore{db: db}
}

// Visited returns every VISITED booking ordered by doctor.
func (s *PostgresStore) Visited(ctx context.Context) ([]Visit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT doctor_id, user_id, schedule_id, token_date, distance_km, start_ts, booked_ts
		FROM bookings
		WHERE status = 'VISITED'
		ORDER BY doctor_id, booking_id
	`)
	if err != nil {
		return nil, fmt.Errorf("scoring: query visited: %w", err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.DoctorID, &v.UserID, &v.ScheduleID, &v.TokenDate, &v.DistanceKm, &v.StartTs, &v.BookedTs); err != nil {
			return nil, fmt.Errorf("scoring: scan visit: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scoring: iterate visits: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

// Put overwrites the doctor's scores row.
func (s *PostgresStore) Put(ctx context.Context, sc Scores) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO scores (doctor_id, trust, popularity, schedule, total, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doctor_id) DO UPDATE SET
			trust = EXCLUDED.trust,
			popularity = EXCLUDED.popularity,
			schedule = EXCLUDED.schedule,
			total = EXCLUDED.total,
			computed_at = EXCLUDED.computed_at
	`, sc.DoctorID, sc.Trust, sc.Popularity, sc.Schedule, sc.Total, sc.ComputedAt)
	if err != nil {
		return fmt.Errorf("scoring: upsert scores: %w", err)
	}
	return nil
}
