package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/ramurama/populardoctor-webapi/internal/directory"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusBooked    Status = "BOOKED"
	StatusVisited   Status = "VISITED"
	StatusCancelled Status = "CANCELLED"
)

// Booking is a customer's reservation of one token. Token is a snapshot taken
// at booking time and never carries a status.
type Booking struct {
	ID            int64              `json:"booking_id"`
	UserID        string             `json:"user_id"`
	DoctorID      uuid.UUID          `json:"doctor_id"`
	ScheduleID    uuid.UUID          `json:"schedule_id"`
	TableID       uuid.UUID          `json:"token_table_id"`
	TokenDate     time.Time          `json:"token_date"`
	Token         tokens.Token       `json:"token"`
	StartTime     string             `json:"start_time"`
	EndTime       string             `json:"end_time"`
	Location      directory.GeoPoint `json:"location"`
	DistanceKm    *float64           `json:"distance_km,omitempty"`
	StartTs       time.Time          `json:"start_ts"`
	EndTs         time.Time          `json:"end_ts"`
	BookedTs      time.Time          `json:"booked_ts"`
	Status        Status             `json:"status"`
	VisitedTs     *time.Time         `json:"visited_ts,omitempty"`
	FeedbackGiven bool               `json:"feedback_given"`
	Rating        *int               `json:"rating,omitempty"`
	Suggestions   *string            `json:"suggestions,omitempty"`
}

// IsFastTrack reports whether the booking holds the fast-track token.
func (b *Booking) IsFastTrack() bool {
	return b.Token.IsFastTrack()
}

// BlockRequest asks to hold a token while the customer completes booking.
type BlockRequest struct {
	UserID     string
	DoctorID   uuid.UUID
	ScheduleID uuid.UUID
	Date       time.Time
	Number     int
}

// BlockResult describes a successful block.
type BlockResult struct {
	TableID   uuid.UUID `json:"token_table_id,omitempty"`
	Number    int       `json:"token_number"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// BookRequest converts a blocked (or fast-track) token into a booking.
type BookRequest struct {
	UserID     string
	DoctorID   uuid.UUID
	ScheduleID uuid.UUID
	Date       time.Time
	Number     int
	Location   directory.GeoPoint
}

// DayClosure summarises BlockScheduleForDay.
type DayClosure struct {
	TableID           uuid.UUID `json:"token_table_id"`
	ClosedTokens      []int     `json:"closed_tokens"`
	CancelledTokens   []int     `json:"cancelled_tokens"`
	CancelledBookings []int64   `json:"cancelled_bookings"`
}

// TableView is the customer's view of a day's tokens.
type TableView struct {
	TableID     uuid.UUID      `json:"token_table_id,omitempty"`
	StartTime   string         `json:"start_time,omitempty"`
	EndTime     string         `json:"end_time,omitempty"`
	Tokens      []tokens.Token `json:"tokens"`
	BookingOpen bool           `json:"booking_open"`
}

// cancelled is a booking row touched by a day closure.
type cancelled struct {
	ID          int64
	UserID      string
	TokenNumber int
}
