package tokens

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a single token.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusBlocked   Status = "BLOCKED"
	StatusBooked    Status = "BOOKED"
	StatusVisited   Status = "VISITED"
	StatusCancelled Status = "CANCELLED"
	StatusClosed    Status = "CLOSED"
)

// FastTrackNumber is never stored in a table. It is always bookable and
// bypasses blocking.
const FastTrackNumber = 0

// TypeFastTrack is the type recorded on fast-track booking snapshots.
const TypeFastTrack = "FAST_TRACK"

// Token is one bookable slot.
type Token struct {
	Number int    `json:"number"`
	Type   string `json:"type"`
	Time   string `json:"time"`
	Status Status `json:"status,omitempty"`
}

// IsFastTrack reports whether the token bypasses slot selection.
func (t Token) IsFastTrack() bool {
	return t.Number == FastTrackNumber
}

// Snapshot returns the copy stored on a booking: same token, no status.
func (t Token) Snapshot() Token {
	t.Status = ""
	return t
}

// FastTrackToken is the synthetic token booked for number 0.
func FastTrackToken() Token {
	return Token{Number: FastTrackNumber, Type: TypeFastTrack}
}

// Key identifies a token table.
type Key struct {
	DoctorID   uuid.UUID
	ScheduleID uuid.UUID
	TokenDate  time.Time
}

// NewKey truncates the date to midnight UTC so keys compare by calendar day.
func NewKey(doctorID, scheduleID uuid.UUID, date time.Time) Key {
	return Key{DoctorID: doctorID, ScheduleID: scheduleID, TokenDate: DateOnly(date)}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DoctorID, k.ScheduleID, k.TokenDate.Format(time.DateOnly))
}

// DateOnly drops the clock and zone from t, keeping its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("tokens: invalid date %q: %w", s, err)
	}
	return t, nil
}

// Table is a schedule instantiated for one day.
type Table struct {
	ID        uuid.UUID
	Key       Key
	StartTime string
	EndTime   string
	Tokens    []Token
	CreatedAt time.Time
}

// Find returns the token with the given number.
func (t *Table) Find(number int) (Token, bool) {
	for _, tok := range t.Tokens {
		if tok.Number == number {
			return tok, true
		}
	}
	return Token{}, false
}

// HasStatus reports whether any token is in one of the given states.
func (t *Table) HasStatus(statuses ...Status) bool {
	for _, tok := range t.Tokens {
		for _, s := range statuses {
			if tok.Status == s {
				return true
			}
		}
	}
	return false
}

// BlockInstant normalises a block time to what a timestamptz column stores,
// so a timer can later match the block it was armed for.
func BlockInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Ref points at a single token row.
type Ref struct {
	TableID uuid.UUID
	Number  int
}

// DayChanges lists the token numbers touched by a day closure.
type DayChanges struct {
	Closed    []int
	Cancelled []int
}
