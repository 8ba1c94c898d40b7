package schedules

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ramurama/populardoctor-webapi/internal/tokens"
)

var (
	ErrScheduleExists    = errors.New("Schedule already exists.")
	ErrScheduleNotFound  = errors.New("schedules: schedule not found")
	ErrTokenNumberExists = errors.New("Token number exists!")
	ErrTokenNotFound     = errors.New("schedules: token not found")
	ErrWeekdayMismatch   = errors.New("schedules: date does not fall on the schedule's weekday")
	ErrInvalidSchedule   = errors.New("schedules: invalid schedule")
)

// Schedule is the weekly template a doctor confirms into a token table each
// day it runs.
type Schedule struct {
	ID              uuid.UUID      `json:"id"`
	DoctorID        uuid.UUID      `json:"doctor_id"`
	HospitalID      uuid.UUID      `json:"hospital_id"`
	FrontdeskUserID *string        `json:"frontdesk_user_id,omitempty"`
	Weekday         string         `json:"weekday"`
	StartTime       string         `json:"start_time"`
	EndTime         string         `json:"end_time"`
	Tokens          []tokens.Token `json:"tokens"`
	IsDeleted       bool           `json:"is_deleted"`
}

// NewSchedule is the input for Create.
type NewSchedule struct {
	DoctorID        uuid.UUID      `json:"doctor_id"`
	HospitalID      uuid.UUID      `json:"hospital_id"`
	FrontdeskUserID *string        `json:"frontdesk_user_id,omitempty"`
	Weekday         string         `json:"weekday"`
	StartTime       string         `json:"start_time"`
	EndTime         string         `json:"end_time"`
	Tokens          []tokens.Token `json:"tokens"`
}

// Pending lists schedules still awaiting confirmation for a date.
type Pending struct {
	TokenDate string     `json:"token_date"`
	Schedules []Schedule `json:"schedules"`
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// WeekdayName returns the three-letter day name schedules are stored under.
func WeekdayName(t time.Time) string {
	return t.Weekday().String()[:3]
}

// NormalizeWeekday accepts short or long day names in any case.
func NormalizeWeekday(s string) (string, bool) {
	if len(s) < 3 {
		return "", false
	}
	d, ok := weekdays[lower3(s)]
	if !ok {
		return "", false
	}
	return d.String()[:3], true
}

func lower3(s string) string {
	b := []byte(s[:3])
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
