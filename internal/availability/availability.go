// Package availability decides whether a token table is open for booking.
// All wall-clock arithmetic happens in one configured timezone so that the
// server's local zone never shifts the booking window.
package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ramurama/populardoctor-webapi/internal/tokens"
)

// ErrInvalidClock is returned for times that are neither "HH:mm" nor "h:mm A".
var ErrInvalidClock = errors.New("availability: invalid clock time")

var clockLayouts = []string{"15:04", "3:04 PM", "3:04PM", "03:04 PM"}

// ParseClock normalises "h:mm A" and "HH:mm" wall-clock strings to "HH:mm".
func ParseClock(s string) (string, error) {
	t, err := parseClock(s)
	if err != nil {
		return "", err
	}
	return t.Format("15:04"), nil
}

func parseClock(s string) (time.Time, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
}

// Calculator evaluates booking windows.
type Calculator struct {
	loc    *time.Location
	window time.Duration
}

// New builds a calculator for the given zone and booking window. A nil zone
// means UTC.
func New(loc *time.Location, window time.Duration) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc, window: window}
}

// Location returns the pinned zone.
func (c *Calculator) Location() *time.Location { return c.loc }

// Window returns the configured booking window.
func (c *Calculator) Window() time.Duration { return c.window }

// At combines a calendar date with a wall-clock time in the pinned zone.
func (c *Calculator) At(date time.Time, clock string) (time.Time, error) {
	t, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, c.loc), nil
}

// Bounds holds the instants that frame a schedule day.
type Bounds struct {
	WindowStart time.Time
	Start       time.Time
	End         time.Time
}

// Bounds computes [start - window, start, end] for a schedule day.
func (c *Calculator) Bounds(date time.Time, startClock, endClock string) (Bounds, error) {
	start, err := c.At(date, startClock)
	if err != nil {
		return Bounds{}, err
	}
	end, err := c.At(date, endClock)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{WindowStart: start.Add(-c.window), Start: start, End: end}, nil
}

// WithinWindow reports whether now falls inside [start - window, end].
// Unparseable times are treated as closed.
func (c *Calculator) WithinWindow(table *tokens.Table, now time.Time) bool {
	if table == nil {
		return false
	}
	b, err := c.Bounds(table.Key.TokenDate, table.StartTime, table.EndTime)
	if err != nil {
		return false
	}
	return !now.Before(b.WindowStart) && !now.After(b.End)
}

// IsBookingOpen reports whether a customer may book from the table now: the
// booking window is open and at least one token is OPEN.
func (c *Calculator) IsBookingOpen(table *tokens.Table, now time.Time) bool {
	return c.WithinWindow(table, now) && table.HasStatus(tokens.StatusOpen)
}

// IsScheduleActive reports whether a confirmed schedule should still be
// listed: the day has not ended and some token is OPEN or BOOKED.
func (c *Calculator) IsScheduleActive(table *tokens.Table, now time.Time) bool {
	if table == nil {
		return false
	}
	end, err := c.At(table.Key.TokenDate, table.EndTime)
	if err != nil {
		return false
	}
	return !now.After(end) && table.HasStatus(tokens.StatusOpen, tokens.StatusBooked)
}
