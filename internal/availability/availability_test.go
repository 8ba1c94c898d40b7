package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramurama/populardoctor-webapi/internal/tokens"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Calcutta")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	return loc
}

func table(statuses ...tokens.Status) *tokens.Table {
	tbl := &tokens.Table{
		Key:       tokens.NewKey(uuid.New(), uuid.New(), time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)),
		StartTime: "10:00",
		EndTime:   "12:00",
	}
	for i, s := range statuses {
		tbl.Tokens = append(tbl.Tokens, tokens.Token{Number: i + 1, Status: s})
	}
	return tbl
}

func TestParseClock(t *testing.T) {
	cases := map[string]string{
		"10:00":    "10:00",
		"9:05 AM":  "09:05",
		"9:05 pm":  "21:05",
		"12:30 PM": "12:30",
		"12:00 AM": "00:00",
		" 7:45PM ": "19:45",
	}
	for in, want := range cases {
		got, err := ParseClock(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseClock("quarter past ten")
	assert.ErrorIs(t, err, ErrInvalidClock)
}

func TestBoundsUsePinnedZone(t *testing.T) {
	loc := kolkata(t)
	calc := New(loc, 4*time.Hour)
	b, err := calc.Bounds(time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), "10:00 AM", "12:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 15, 6, 0, 0, 0, loc), b.WindowStart)
	assert.Equal(t, time.Date(2024, 7, 15, 10, 0, 0, 0, loc), b.Start)
	assert.Equal(t, time.Date(2024, 7, 15, 12, 0, 0, 0, loc), b.End)
	assert.Equal(t, "04:30", b.Start.UTC().Format("15:04"))
}

func TestIsBookingOpenAtEightThirty(t *testing.T) {
	loc := kolkata(t)
	calc := New(loc, 4*time.Hour)
	now := time.Date(2024, 7, 15, 8, 30, 0, 0, loc)

	assert.True(t, calc.IsBookingOpen(table(tokens.StatusOpen), now))
	assert.False(t, calc.IsBookingOpen(table(tokens.StatusBooked, tokens.StatusBlocked), now))
}

func TestIsBookingOpenWindowEdges(t *testing.T) {
	loc := kolkata(t)
	calc := New(loc, 4*time.Hour)
	tbl := table(tokens.StatusOpen)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before window", time.Date(2024, 7, 15, 5, 59, 0, 0, loc), false},
		{"window opens", time.Date(2024, 7, 15, 6, 0, 0, 0, loc), true},
		{"during session", time.Date(2024, 7, 15, 11, 0, 0, 0, loc), true},
		{"at end", time.Date(2024, 7, 15, 12, 0, 0, 0, loc), true},
		{"after end", time.Date(2024, 7, 15, 12, 1, 0, 0, loc), false},
		{"previous day", time.Date(2024, 7, 14, 10, 0, 0, 0, loc), false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.IsBookingOpen(tbl, tt.now))
		})
	}
}

func TestNeverOpenWithoutOpenTokens(t *testing.T) {
	calc := New(time.UTC, 4*time.Hour)
	now := time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC)
	assert.False(t, calc.IsBookingOpen(table(), now), "zero tokens")
	assert.False(t, calc.IsBookingOpen(table(tokens.StatusClosed, tokens.StatusCancelled), now))
	assert.False(t, calc.IsBookingOpen(nil, now))
}

func TestIsScheduleActive(t *testing.T) {
	calc := New(time.UTC, 4*time.Hour)
	morning := time.Date(2024, 7, 15, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 7, 15, 13, 0, 0, 0, time.UTC)

	assert.True(t, calc.IsScheduleActive(table(tokens.StatusBooked), morning), "booked tokens keep it active before the window")
	assert.False(t, calc.IsScheduleActive(table(tokens.StatusVisited, tokens.StatusClosed), morning))
	assert.False(t, calc.IsScheduleActive(table(tokens.StatusOpen), evening))
}

func TestMalformedTimesAreClosed(t *testing.T) {
	calc := New(time.UTC, 4*time.Hour)
	tbl := table(tokens.StatusOpen)
	tbl.StartTime = "noon"
	assert.False(t, calc.IsBookingOpen(tbl, time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC)))
}
