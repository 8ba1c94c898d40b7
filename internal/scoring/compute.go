package scoring

import (
	"time"

	"github.com/google/uuid"
)

// Visit is one VISITED booking as seen by the scoring run. StartTs is the
// booking-window open instant stored on the booking, not the schedule start.
type Visit struct {
	DoctorID   uuid.UUID
	UserID     string
	ScheduleID uuid.UUID
	TokenDate  time.Time
	DistanceKm *float64
	StartTs    time.Time
	BookedTs   time.Time
}

// Scores is a doctor's full score set. Every run replaces it.
type Scores struct {
	DoctorID   uuid.UUID `json:"doctor_id"`
	Trust      int       `json:"trust"`
	Popularity int       `json:"popularity"`
	Schedule   int       `json:"schedule"`
	Total      int       `json:"total"`
	Visits     int       `json:"visits"`
	ComputedAt time.Time `json:"computed_at"`
}

// TrustPoints scores one customer's repeat visits. Each visit k earns p1,
// plus p2 at k=v2, p3 at k=v3 and p4 at k=v4 and every v2-th visit after it.
func (c Config) TrustPoints(count int) int {
	v, p := c.Trust.Visits, c.Trust.Points
	total := 0
	for k := 1; k <= count; k++ {
		total += p[0]
		if k == v[1] {
			total += p[1]
		}
		if k == v[2] {
			total += p[2]
		}
		if k == v[3] || (k > v[3] && (k-v[3])%v[1] == 0) {
			total += p[3]
		}
	}
	return total
}

// PopularityPoints maps a booking distance to its band. Bookings without a
// distance score nothing.
func (c Config) PopularityPoints(km *float64) int {
	if km == nil || *km < 0 {
		return 0
	}
	for i, bound := range c.Popularity.BandsKm {
		if *km <= bound {
			return c.Popularity.Points[i]
		}
	}
	return c.Popularity.Points[len(c.Popularity.Points)-1]
}

// SpeedPoints maps the mean delay between booking-window open and booking.
func (c Config) SpeedPoints(meanDelay time.Duration) int {
	if meanDelay < 0 {
		meanDelay = 0
	}
	for i, bound := range c.Speed.Bands {
		if meanDelay <= bound {
			return c.Speed.Points[i]
		}
	}
	return c.Speed.Points[len(c.Speed.Points)-1]
}

type scheduleDay struct {
	date       string
	scheduleID uuid.UUID
}

// Compute derives a doctor's scores from their visited bookings.
func (c Config) Compute(doctorID uuid.UUID, visits []Visit) Scores {
	out := Scores{DoctorID: doctorID, Visits: len(visits)}

	perUser := make(map[string]int)
	delays := make(map[scheduleDay][]time.Duration)
	for _, v := range visits {
		perUser[v.UserID]++
		out.Popularity += c.PopularityPoints(v.DistanceKm)

		key := scheduleDay{date: v.TokenDate.Format("2006-01-02"), scheduleID: v.ScheduleID}
		delays[key] = append(delays[key], v.BookedTs.Sub(v.StartTs))
	}
	for _, n := range perUser {
		out.Trust += c.TrustPoints(n)
	}
	for _, ds := range delays {
		var sum time.Duration
		for _, d := range ds {
			sum += d
		}
		out.Schedule += c.SpeedPoints(sum / time.Duration(len(ds)))
	}
	out.Total = out.Trust + out.Popularity + out.Schedule
	return out
}
