package scoring

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig reports a malformed scoring table.
var ErrInvalidConfig = errors.New("scoring: invalid config")

// TrustConfig holds the repeat-visit thresholds v1..v4 and their points p1..p4.
type TrustConfig struct {
	Visits [4]int
	Points [4]int
}

// PopularityConfig maps booking distance into four bands split by three
// upper bounds in kilometres.
type PopularityConfig struct {
	BandsKm [3]float64
	Points  [4]int
}

// SpeedConfig maps the mean delay between booking-window open and the
// booking into five bands split by four upper bounds.
type SpeedConfig struct {
	Bands  [4]time.Duration
	Points [5]int
}

type Config struct {
	Trust      TrustConfig
	Popularity PopularityConfig
	Speed      SpeedConfig
}

func DefaultConfig() Config {
	return Config{
		Trust: TrustConfig{
			Visits: [4]int{1, 3, 5, 10},
			Points: [4]int{1, 5, 10, 20},
		},
		Popularity: PopularityConfig{
			BandsKm: [3]float64{2, 5, 10},
			Points:  [4]int{1, 2, 4, 6},
		},
		Speed: SpeedConfig{
			Bands:  [4]time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour, 3 * time.Hour},
			Points: [5]int{10, 7, 4, 2, 1},
		},
	}
}

// Tables carries the raw lists read from the environment.
type Tables struct {
	TrustVisits    []int
	TrustPoints    []int
	DistanceBandKm []float64
	DistancePoints []int
	SpeedBands     []time.Duration
	SpeedPoints    []int
}

// FromTables builds a Config from variable-length lists, rejecting lists of
// the wrong length or unordered thresholds.
func FromTables(t Tables) (Config, error) {
	var cfg Config
	if len(t.TrustVisits) != 4 || len(t.TrustPoints) != 4 {
		return cfg, fmt.Errorf("%w: trust tables need 4 entries", ErrInvalidConfig)
	}
	if len(t.DistanceBandKm) != 3 || len(t.DistancePoints) != 4 {
		return cfg, fmt.Errorf("%w: distance tables need 3 bounds and 4 points", ErrInvalidConfig)
	}
	if len(t.SpeedBands) != 4 || len(t.SpeedPoints) != 5 {
		return cfg, fmt.Errorf("%w: speed tables need 4 bounds and 5 points", ErrInvalidConfig)
	}
	copy(cfg.Trust.Visits[:], t.TrustVisits)
	copy(cfg.Trust.Points[:], t.TrustPoints)
	copy(cfg.Popularity.BandsKm[:], t.DistanceBandKm)
	copy(cfg.Popularity.Points[:], t.DistancePoints)
	copy(cfg.Speed.Bands[:], t.SpeedBands)
	copy(cfg.Speed.Points[:], t.SpeedPoints)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	v := c.Trust.Visits
	if v[0] <= 0 || v[0] >= v[1] || v[1] >= v[2] || v[2] >= v[3] {
		return fmt.Errorf("%w: trust visits must be positive and ascending", ErrInvalidConfig)
	}
	b := c.Popularity.BandsKm
	if b[0] <= 0 || b[0] >= b[1] || b[1] >= b[2] {
		return fmt.Errorf("%w: distance bands must be positive and ascending", ErrInvalidConfig)
	}
	s := c.Speed.Bands
	if s[0] <= 0 || s[0] >= s[1] || s[1] >= s[2] || s[2] >= s[3] {
		return fmt.Errorf("%w: speed bands must be positive and ascending", ErrInvalidConfig)
	}
	return nil
}
